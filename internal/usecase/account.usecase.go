package usecase

import (
	"context"
	"fmt"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

type accountForgetter interface {
	ForgetAccount(ctx context.Context, accountID string)
}

type AccountUsecase struct {
	accounts    repository.AccountRepository
	assignments *AssignmentUsecase
	sessions    accountForgetter
	pub         events.Publisher
	logger      *zap.Logger
}

func NewAccountUsecase(
	accounts repository.AccountRepository,
	assignments *AssignmentUsecase,
	sessions accountForgetter,
	pub events.Publisher,
	logger *zap.Logger,
) *AccountUsecase {
	return &AccountUsecase{
		accounts:    accounts,
		assignments: assignments,
		sessions:    sessions,
		pub:         pub,
		logger:      logger,
	}
}

// Delete releases the account's contacts back to the pool, then removes it.
func (uc *AccountUsecase) Delete(ctx context.Context, actor domain.Principal, id string) (*domain.DeleteAccountResult, error) {
	if id == actor.AccountID {
		return nil, xerrors.ErrSelfDelete
	}
	if _, err := uc.accounts.GetByID(ctx, id); err != nil {
		return nil, err
	}

	released, err := uc.assignments.ReleaseAccount(ctx, actor, id)
	if err != nil {
		return nil, fmt.Errorf("release contacts of %s: %w", id, err)
	}
	if err := uc.accounts.Delete(ctx, id); err != nil {
		return nil, err
	}
	if uc.sessions != nil {
		uc.sessions.ForgetAccount(ctx, id)
	}

	uc.logger.Info("account deleted",
		zap.String("account_id", id),
		zap.String("actor_id", actor.AccountID),
		zap.Int("released_contacts", released))
	publish(ctx, uc.pub, uc.logger, events.New(events.TypeAccountDeleted, id, actor.AccountID,
		map[string]interface{}{"releasedContacts": released}))
	return &domain.DeleteAccountResult{Deleted: id, ReleasedContacts: released}, nil
}
