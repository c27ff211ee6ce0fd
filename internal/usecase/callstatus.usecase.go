package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

type CallStatusUsecase struct {
	accounts repository.AccountRepository
	contacts repository.ContactRepository
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewCallStatusUsecase(
	accounts repository.AccountRepository,
	contacts repository.ContactRepository,
	pub events.Publisher,
	logger *zap.Logger,
) *CallStatusUsecase {
	return &CallStatusUsecase{
		accounts: accounts,
		contacts: contacts,
		pub:      pub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetCalled sets the called flag of one phone on a contact. Only the
// assignee or an admin may write. Repeating the current value changes
// nothing.
func (uc *CallStatusUsecase) SetCalled(ctx context.Context, actor domain.Principal, contactID, number string, called bool) (*domain.Contact, error) {
	contactID = strings.TrimSpace(contactID)
	number = strings.TrimSpace(number)
	if contactID == "" {
		return nil, xerrors.Invalid("contactId", "is required")
	}
	if number == "" {
		return nil, xerrors.Invalid("phoneNumber", "is required")
	}

	now := uc.now()
	tr, err := uc.contacts.SetPhoneCalled(ctx, domain.CallUpdate{
		ContactID:       contactID,
		Number:          number,
		Called:          called,
		By:              actor.AccountID,
		At:              now,
		RequireAssignee: !actor.IsAdmin(),
	})
	if err != nil {
		return nil, err
	}

	if tr.Changed {
		callStatusChangesTotal.WithLabelValues(strconv.FormatBool(called)).Inc()
		if err := uc.applyStats(ctx, actor, tr, called, now); err != nil {
			uc.logger.Error("call status stored but account stats update failed",
				zap.String("contact_id", contactID),
				zap.String("phone", number),
				zap.Error(err))
			return nil, fmt.Errorf("update call stats: %w", err)
		}
		publish(ctx, uc.pub, uc.logger, events.New(events.TypeCallStatusChanged, actor.AccountID, actor.AccountID,
			map[string]interface{}{"contactId": contactID, "phoneNumber": number, "called": called}))
	}

	return uc.contacts.GetByID(ctx, contactID)
}

func (uc *CallStatusUsecase) applyStats(ctx context.Context, actor domain.Principal, tr domain.CallTransition, called bool, now time.Time) error {
	if called {
		return uc.accounts.ApplyCallDelta(ctx, actor.AccountID, 1, &now)
	}
	if tr.PreviousCalledBy == nil {
		return nil
	}
	err := uc.accounts.ApplyCallDelta(ctx, *tr.PreviousCalledBy, -1, nil)
	if errors.Is(err, xerrors.ErrAccountNotFound) {
		return nil
	}
	return err
}
