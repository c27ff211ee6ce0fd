package usecase

import (
	"context"
	"fmt"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

// QueryUsecase serves read-only listings and stats.
type QueryUsecase struct {
	accounts repository.AccountRepository
	contacts repository.ContactRepository
	logger   *zap.Logger
}

func NewQueryUsecase(accounts repository.AccountRepository, contacts repository.ContactRepository, logger *zap.Logger) *QueryUsecase {
	return &QueryUsecase{accounts: accounts, contacts: contacts, logger: logger}
}

// ListContacts pages the contact pool. Non-admin callers only ever see their
// own contacts whatever filter they ask for.
func (uc *QueryUsecase) ListContacts(ctx context.Context, actor domain.Principal, q domain.ContactQuery) (*domain.Page[*domain.Contact], error) {
	p, err := q.PageRequest.Normalize()
	if err != nil {
		return nil, err
	}
	q.PageRequest = p

	if !actor.IsAdmin() {
		q.Filter = domain.FilterByAccount
		q.AccountID = actor.AccountID
	}
	if q.Filter == "" {
		q.Filter = domain.FilterAll
	}
	if q.Filter == domain.FilterByAccount && q.AccountID == "" {
		return nil, xerrors.Invalid("accountId", "is required for filter byAccount")
	}

	items, total, err := uc.contacts.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	return domain.NewPage(items, total, p), nil
}

func (uc *QueryUsecase) ListAccounts(ctx context.Context, roleFilter string) ([]domain.AccountSummary, error) {
	var role *domain.Role
	if roleFilter != "" {
		r, ok := domain.ParseRole(roleFilter)
		if !ok {
			return nil, xerrors.Invalid("role", "must be admin or user")
		}
		role = &r
	}
	list, err := uc.accounts.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]domain.AccountSummary, 0, len(list))
	for _, a := range list {
		out = append(out, a.Summary())
	}
	return out, nil
}

func (uc *QueryUsecase) GetAccount(ctx context.Context, actor domain.Principal, id string) (*domain.Account, error) {
	if !actor.CanAccess(id) {
		return nil, xerrors.ErrForbidden
	}
	return uc.accounts.GetByID(ctx, id)
}

func (uc *QueryUsecase) AccountStats(ctx context.Context, actor domain.Principal, id string) (*domain.StatsView, error) {
	acc, err := uc.GetAccount(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	v := acc.StatsView()
	return &v, nil
}

func (uc *QueryUsecase) GetContact(ctx context.Context, actor domain.Principal, id string) (*domain.Contact, error) {
	c, err := uc.contacts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (c.AssignedTo == nil || *c.AssignedTo != actor.AccountID) {
		return nil, xerrors.ErrNotAssignee
	}
	return c, nil
}

func (uc *QueryUsecase) ContactStats(ctx context.Context) (*domain.ContactStats, error) {
	st, err := uc.contacts.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("contact stats: %w", err)
	}
	return st, nil
}
