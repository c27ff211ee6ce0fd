package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

// AssignmentUsecase moves contacts between the unassigned pool and accounts.
// The contact row is written first and is authoritative; the account's entry
// list and counters follow. If the second write fails the caller gets a
// PartialAssignmentError and reconciliation repairs the account side.
type AssignmentUsecase struct {
	accounts repository.AccountRepository
	contacts repository.ContactRepository
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewAssignmentUsecase(
	accounts repository.AccountRepository,
	contacts repository.ContactRepository,
	pub events.Publisher,
	logger *zap.Logger,
) *AssignmentUsecase {
	return &AssignmentUsecase{
		accounts: accounts,
		contacts: contacts,
		pub:      pub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AssignmentUsecase) Assign(ctx context.Context, actor domain.Principal, accountID string, contactIDs []string) (*domain.AssignResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, xerrors.Invalid("accountId", "is required")
	}
	ids := dedupeIDs(contactIDs)
	if len(ids) == 0 {
		return nil, xerrors.Invalid("contactIds", "must contain at least one id")
	}

	acc, err := uc.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Role != domain.RoleUser {
		return nil, xerrors.Invalid("accountId", "contacts can only be assigned to user accounts")
	}

	existing, err := uc.contacts.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	candidates := make([]string, 0, len(existing))
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			candidates = append(candidates, id)
		}
	}

	now := uc.now()
	var claimedSet map[string]bool
	if len(candidates) > 0 {
		claimed, err := uc.contacts.ClaimUnassigned(ctx, accountID, candidates, now)
		if err != nil {
			return nil, err
		}
		claimedSet = make(map[string]bool, len(claimed))
		for _, id := range claimed {
			claimedSet[id] = true
		}
	}

	res := &domain.AssignResult{
		AccountID:   accountID,
		AssignedIDs: []string{},
		Skipped:     []domain.SkippedContact{},
	}
	for _, id := range ids {
		switch {
		case existing[id] == nil:
			res.Skipped = append(res.Skipped, domain.SkippedContact{ContactID: id, Reason: domain.SkipNotFound})
		case claimedSet[id]:
			res.AssignedIDs = append(res.AssignedIDs, id)
		default:
			res.Skipped = append(res.Skipped, domain.SkippedContact{ContactID: id, Reason: domain.SkipAlreadyAssigned})
		}
	}
	res.AssignedCount = len(res.AssignedIDs)
	res.SkippedCount = len(res.Skipped)

	if res.AssignedCount > 0 {
		if err := uc.accounts.AppendAssignments(ctx, accountID, res.AssignedIDs, now); err != nil {
			partialFailuresTotal.WithLabelValues("assign").Inc()
			uc.logger.Error("contacts claimed but account update failed",
				zap.String("account_id", accountID),
				zap.Strings("contact_ids", res.AssignedIDs),
				zap.Error(err))
			return nil, &xerrors.PartialAssignmentError{Op: "assign", Applied: res.AssignedIDs, Err: err}
		}
		contactsAssignedTotal.Add(float64(res.AssignedCount))
		publish(ctx, uc.pub, uc.logger, events.New(events.TypeContactsAssigned, accountID, actor.AccountID,
			map[string]interface{}{"contactIds": res.AssignedIDs}))
	}

	uc.logger.Info("contacts assigned",
		zap.String("account_id", accountID),
		zap.String("actor_id", actor.AccountID),
		zap.Int("assigned", res.AssignedCount),
		zap.Int("skipped", res.SkippedCount))
	return res, nil
}

func (uc *AssignmentUsecase) Unassign(ctx context.Context, actor domain.Principal, contactIDs []string) (*domain.UnassignResult, error) {
	ids := dedupeIDs(contactIDs)
	if len(ids) == 0 {
		return nil, xerrors.Invalid("contactIds", "must contain at least one id")
	}
	res, err := uc.release(ctx, actor.AccountID, ids)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("contacts unassigned",
		zap.String("actor_id", actor.AccountID),
		zap.Int("unassigned", res.UnassignedCount),
		zap.Int("accounts", res.AffectedAccountCount),
		zap.Int("skipped", res.SkippedCount))
	return res, nil
}

// ReleaseAccount returns every contact held by accountID to the pool.
func (uc *AssignmentUsecase) ReleaseAccount(ctx context.Context, actor domain.Principal, accountID string) (int, error) {
	ids, err := uc.contacts.IDsAssignedTo(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("list held contacts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := uc.release(ctx, actor.AccountID, ids)
	if err != nil {
		return 0, err
	}
	return res.UnassignedCount, nil
}

func (uc *AssignmentUsecase) release(ctx context.Context, actorID string, ids []string) (*domain.UnassignResult, error) {
	owners, err := uc.contacts.Release(ctx, ids)
	if err != nil {
		return nil, err
	}

	releasedBy := make(map[string]string, len(owners))
	for _, o := range owners {
		releasedBy[o.ContactID] = o.AccountID
	}

	res := &domain.UnassignResult{UnassignedIDs: []string{}, Skipped: []domain.SkippedContact{}}
	var notReleased []string
	var accountOrder []string
	groups := map[string][]string{}
	for _, id := range ids {
		acc, ok := releasedBy[id]
		if !ok {
			notReleased = append(notReleased, id)
			continue
		}
		res.UnassignedIDs = append(res.UnassignedIDs, id)
		if _, seen := groups[acc]; !seen {
			accountOrder = append(accountOrder, acc)
		}
		groups[acc] = append(groups[acc], id)
	}

	if len(notReleased) > 0 {
		present, err := uc.contacts.GetMany(ctx, notReleased)
		if err != nil {
			uc.logger.Warn("could not classify skipped contacts", zap.Error(err))
		}
		for _, id := range notReleased {
			reason := domain.SkipNotFound
			if present[id] != nil {
				reason = domain.SkipNotAssigned
			}
			res.Skipped = append(res.Skipped, domain.SkippedContact{ContactID: id, Reason: reason})
		}
	}

	now := uc.now()
	var failErr error
	for _, acc := range accountOrder {
		group := groups[acc]
		n, err := uc.accounts.RemoveAssignments(ctx, acc, group, now)
		switch {
		case errors.Is(err, xerrors.ErrAccountNotFound):
			uc.logger.Warn("released contacts of a missing account",
				zap.String("account_id", acc),
				zap.Strings("contact_ids", group))
			continue
		case err != nil:
			if failErr == nil {
				failErr = err
			}
			uc.logger.Error("contacts released but account update failed",
				zap.String("account_id", acc),
				zap.Strings("contact_ids", group),
				zap.Error(err))
			continue
		}
		if int(n) != len(group) {
			uc.logger.Warn("assignment entries out of step with contacts",
				zap.String("account_id", acc),
				zap.Int("released", len(group)),
				zap.Int64("entries_removed", n))
		}
		publish(ctx, uc.pub, uc.logger, events.New(events.TypeContactsUnassigned, acc, actorID,
			map[string]interface{}{"contactIds": group}))
	}

	res.UnassignedCount = len(res.UnassignedIDs)
	res.AffectedAccountCount = len(accountOrder)
	res.SkippedCount = len(res.Skipped)
	contactsUnassignedTotal.Add(float64(res.UnassignedCount))

	if failErr != nil {
		partialFailuresTotal.WithLabelValues("unassign").Inc()
		return nil, &xerrors.PartialAssignmentError{Op: "unassign", Applied: res.UnassignedIDs, Err: failErr}
	}
	return res, nil
}

func (uc *AssignmentUsecase) ListAssigned(ctx context.Context, actor domain.Principal, accountID string, req domain.PageRequest) (*domain.Page[*domain.Contact], error) {
	if !actor.CanAccess(accountID) {
		return nil, xerrors.ErrForbidden
	}
	p, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if _, err := uc.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	items, total, err := uc.contacts.ListActiveForAccount(ctx, accountID, p)
	if err != nil {
		return nil, fmt.Errorf("list assigned contacts: %w", err)
	}
	return domain.NewPage(items, total, p), nil
}
