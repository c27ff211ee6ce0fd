package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/events"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/id"
	"callcenter-service/pkg/xerrors"

	"go.uber.org/zap"
)

// ReconcileUsecase rebuilds derived state from the authoritative side:
// contacts own assignment, phone statuses own call counts. Runs are
// serialized within the process.
type ReconcileUsecase struct {
	accounts repository.AccountRepository
	contacts repository.ContactRepository
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

func NewReconcileUsecase(
	accounts repository.AccountRepository,
	contacts repository.ContactRepository,
	pub events.Publisher,
	logger *zap.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		accounts: accounts,
		contacts: contacts,
		pub:      pub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ReconcileUsecase) Run(ctx context.Context) (*domain.ReconcileReport, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	report := &domain.ReconcileReport{RunID: id.GenerateUUID("rec"), StartedAt: uc.now()}
	log := uc.logger.With(zap.String("run_id", report.RunID))

	if err := uc.syncEntries(ctx, report, log); err != nil {
		return nil, err
	}

	flags, err := uc.contacts.FixAssignedFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("fix assigned flags: %w", err)
	}
	report.FlagsFixed = flags

	if err := uc.correctCounters(ctx, report, log); err != nil {
		return nil, err
	}

	report.Duration = time.Since(report.StartedAt)
	reconcileCorrectionsTotal.WithLabelValues("entry_restored").Add(float64(report.EntriesRestored))
	reconcileCorrectionsTotal.WithLabelValues("orphan_removed").Add(float64(report.OrphansRemoved))
	reconcileCorrectionsTotal.WithLabelValues("flag_fixed").Add(float64(report.FlagsFixed))
	reconcileCorrectionsTotal.WithLabelValues("account_corrected").Add(float64(report.AccountsCorrected))
	reconcileCorrectionsTotal.WithLabelValues("dangling_released").Add(float64(report.DanglingAssignments))

	log.Info("reconcile finished",
		zap.Int("restored", report.EntriesRestored),
		zap.Int("orphans", report.OrphansRemoved),
		zap.Int64("flags", report.FlagsFixed),
		zap.Int("accounts", report.AccountsCorrected),
		zap.Int("dangling", report.DanglingAssignments),
		zap.Duration("took", report.Duration))

	if report.EntriesRestored+report.OrphansRemoved+report.AccountsCorrected+report.DanglingAssignments > 0 || report.FlagsFixed > 0 {
		publish(ctx, uc.pub, uc.logger, events.New(events.TypeReconcileCompleted, "", "", report))
	}
	return report, nil
}

// syncEntries makes every account's active entries mirror contact ownership.
func (uc *ReconcileUsecase) syncEntries(ctx context.Context, report *domain.ReconcileReport, log *zap.Logger) error {
	owners, err := uc.contacts.AssignedOwners(ctx)
	if err != nil {
		return fmt.Errorf("load contact owners: %w", err)
	}
	active, err := uc.accounts.ActiveAssignments(ctx)
	if err != nil {
		return fmt.Errorf("load active entries: %w", err)
	}

	ownerOf := make(map[string]string, len(owners))
	for _, o := range owners {
		ownerOf[o.ContactID] = o.AccountID
	}
	hasEntry := make(map[string]bool, len(active)) // account|contact
	orphans := map[string][]string{}
	for _, e := range active {
		if ownerOf[e.ContactID] == e.AccountID {
			hasEntry[e.AccountID+"|"+e.ContactID] = true
			continue
		}
		orphans[e.AccountID] = append(orphans[e.AccountID], e.ContactID)
	}

	accountIDs := make([]string, 0, len(orphans))
	for acc := range orphans {
		accountIDs = append(accountIDs, acc)
	}
	sort.Strings(accountIDs)
	now := uc.now()
	for _, acc := range accountIDs {
		// the store re-checks ownership, so entries claimed since the
		// snapshot stay
		n, err := uc.accounts.RemoveAssignments(ctx, acc, orphans[acc], now)
		if errors.Is(err, xerrors.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("remove orphan entries of %s: %w", acc, err)
		}
		if n == 0 {
			continue
		}
		report.OrphansRemoved += int(n)
		log.Warn("orphan assignment entries removed",
			zap.String("account_id", acc),
			zap.Int64("removed", n),
			zap.Strings("candidates", orphans[acc]))
	}

	for _, o := range owners {
		if hasEntry[o.AccountID+"|"+o.ContactID] {
			continue
		}
		restored, err := uc.accounts.RestoreAssignment(ctx, o)
		if errors.Is(err, xerrors.ErrAccountNotFound) {
			if _, err := uc.contacts.Release(ctx, []string{o.ContactID}); err != nil {
				return fmt.Errorf("release dangling contact %s: %w", o.ContactID, err)
			}
			report.DanglingAssignments++
			log.Warn("contact held by a missing account released",
				zap.String("contact_id", o.ContactID),
				zap.String("account_id", o.AccountID))
			continue
		}
		if err != nil {
			return fmt.Errorf("restore entry for %s: %w", o.ContactID, err)
		}
		if !restored {
			continue
		}
		report.EntriesRestored++
		log.Warn("missing assignment entry restored",
			zap.String("contact_id", o.ContactID),
			zap.String("account_id", o.AccountID))
	}
	return nil
}

// correctCounters has the store recount each account inside its write, so
// increments landing during the run are never overwritten.
func (uc *ReconcileUsecase) correctCounters(ctx context.Context, report *domain.ReconcileReport, log *zap.Logger) error {
	list, err := uc.accounts.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for _, acc := range list {
		drift, err := uc.accounts.RecomputeStats(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("recompute stats of %s: %w", acc.ID, err)
		}
		if drift == nil {
			continue
		}
		report.AccountsCorrected++
		log.Warn("account counters corrected",
			zap.String("account_id", acc.ID),
			zap.Int64("active_was", drift.Before.ActiveAssignedContacts),
			zap.Int64("active_now", drift.After.ActiveAssignedContacts),
			zap.Int64("calls_was", drift.Before.TotalCallsMade),
			zap.Int64("calls_now", drift.After.TotalCallsMade))
	}
	return nil
}
