package repository

import (
	"context"
	"time"

	"callcenter-service/internal/domain"
)

// AccountRepository persists accounts, their assignment entries and counters.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// List returns accounts ordered by name then email. A nil role lists all.
	List(ctx context.Context, role *domain.Role) ([]*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error

	// AppendAssignments adds an active entry for each contact that has none
	// and bumps the assignment counters by the entries added, in one atomic
	// write. Active entries other accounts still hold for these contacts are
	// closed first.
	AppendAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) error
	// RemoveAssignments marks active entries removed for those contacts that
	// are not currently assigned to accountID, and returns how many flipped.
	// Contact ownership is checked in the same write.
	RemoveAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) (int64, error)
	ListAssignments(ctx context.Context, accountID string) ([]domain.Assignment, error)
	// ActiveAssignments lists every active entry across all accounts.
	ActiveAssignments(ctx context.Context) ([]domain.ContactOwner, error)
	// RestoreAssignment adds the missing active entry for owner if the contact
	// is still assigned to owner.AccountID and has no active entry. It reports
	// whether an entry was added.
	RestoreAssignment(ctx context.Context, owner domain.ContactOwner) (bool, error)

	// ApplyCallDelta moves totalCallsMade by delta (floored at zero) and
	// recomputes uniqueContactsCalled from current phone statuses.
	ApplyCallDelta(ctx context.Context, accountID string, delta int64, activeAt *time.Time) error
	// RecomputeStats recounts accountID's counters from its assignment
	// entries and phone statuses inside the write. It returns nil when the
	// counters already matched or the account is gone.
	RecomputeStats(ctx context.Context, accountID string) (*domain.StatsDrift, error)
}

// ContactRepository persists contacts and their per-phone call status.
type ContactRepository interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	// GetMany returns the contacts that exist among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Contact, error)
	// Query pages contacts ordered by serial number then id.
	Query(ctx context.Context, q domain.ContactQuery) ([]*domain.Contact, int64, error)
	// ListActiveForAccount pages contacts with an active entry on accountID.
	ListActiveForAccount(ctx context.Context, accountID string, p domain.PageRequest) ([]*domain.Contact, int64, error)
	IDsAssignedTo(ctx context.Context, accountID string) ([]string, error)

	// ClaimUnassigned sets assignedTo on those ids that are still unassigned
	// and returns the ids it claimed. Already-assigned contacts are untouched.
	ClaimUnassigned(ctx context.Context, accountID string, ids []string, at time.Time) ([]string, error)
	// Release clears assignment on those ids that are assigned and returns the
	// previous owner of each released contact.
	Release(ctx context.Context, ids []string) ([]domain.ContactOwner, error)

	SetPhoneCalled(ctx context.Context, u domain.CallUpdate) (domain.CallTransition, error)
	Stats(ctx context.Context) (*domain.ContactStats, error)

	AssignedOwners(ctx context.Context) ([]domain.ContactOwner, error)
	FixAssignedFlags(ctx context.Context) (int64, error)
}
