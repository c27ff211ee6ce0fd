package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	}
	return "", false
}

type AssignmentStatus string

const (
	AssignmentActive  AssignmentStatus = "active"
	AssignmentRemoved AssignmentStatus = "removed"
)

// Assignment is one entry of an account's assigned contacts. Entries are
// soft deleted: unassignment flips Status to removed and stamps RemovedAt.
type Assignment struct {
	ContactID  string           `json:"contactId"`
	AssignedAt time.Time        `json:"assignedAt"`
	Status     AssignmentStatus `json:"status"`
	RemovedAt  *time.Time       `json:"removedAt,omitempty"`
}

// AccountStats are counters maintained incrementally by the assignment and
// call-status flows and corrected by reconciliation.
type AccountStats struct {
	LastActiveAt           *time.Time `json:"lastActiveAt,omitempty"`
	LastAssignmentAt       *time.Time `json:"lastAssignmentAt,omitempty"`
	TotalCallsMade         int64      `json:"totalCallsMade"`
	UniqueContactsCalled   int64      `json:"uniqueContactsCalled"`
	TotalAssignedContacts  int64      `json:"totalAssignedContacts"`
	ActiveAssignedContacts int64      `json:"activeAssignedContacts"`
}

type Account struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Role         Role         `json:"role"`
	PasswordHash string       `json:"-"`
	Stats        AccountStats `json:"stats"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type AccountSummary struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Role                 Role       `json:"role"`
	AssignedCount        int64      `json:"assignedCount"`
	TotalCallsMade       int64      `json:"totalCallsMade"`
	UniqueContactsCalled int64      `json:"uniqueContactsCalled"`
	Pending              int64      `json:"pending"`
	LastActiveAt         *time.Time `json:"lastActiveAt,omitempty"`
	LastAssignmentAt     *time.Time `json:"lastAssignmentAt,omitempty"`
}

func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:                   a.ID,
		Name:                 a.Name,
		Email:                a.Email,
		Role:                 a.Role,
		AssignedCount:        a.Stats.ActiveAssignedContacts,
		TotalCallsMade:       a.Stats.TotalCallsMade,
		UniqueContactsCalled: a.Stats.UniqueContactsCalled,
		Pending:              a.Stats.Pending(),
		LastActiveAt:         a.Stats.LastActiveAt,
		LastAssignmentAt:     a.Stats.LastAssignmentAt,
	}
}

// Pending is active assignments not yet called, never negative.
func (s AccountStats) Pending() int64 {
	if p := s.ActiveAssignedContacts - s.UniqueContactsCalled; p > 0 {
		return p
	}
	return 0
}

// StatsView is the body of the per-account stats endpoint.
type StatsView struct {
	AccountID             string     `json:"accountId"`
	AssignedContacts      int64      `json:"assignedContacts"`
	TotalAssignedContacts int64      `json:"totalAssignedContacts"`
	TotalCallsMade        int64      `json:"totalCallsMade"`
	UniqueContactsCalled  int64      `json:"uniqueContactsCalled"`
	Pending               int64      `json:"pending"`
	LastActiveAt          *time.Time `json:"lastActiveAt,omitempty"`
	LastAssignmentAt      *time.Time `json:"lastAssignmentAt,omitempty"`
}

func (a *Account) StatsView() StatsView {
	return StatsView{
		AccountID:             a.ID,
		AssignedContacts:      a.Stats.ActiveAssignedContacts,
		TotalAssignedContacts: a.Stats.TotalAssignedContacts,
		TotalCallsMade:        a.Stats.TotalCallsMade,
		UniqueContactsCalled:  a.Stats.UniqueContactsCalled,
		Pending:               a.Stats.Pending(),
		LastActiveAt:          a.Stats.LastActiveAt,
		LastAssignmentAt:      a.Stats.LastAssignmentAt,
	}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	AccountID string
	Role      Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanAccess reports whether p may read data owned by accountID.
func (p Principal) CanAccess(accountID string) bool {
	return p.IsAdmin() || p.AccountID == accountID
}

type LoginResult struct {
	Token   string         `json:"token"`
	Account AccountSummary `json:"account"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}
