package domain

import "time"

type SkipReason string

const (
	SkipNotFound        SkipReason = "not_found"
	SkipAlreadyAssigned SkipReason = "already_assigned"
	SkipNotAssigned     SkipReason = "not_assigned"
)

type SkippedContact struct {
	ContactID string     `json:"contactId"`
	Reason    SkipReason `json:"reason"`
}

type AssignResult struct {
	AccountID     string           `json:"accountId"`
	AssignedCount int              `json:"assignedCount"`
	SkippedCount  int              `json:"skippedCount"`
	AssignedIDs   []string         `json:"assignedIds"`
	Skipped       []SkippedContact `json:"skipped"`
}

type UnassignResult struct {
	UnassignedCount      int              `json:"unassignedCount"`
	AffectedAccountCount int              `json:"affectedAccountCount"`
	SkippedCount         int              `json:"skippedCount"`
	UnassignedIDs        []string         `json:"unassignedIds"`
	Skipped              []SkippedContact `json:"skipped"`
}

type DeleteAccountResult struct {
	Deleted          string `json:"deleted"`
	ReleasedContacts int    `json:"releasedContacts"`
}

// Counters are the derived assignment and call counters of one account.
type Counters struct {
	TotalAssignedContacts  int64
	ActiveAssignedContacts int64
	TotalCallsMade         int64
	UniqueContactsCalled   int64
}

// StatsDrift is one account's counters before and after a recount.
type StatsDrift struct {
	Before Counters
	After  Counters
}

type ReconcileReport struct {
	RunID               string        `json:"runId"`
	StartedAt           time.Time     `json:"startedAt"`
	Duration            time.Duration `json:"durationNs"`
	EntriesRestored     int           `json:"entriesRestored"`
	OrphansRemoved      int           `json:"orphansRemoved"`
	FlagsFixed          int64         `json:"flagsFixed"`
	AccountsCorrected   int           `json:"accountsCorrected"`
	DanglingAssignments int           `json:"danglingAssignments"`
}
