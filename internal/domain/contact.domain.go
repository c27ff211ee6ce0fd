package domain

import (
	"strings"
	"time"

	"callcenter-service/pkg/xerrors"
)

const MaxPhones = 4

type PhoneStatus struct {
	Number       string     `json:"number"`
	Called       bool       `json:"called"`
	CalledBy     *string    `json:"calledBy,omitempty"`
	LastCalledAt *time.Time `json:"lastCalledAt,omitempty"`
}

type Contact struct {
	ID            string        `json:"id"`
	SerialNo      int64         `json:"serialNo"`
	PMNo          string        `json:"pmNo"`
	EnrollmentNo  string        `json:"enrollmentNo"`
	Name          string        `json:"name"`
	Phones        []string      `json:"phones"`
	Address       string        `json:"address"`
	AssignedTo    *string       `json:"assignedTo"`
	IsAssigned    bool          `json:"isAssigned"`
	AssignedAt    *time.Time    `json:"assignedAt,omitempty"`
	PhoneStatuses []PhoneStatus `json:"phoneStatuses"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (c *Contact) HasPhone(number string) bool {
	for _, p := range c.Phones {
		if p == number {
			return true
		}
	}
	return false
}

func (c *Contact) Status(number string) (PhoneStatus, bool) {
	for _, ps := range c.PhoneStatuses {
		if ps.Number == number {
			return ps, true
		}
	}
	return PhoneStatus{}, false
}

// CalledBy reports whether any phone on c is marked called by accountID.
func (c *Contact) CalledBy(accountID string) bool {
	for _, ps := range c.PhoneStatuses {
		if ps.Called && ps.CalledBy != nil && *ps.CalledBy == accountID {
			return true
		}
	}
	return false
}

func (c *Contact) AnyCalled() bool {
	for _, ps := range c.PhoneStatuses {
		if ps.Called {
			return true
		}
	}
	return false
}

type NewContact struct {
	SerialNo     int64    `json:"serialNo"`
	PMNo         string   `json:"pmNo"`
	EnrollmentNo string   `json:"enrollmentNo"`
	Name         string   `json:"name"`
	Phones       []string `json:"phones"`
	Address      string   `json:"address"`
}

// Normalize trims fields, drops blank phones and validates the result.
func (n NewContact) Normalize() (NewContact, error) {
	out := NewContact{
		SerialNo:     n.SerialNo,
		PMNo:         strings.TrimSpace(n.PMNo),
		EnrollmentNo: strings.TrimSpace(n.EnrollmentNo),
		Name:         strings.TrimSpace(n.Name),
		Address:      strings.TrimSpace(n.Address),
		Phones:       []string{},
	}
	if out.SerialNo <= 0 {
		return out, xerrors.Invalid("serialNo", "must be a positive number")
	}
	if out.Name == "" {
		return out, xerrors.Invalid("name", "is required")
	}
	if out.PMNo == "" {
		return out, xerrors.Invalid("pmNo", "is required")
	}
	if out.EnrollmentNo == "" {
		return out, xerrors.Invalid("enrollmentNo", "is required")
	}
	seen := map[string]bool{}
	for _, p := range n.Phones {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if seen[p] {
			return out, xerrors.Invalid("phones", "duplicate number "+p)
		}
		seen[p] = true
		out.Phones = append(out.Phones, p)
	}
	if len(out.Phones) > MaxPhones {
		return out, xerrors.Invalid("phones", "at most 4 phone numbers are allowed")
	}
	return out, nil
}

// ContactOwner links a contact to the account holding it.
type ContactOwner struct {
	ContactID  string
	AccountID  string
	AssignedAt time.Time
}

// CallUpdate is a conditional phone-status write.
type CallUpdate struct {
	ContactID string
	Number    string
	Called    bool
	By        string
	At        time.Time
	// RequireAssignee rejects the write unless By is the contact's assignee.
	RequireAssignee bool
}

// CallTransition describes what a CallUpdate changed.
type CallTransition struct {
	Changed          bool
	PreviousCalledBy *string
}

type AccountContactCount struct {
	AccountID string `json:"accountId"`
	Count     int64  `json:"count"`
}

type ContactStats struct {
	Total      int64                 `json:"total"`
	Assigned   int64                 `json:"assigned"`
	Unassigned int64                 `json:"unassigned"`
	Called     int64                 `json:"called"`
	PerAccount []AccountContactCount `json:"perAccount"`
}
