// Package memory is a process-local store used for development and tests.
// A single mutex guards all state, so every method is atomic.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/pkg/xerrors"

	"golang.org/x/text/cases"
)

type entry struct {
	accountID string
	a         domain.Assignment
}

type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	emails   map[string]string
	entries  map[string][]*entry // by account id
	active   map[string]*entry   // by contact id; at most one active entry per contact
	contacts map[string]*domain.Contact
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		emails:   make(map[string]string),
		entries:  make(map[string][]*entry),
		active:   make(map[string]*entry),
		contacts: make(map[string]*domain.Contact),
	}
}

func tp(t time.Time) *time.Time { return &t }

func sp(s string) *string { return &s }

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.Stats.LastActiveAt != nil {
		c.Stats.LastActiveAt = tp(*a.Stats.LastActiveAt)
	}
	if a.Stats.LastAssignmentAt != nil {
		c.Stats.LastAssignmentAt = tp(*a.Stats.LastAssignmentAt)
	}
	return &c
}

func copyContact(c *domain.Contact) *domain.Contact {
	out := *c
	out.Phones = append([]string{}, c.Phones...)
	if c.AssignedTo != nil {
		out.AssignedTo = sp(*c.AssignedTo)
	}
	if c.AssignedAt != nil {
		out.AssignedAt = tp(*c.AssignedAt)
	}
	out.PhoneStatuses = make([]domain.PhoneStatus, len(c.PhoneStatuses))
	for i, ps := range c.PhoneStatuses {
		out.PhoneStatuses[i] = ps
		if ps.CalledBy != nil {
			out.PhoneStatuses[i].CalledBy = sp(*ps.CalledBy)
		}
		if ps.LastCalledAt != nil {
			out.PhoneStatuses[i].LastCalledAt = tp(*ps.LastCalledAt)
		}
	}
	return &out
}

// ----- accounts -----

func (s *Store) Create(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, ok := s.emails[key]; ok {
		return xerrors.ErrEmailAlreadyInUse
	}
	s.accounts[a.ID] = copyAccount(a)
	s.emails[key] = a.ID
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

func (s *Store) List(ctx context.Context, role *domain.Role) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if role != nil && a.Role != *role {
			continue
		}
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	delete(s.emails, strings.ToLower(a.Email))
	delete(s.accounts, id)
	for _, e := range s.entries[id] {
		if s.active[e.a.ContactID] == e {
			delete(s.active, e.a.ContactID)
		}
	}
	delete(s.entries, id)
	for _, c := range s.contacts {
		for i := range c.PhoneStatuses {
			if ps := &c.PhoneStatuses[i]; ps.CalledBy != nil && *ps.CalledBy == id {
				ps.CalledBy = nil
			}
		}
	}
	return nil
}

// closeEntry marks e removed and takes it off its account's active count.
func (s *Store) closeEntry(e *entry, at time.Time) {
	e.a.Status = domain.AssignmentRemoved
	e.a.RemovedAt = tp(at)
	if s.active[e.a.ContactID] == e {
		delete(s.active, e.a.ContactID)
	}
	if a, ok := s.accounts[e.accountID]; ok {
		a.Stats.ActiveAssignedContacts--
		if a.Stats.ActiveAssignedContacts < 0 {
			a.Stats.ActiveAssignedContacts = 0
		}
		a.UpdatedAt = at
	}
}

func (s *Store) addEntry(accountID, contactID string, at time.Time) {
	e := &entry{
		accountID: accountID,
		a:         domain.Assignment{ContactID: contactID, AssignedAt: at, Status: domain.AssignmentActive},
	}
	s.entries[accountID] = append(s.entries[accountID], e)
	s.active[contactID] = e
}

func (s *Store) AppendAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	var n int64
	for _, cid := range contactIDs {
		if e := s.active[cid]; e != nil {
			if e.accountID == accountID {
				continue
			}
			s.closeEntry(e, at)
		}
		s.addEntry(accountID, cid, at)
		n++
	}
	a.Stats.TotalAssignedContacts += n
	a.Stats.ActiveAssignedContacts += n
	a.Stats.LastAssignmentAt = tp(at)
	a.UpdatedAt = at
	return nil
}

func (s *Store) RemoveAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return 0, xerrors.ErrAccountNotFound
	}
	var n int64
	for _, cid := range contactIDs {
		e := s.active[cid]
		if e == nil || e.accountID != accountID {
			continue
		}
		if c, ok := s.contacts[cid]; ok && c.AssignedTo != nil && *c.AssignedTo == accountID {
			continue
		}
		s.closeEntry(e, at)
		n++
	}
	return n, nil
}

func (s *Store) ListAssignments(ctx context.Context, accountID string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	out := make([]domain.Assignment, 0, len(s.entries[accountID]))
	for _, e := range s.entries[accountID] {
		a := e.a
		if a.RemovedAt != nil {
			a.RemovedAt = tp(*a.RemovedAt)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) ActiveAssignments(ctx context.Context) ([]domain.ContactOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ContactOwner, 0, len(s.active))
	for cid, e := range s.active {
		out = append(out, domain.ContactOwner{ContactID: cid, AccountID: e.accountID, AssignedAt: e.a.AssignedAt})
	}
	return out, nil
}

func (s *Store) RestoreAssignment(ctx context.Context, o domain.ContactOwner) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[o.AccountID]
	if !ok {
		return false, xerrors.ErrAccountNotFound
	}
	c, ok := s.contacts[o.ContactID]
	if !ok || c.AssignedTo == nil || *c.AssignedTo != o.AccountID || s.active[o.ContactID] != nil {
		return false, nil
	}
	s.addEntry(o.AccountID, o.ContactID, o.AssignedAt)
	a.Stats.TotalAssignedContacts++
	a.Stats.ActiveAssignedContacts++
	if a.Stats.LastAssignmentAt == nil || o.AssignedAt.After(*a.Stats.LastAssignmentAt) {
		a.Stats.LastAssignmentAt = tp(o.AssignedAt)
	}
	return true, nil
}

func (s *Store) ApplyCallDelta(ctx context.Context, accountID string, delta int64, activeAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.Stats.TotalCallsMade += delta
	if a.Stats.TotalCallsMade < 0 {
		a.Stats.TotalCallsMade = 0
	}
	var unique int64
	for _, c := range s.contacts {
		if c.CalledBy(accountID) {
			unique++
		}
	}
	a.Stats.UniqueContactsCalled = unique
	if activeAt != nil {
		a.Stats.LastActiveAt = tp(*activeAt)
	}
	return nil
}

func countersOf(st domain.AccountStats) domain.Counters {
	return domain.Counters{
		TotalAssignedContacts:  st.TotalAssignedContacts,
		ActiveAssignedContacts: st.ActiveAssignedContacts,
		TotalCallsMade:         st.TotalCallsMade,
		UniqueContactsCalled:   st.UniqueContactsCalled,
	}
}

func (s *Store) RecomputeStats(ctx context.Context, accountID string) (*domain.StatsDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, nil
	}

	var after domain.Counters
	var last *time.Time
	for _, e := range s.entries[accountID] {
		after.TotalAssignedContacts++
		if e.a.Status == domain.AssignmentActive {
			after.ActiveAssignedContacts++
		}
		if last == nil || e.a.AssignedAt.After(*last) {
			last = tp(e.a.AssignedAt)
		}
	}
	for _, c := range s.contacts {
		for _, ps := range c.PhoneStatuses {
			if ps.Called && ps.CalledBy != nil && *ps.CalledBy == accountID {
				after.TotalCallsMade++
			}
		}
		if c.CalledBy(accountID) {
			after.UniqueContactsCalled++
		}
	}

	before := countersOf(a.Stats)
	if before == after {
		return nil, nil
	}
	a.Stats.TotalAssignedContacts = after.TotalAssignedContacts
	a.Stats.ActiveAssignedContacts = after.ActiveAssignedContacts
	a.Stats.TotalCallsMade = after.TotalCallsMade
	a.Stats.UniqueContactsCalled = after.UniqueContactsCalled
	if last != nil {
		a.Stats.LastAssignmentAt = last
	}
	a.UpdatedAt = time.Now().UTC()
	return &domain.StatsDrift{Before: before, After: after}, nil
}

// ForceStats writes counters directly; used to simulate drift.
func (s *Store) ForceStats(accountID string, c domain.Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[accountID]; ok {
		a.Stats.TotalAssignedContacts = c.TotalAssignedContacts
		a.Stats.ActiveAssignedContacts = c.ActiveAssignedContacts
		a.Stats.TotalCallsMade = c.TotalCallsMade
		a.Stats.UniqueContactsCalled = c.UniqueContactsCalled
	}
}

// ----- contacts -----

// Contacts exposes the contact half of the store under ContactRepository,
// whose method names overlap with the account half.
func (s *Store) Contacts() *ContactStore { return &ContactStore{s: s} }

type ContactStore struct{ s *Store }

func (cs *ContactStore) Create(ctx context.Context, c *domain.Contact) error {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; ok {
		return xerrors.ErrConflict
	}
	s.contacts[c.ID] = copyContact(c)
	return nil
}

func (cs *ContactStore) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, xerrors.ErrContactNotFound
	}
	return copyContact(c), nil
}

func (cs *ContactStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Contact, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.Contact, len(ids))
	for _, id := range ids {
		if c, ok := s.contacts[id]; ok {
			out[id] = copyContact(c)
		}
	}
	return out, nil
}

func sortContacts(list []*domain.Contact) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].SerialNo != list[j].SerialNo {
			return list[i].SerialNo < list[j].SerialNo
		}
		return list[i].ID < list[j].ID
	})
}

func paginate(list []*domain.Contact, p domain.PageRequest) []*domain.Contact {
	start := p.Offset()
	if start >= len(list) {
		return []*domain.Contact{}
	}
	end := start + p.PageSize
	if end > len(list) {
		end = len(list)
	}
	out := make([]*domain.Contact, 0, end-start)
	for _, c := range list[start:end] {
		out = append(out, copyContact(c))
	}
	return out
}

func matches(c *domain.Contact, needle string) bool {
	if needle == "" {
		return true
	}
	fold := cases.Fold()
	fields := append([]string{c.Name, c.PMNo, c.EnrollmentNo, c.Address, strconv.FormatInt(c.SerialNo, 10)}, c.Phones...)
	for _, f := range fields {
		if strings.Contains(fold.String(f), needle) {
			return true
		}
	}
	return false
}

func (cs *ContactStore) Query(ctx context.Context, q domain.ContactQuery) ([]*domain.Contact, int64, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := cases.Fold().String(strings.TrimSpace(q.Search))
	var hits []*domain.Contact
	for _, c := range s.contacts {
		switch q.Filter {
		case domain.FilterAssigned:
			if c.AssignedTo == nil {
				continue
			}
		case domain.FilterUnassigned:
			if c.AssignedTo != nil {
				continue
			}
		case domain.FilterByAccount:
			if c.AssignedTo == nil || *c.AssignedTo != q.AccountID {
				continue
			}
		}
		if !matches(c, needle) {
			continue
		}
		hits = append(hits, c)
	}
	sortContacts(hits)
	return paginate(hits, q.PageRequest), int64(len(hits)), nil
}

func (cs *ContactStore) ListActiveForAccount(ctx context.Context, accountID string, p domain.PageRequest) ([]*domain.Contact, int64, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := cases.Fold().String(strings.TrimSpace(p.Search))
	var hits []*domain.Contact
	for _, e := range s.entries[accountID] {
		if e.a.Status != domain.AssignmentActive {
			continue
		}
		c, ok := s.contacts[e.a.ContactID]
		if !ok || !matches(c, needle) {
			continue
		}
		hits = append(hits, c)
	}
	sortContacts(hits)
	return paginate(hits, p), int64(len(hits)), nil
}

func (cs *ContactStore) IDsAssignedTo(ctx context.Context, accountID string) ([]string, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, c := range s.contacts {
		if c.AssignedTo != nil && *c.AssignedTo == accountID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (cs *ContactStore) ClaimUnassigned(ctx context.Context, accountID string, ids []string, at time.Time) ([]string, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []string
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok || c.AssignedTo != nil {
			continue
		}
		c.AssignedTo = sp(accountID)
		c.IsAssigned = true
		c.AssignedAt = tp(at)
		c.UpdatedAt = at
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (cs *ContactStore) Release(ctx context.Context, ids []string) ([]domain.ContactOwner, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var released []domain.ContactOwner
	now := time.Now().UTC()
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok || c.AssignedTo == nil {
			continue
		}
		o := domain.ContactOwner{ContactID: id, AccountID: *c.AssignedTo}
		if c.AssignedAt != nil {
			o.AssignedAt = *c.AssignedAt
		}
		c.AssignedTo = nil
		c.IsAssigned = false
		c.AssignedAt = nil
		c.UpdatedAt = now
		released = append(released, o)
	}
	return released, nil
}

func (cs *ContactStore) SetPhoneCalled(ctx context.Context, u domain.CallUpdate) (domain.CallTransition, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[u.ContactID]
	if !ok {
		return domain.CallTransition{}, xerrors.ErrContactNotFound
	}
	if !c.HasPhone(u.Number) {
		return domain.CallTransition{}, xerrors.ErrPhoneNotFound
	}
	if u.RequireAssignee && (c.AssignedTo == nil || *c.AssignedTo != u.By) {
		return domain.CallTransition{}, xerrors.ErrNotAssignee
	}

	idx := -1
	for i := range c.PhoneStatuses {
		if c.PhoneStatuses[i].Number == u.Number {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.PhoneStatuses = append(c.PhoneStatuses, domain.PhoneStatus{Number: u.Number})
		idx = len(c.PhoneStatuses) - 1
	}
	ps := &c.PhoneStatuses[idx]
	if ps.Called == u.Called {
		return domain.CallTransition{}, nil
	}

	tr := domain.CallTransition{Changed: true}
	if u.Called {
		ps.Called = true
		ps.CalledBy = sp(u.By)
		ps.LastCalledAt = tp(u.At)
	} else {
		if ps.CalledBy != nil {
			tr.PreviousCalledBy = sp(*ps.CalledBy)
		}
		ps.Called = false
	}
	c.UpdatedAt = u.At
	return tr, nil
}

func (cs *ContactStore) Stats(ctx context.Context) (*domain.ContactStats, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &domain.ContactStats{PerAccount: []domain.AccountContactCount{}}
	per := map[string]int64{}
	for _, c := range s.contacts {
		st.Total++
		if c.AssignedTo != nil {
			st.Assigned++
			per[*c.AssignedTo]++
		} else {
			st.Unassigned++
		}
		if c.AnyCalled() {
			st.Called++
		}
	}
	for id, n := range per {
		st.PerAccount = append(st.PerAccount, domain.AccountContactCount{AccountID: id, Count: n})
	}
	sort.Slice(st.PerAccount, func(i, j int) bool { return st.PerAccount[i].AccountID < st.PerAccount[j].AccountID })
	return st, nil
}

func (cs *ContactStore) AssignedOwners(ctx context.Context) ([]domain.ContactOwner, error) {
	s := cs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContactOwner
	for id, c := range s.contacts {
		if c.AssignedTo == nil {
			continue
		}
		o := domain.ContactOwner{ContactID: id, AccountID: *c.AssignedTo}
		if c.AssignedAt != nil {
			o.AssignedAt = *c.AssignedAt
		}
		out = append(out, o)
	}
	return out, nil
}

func (cs *ContactStore) FixAssignedFlags(ctx context.Context) (int64, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.contacts {
		if want := c.AssignedTo != nil; c.IsAssigned != want {
			c.IsAssigned = want
			n++
		}
	}
	return n, nil
}

// ForceFlag writes isAssigned directly; used to simulate drift.
func (cs *ContactStore) ForceFlag(id string, v bool) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if c, ok := cs.s.contacts[id]; ok {
		c.IsAssigned = v
	}
}
