// Package repotest checks the behaviour every repository implementation must
// share. Store packages call Run from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns empty repositories for one subtest.
type Factory func(t *testing.T) (repository.AccountRepository, repository.ContactRepository)

type repos struct {
	accounts repository.AccountRepository
	contacts repository.ContactRepository
}

// Run executes the contract against stores built by newRepos. Subtests run
// sequentially so a factory may reset shared state.
func Run(t *testing.T, newRepos Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, r repos)
	}{
		{"EmailIsUniqueIgnoringCase", testEmailIsUniqueIgnoringCase},
		{"DeleteUnknownAccount", testDeleteUnknownAccount},
		{"DeleteKeepsCallHistory", testDeleteKeepsCallHistory},
		{"ClaimIsExclusiveUnderContention", testClaimIsExclusive},
		{"ReleaseReturnsPreviousOwner", testReleaseReturnsPreviousOwner},
		{"QueryOrdersBySerialAndFilters", testQueryOrdersAndFilters},
		{"QuerySearchIgnoresCase", testQuerySearchIgnoresCase},
		{"ListActiveForAccount", testListActiveForAccount},
		{"PhoneStatusTransitions", testPhoneStatusTransitions},
		{"CallDeltaFloorsAndRecomputesUnique", testCallDelta},
		{"EntriesAreSoftDeleted", testEntriesAreSoftDeleted},
		{"OneActiveEntryPerContact", testOneActiveEntryPerContact},
		{"RemoveSkipsContactsStillHeld", testRemoveSkipsHeld},
		{"RestoreOnlyForCurrentOwner", testRestoreOnlyForOwner},
		{"RecomputeStatsCorrectsDrift", testRecomputeStats},
		{"OwnersFlagsAndStats", testOwnersFlagsAndStats},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, c := newRepos(t)
			tc.fn(t, repos{accounts: a, contacts: c})
		})
	}
}

// seed creates users u1 and u2 and contacts c1..cn whose serials run in
// reverse, so c1 sorts last.
func seed(t *testing.T, r repos, contacts int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, r.accounts.Create(ctx, &domain.Account{
			ID:           id,
			Email:        id + "@callcenter.test",
			Name:         id,
			Role:         domain.RoleUser,
			PasswordHash: "x",
			CreatedAt:    now,
			UpdatedAt:    now,
		}))
	}
	for i := 1; i <= contacts; i++ {
		require.NoError(t, r.contacts.Create(ctx, &domain.Contact{
			ID:           fmt.Sprintf("c%d", i),
			SerialNo:     int64(contacts - i + 1),
			PMNo:         fmt.Sprintf("PM-%d", i),
			EnrollmentNo: fmt.Sprintf("EN-%d", i),
			Name:         fmt.Sprintf("Name %d", i),
			Phones:       []string{fmt.Sprintf("555%d", i)},
			CreatedAt:    now,
			UpdatedAt:    now,
		}))
	}
}

func stats(t *testing.T, r repos, id string) domain.AccountStats {
	t.Helper()
	a, err := r.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.Stats
}

func activeCount(t *testing.T, r repos, accountID string) int {
	t.Helper()
	entries, err := r.accounts.ListAssignments(context.Background(), accountID)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Status == domain.AssignmentActive {
			n++
		}
	}
	return n
}

// assign claims ids for accountID and records the entries, the way the
// assignment flow does.
func assign(t *testing.T, r repos, accountID string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	claimed, err := r.contacts.ClaimUnassigned(ctx, accountID, ids, now)
	require.NoError(t, err)
	require.ElementsMatch(t, ids, claimed)
	require.NoError(t, r.accounts.AppendAssignments(ctx, accountID, ids, now))
}

func testEmailIsUniqueIgnoringCase(t *testing.T, r repos) {
	ctx := context.Background()
	require.NoError(t, r.accounts.Create(ctx, &domain.Account{ID: "a", Email: "Ann@x.io", Name: "Ann", Role: domain.RoleUser, PasswordHash: "x"}))
	err := r.accounts.Create(ctx, &domain.Account{ID: "b", Email: "ann@X.io", Name: "Ann", Role: domain.RoleUser, PasswordHash: "x"})
	assert.ErrorIs(t, err, xerrors.ErrEmailAlreadyInUse)

	got, err := r.accounts.GetByEmail(ctx, "ANN@x.io")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func testDeleteUnknownAccount(t *testing.T, r repos) {
	assert.ErrorIs(t, r.accounts.Delete(context.Background(), "ghost"), xerrors.ErrAccountNotFound)
	_, err := r.accounts.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
}

func testDeleteKeepsCallHistory(t *testing.T, r repos) {
	seed(t, r, 1)
	ctx := context.Background()
	_, err := r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: true, By: "u2", At: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, r.accounts.Delete(ctx, "u2"))

	c, err := r.contacts.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, c.PhoneStatuses, 1)
	assert.True(t, c.PhoneStatuses[0].Called)
	assert.Nil(t, c.PhoneStatuses[0].CalledBy)
}

func testClaimIsExclusive(t *testing.T, r repos) {
	seed(t, r, 1)

	var wg sync.WaitGroup
	wins := make(chan string, 2)
	for _, acc := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(acc string) {
			defer wg.Done()
			got, err := r.contacts.ClaimUnassigned(context.Background(), acc, []string{"c1"}, time.Now().UTC())
			assert.NoError(t, err)
			if len(got) == 1 {
				wins <- acc
			}
		}(acc)
	}
	wg.Wait()
	close(wins)
	require.Len(t, wins, 1)

	winner := <-wins
	c, err := r.contacts.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, c.AssignedTo)
	assert.Equal(t, winner, *c.AssignedTo)
	assert.True(t, c.IsAssigned)
}

func testReleaseReturnsPreviousOwner(t *testing.T, r repos) {
	seed(t, r, 2)
	ctx := context.Background()
	_, err := r.contacts.ClaimUnassigned(ctx, "u1", []string{"c1"}, time.Now().UTC())
	require.NoError(t, err)

	owners, err := r.contacts.Release(ctx, []string{"c1", "c2", "missing"})
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "c1", owners[0].ContactID)
	assert.Equal(t, "u1", owners[0].AccountID)

	c, err := r.contacts.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, c.AssignedTo)
	assert.False(t, c.IsAssigned)
	assert.Nil(t, c.AssignedAt)
}

func testQueryOrdersAndFilters(t *testing.T, r repos) {
	seed(t, r, 5)
	ctx := context.Background()
	_, err := r.contacts.ClaimUnassigned(ctx, "u1", []string{"c1", "c2"}, time.Now().UTC())
	require.NoError(t, err)

	all, total, err := r.contacts.Query(ctx, domain.ContactQuery{PageRequest: domain.PageRequest{Page: 1, PageSize: 10}, Filter: domain.FilterAll})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].SerialNo, all[i].SerialNo)
	}

	_, total, err = r.contacts.Query(ctx, domain.ContactQuery{PageRequest: domain.PageRequest{Page: 1, PageSize: 10}, Filter: domain.FilterUnassigned})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	_, total, err = r.contacts.Query(ctx, domain.ContactQuery{PageRequest: domain.PageRequest{Page: 1, PageSize: 10}, Filter: domain.FilterAssigned})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	mine, total, err := r.contacts.Query(ctx, domain.ContactQuery{PageRequest: domain.PageRequest{Page: 2, PageSize: 1}, Filter: domain.FilterByAccount, AccountID: "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].ID)
}

func testQuerySearchIgnoresCase(t *testing.T, r repos) {
	seed(t, r, 3)
	ctx := context.Background()
	got, total, err := r.contacts.Query(ctx, domain.ContactQuery{
		PageRequest: domain.PageRequest{Page: 1, PageSize: 10, Search: "NAME 2"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)

	_, total, err = r.contacts.Query(ctx, domain.ContactQuery{
		PageRequest: domain.PageRequest{Page: 1, PageSize: 10, Search: "%"},
	})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testListActiveForAccount(t *testing.T, r repos) {
	seed(t, r, 3)
	ctx := context.Background()
	assign(t, r, "u1", "c1", "c2", "c3")
	_, err := r.contacts.Release(ctx, []string{"c3"})
	require.NoError(t, err)
	_, err = r.accounts.RemoveAssignments(ctx, "u1", []string{"c3"}, time.Now().UTC())
	require.NoError(t, err)

	list, total, err := r.contacts.ListActiveForAccount(ctx, "u1", domain.PageRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)

	list, total, err = r.contacts.ListActiveForAccount(ctx, "u1", domain.PageRequest{Page: 1, PageSize: 10, Search: "pm-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)
}

func testPhoneStatusTransitions(t *testing.T, r repos) {
	seed(t, r, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	tr, err := r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: true, By: "u1", At: now})
	require.NoError(t, err)
	assert.True(t, tr.Changed)

	c, err := r.contacts.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, c.PhoneStatuses, 1)
	ps := c.PhoneStatuses[0]
	assert.Equal(t, "5551", ps.Number)
	assert.True(t, ps.Called)
	require.NotNil(t, ps.CalledBy)
	assert.Equal(t, "u1", *ps.CalledBy)
	require.NotNil(t, ps.LastCalledAt)
	assert.WithinDuration(t, now, *ps.LastCalledAt, time.Second)

	tr, err = r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: true, By: "u1", At: now})
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	tr, err = r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: false, By: "u2", At: now})
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	require.NotNil(t, tr.PreviousCalledBy)
	assert.Equal(t, "u1", *tr.PreviousCalledBy)

	_, err = r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "000", Called: true, By: "u1", At: now})
	assert.ErrorIs(t, err, xerrors.ErrPhoneNotFound)
	_, err = r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "nope", Number: "5551", Called: true, By: "u1", At: now})
	assert.ErrorIs(t, err, xerrors.ErrContactNotFound)
	_, err = r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: true, By: "u1", At: now, RequireAssignee: true})
	assert.ErrorIs(t, err, xerrors.ErrNotAssignee)
}

func testCallDelta(t *testing.T, r repos) {
	seed(t, r, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c2", Number: "5552", Called: true, By: "u1", At: now})
	require.NoError(t, err)
	require.NoError(t, r.accounts.ApplyCallDelta(ctx, "u1", -5, &now))

	s := stats(t, r, "u1")
	assert.EqualValues(t, 0, s.TotalCallsMade)
	assert.EqualValues(t, 1, s.UniqueContactsCalled)
	require.NotNil(t, s.LastActiveAt)

	assert.ErrorIs(t, r.accounts.ApplyCallDelta(ctx, "ghost", 1, nil), xerrors.ErrAccountNotFound)
}

func testEntriesAreSoftDeleted(t *testing.T, r repos) {
	seed(t, r, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.accounts.AppendAssignments(ctx, "u1", []string{"c1", "c2"}, now))
	n, err := r.accounts.RemoveAssignments(ctx, "u1", []string{"c1"}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := r.accounts.ListAssignments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AssignmentRemoved, entries[0].Status)
	assert.NotNil(t, entries[0].RemovedAt)
	assert.Equal(t, domain.AssignmentActive, entries[1].Status)

	s := stats(t, r, "u1")
	assert.EqualValues(t, 2, s.TotalAssignedContacts)
	assert.EqualValues(t, 1, s.ActiveAssignedContacts)

	assert.ErrorIs(t, r.accounts.AppendAssignments(ctx, "ghost", []string{"c1"}, now), xerrors.ErrAccountNotFound)
}

func testOneActiveEntryPerContact(t *testing.T, r repos) {
	seed(t, r, 1)
	ctx := context.Background()
	assign(t, r, "u1", "c1")

	// released but the entry of u1 is not closed yet
	_, err := r.contacts.Release(ctx, []string{"c1"})
	require.NoError(t, err)
	assign(t, r, "u2", "c1")

	assert.Zero(t, activeCount(t, r, "u1"))
	assert.Equal(t, 1, activeCount(t, r, "u2"))
	assert.EqualValues(t, 0, stats(t, r, "u1").ActiveAssignedContacts)

	// a repeated write for the same owner adds nothing
	require.NoError(t, r.accounts.AppendAssignments(ctx, "u2", []string{"c1", "c1"}, time.Now().UTC()))
	s := stats(t, r, "u2")
	assert.EqualValues(t, 1, s.ActiveAssignedContacts)
	assert.EqualValues(t, 1, s.TotalAssignedContacts)

	active, err := r.accounts.ActiveAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "u2", active[0].AccountID)
}

func testRemoveSkipsHeld(t *testing.T, r repos) {
	seed(t, r, 1)
	ctx := context.Background()
	assign(t, r, "u1", "c1")

	n, err := r.accounts.RemoveAssignments(ctx, "u1", []string{"c1"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, activeCount(t, r, "u1"))

	_, err = r.contacts.Release(ctx, []string{"c1"})
	require.NoError(t, err)
	n, err = r.accounts.RemoveAssignments(ctx, "u1", []string{"c1"}, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.EqualValues(t, 0, stats(t, r, "u1").ActiveAssignedContacts)
}

func testRestoreOnlyForOwner(t *testing.T, r repos) {
	seed(t, r, 2)
	ctx := context.Background()
	at := time.Now().UTC()
	_, err := r.contacts.ClaimUnassigned(ctx, "u1", []string{"c1"}, at)
	require.NoError(t, err)

	ok, err := r.accounts.RestoreAssignment(ctx, domain.ContactOwner{ContactID: "c1", AccountID: "u2", AssignedAt: at})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.accounts.RestoreAssignment(ctx, domain.ContactOwner{ContactID: "c2", AccountID: "u1", AssignedAt: at})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.accounts.RestoreAssignment(ctx, domain.ContactOwner{ContactID: "c1", AccountID: "u1", AssignedAt: at})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.accounts.RestoreAssignment(ctx, domain.ContactOwner{ContactID: "c1", AccountID: "u1", AssignedAt: at})
	require.NoError(t, err)
	assert.False(t, ok)

	s := stats(t, r, "u1")
	assert.EqualValues(t, 1, s.ActiveAssignedContacts)
	assert.EqualValues(t, 1, s.TotalAssignedContacts)
	require.NotNil(t, s.LastAssignmentAt)
	assert.Equal(t, 1, activeCount(t, r, "u1"))
}

func testRecomputeStats(t *testing.T, r repos) {
	seed(t, r, 2)
	ctx := context.Background()
	now := time.Now().UTC()
	assign(t, r, "u1", "c1", "c2")
	_, err := r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c1", Number: "5551", Called: true, By: "u1", At: now})
	require.NoError(t, err)
	require.NoError(t, r.accounts.ApplyCallDelta(ctx, "u1", 1, &now))

	drift, err := r.accounts.RecomputeStats(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, drift)

	require.NoError(t, r.accounts.ApplyCallDelta(ctx, "u1", 4, &now))
	drift, err = r.accounts.RecomputeStats(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, drift)
	assert.EqualValues(t, 5, drift.Before.TotalCallsMade)
	assert.Equal(t, domain.Counters{
		TotalAssignedContacts:  2,
		ActiveAssignedContacts: 2,
		TotalCallsMade:         1,
		UniqueContactsCalled:   1,
	}, drift.After)
	assert.EqualValues(t, 1, stats(t, r, "u1").TotalCallsMade)

	drift, err = r.accounts.RecomputeStats(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, drift)
}

func testOwnersFlagsAndStats(t *testing.T, r repos) {
	seed(t, r, 3)
	ctx := context.Background()
	assign(t, r, "u1", "c1")
	assign(t, r, "u2", "c2")
	_, err := r.contacts.SetPhoneCalled(ctx, domain.CallUpdate{ContactID: "c2", Number: "5552", Called: true, By: "u2", At: time.Now().UTC()})
	require.NoError(t, err)

	owners, err := r.contacts.AssignedOwners(ctx)
	require.NoError(t, err)
	got := map[string]string{}
	for _, o := range owners {
		got[o.ContactID] = o.AccountID
	}
	assert.Equal(t, map[string]string{"c1": "u1", "c2": "u2"}, got)

	ids, err := r.contacts.IDsAssignedTo(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)

	fixed, err := r.contacts.FixAssignedFlags(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)

	st, err := r.contacts.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 2, st.Assigned)
	assert.EqualValues(t, 1, st.Unassigned)
	assert.EqualValues(t, 1, st.Called)
	assert.Equal(t, []domain.AccountContactCount{{AccountID: "u1", Count: 1}, {AccountID: "u2", Count: 1}}, st.PerAccount)
}
