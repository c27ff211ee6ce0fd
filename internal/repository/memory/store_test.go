package memory

import (
	"context"
	"testing"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (repository.AccountRepository, repository.ContactRepository) {
		s := NewStore()
		return s, s.Contacts()
	})
}

// Without foreign keys the memory store lets an account go while contacts
// still point at it; the reconciler reports those as dangling.
func TestDeleteLeavesHeldContactsAssigned(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &domain.Account{ID: "u1", Email: "u1@x.io", Role: domain.RoleUser}))
	require.NoError(t, s.Contacts().Create(ctx, &domain.Contact{ID: "c1", Phones: []string{"5551"}}))
	_, err := s.Contacts().ClaimUnassigned(ctx, "u1", []string{"c1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.AppendAssignments(ctx, "u1", []string{"c1"}, time.Now()))

	require.NoError(t, s.Delete(ctx, "u1"))

	owners, err := s.Contacts().AssignedOwners(ctx)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "u1", owners[0].AccountID)

	active, err := s.ActiveAssignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestForceHelpersCreateDrift(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &domain.Account{ID: "u1", Email: "u1@x.io", Role: domain.RoleUser}))
	require.NoError(t, s.Contacts().Create(ctx, &domain.Contact{ID: "c1", Phones: []string{"5551"}}))

	s.ForceStats("u1", domain.Counters{TotalCallsMade: 3})
	drift, err := s.RecomputeStats(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, drift)
	assert.EqualValues(t, 3, drift.Before.TotalCallsMade)
	assert.Zero(t, drift.After.TotalCallsMade)

	s.Contacts().ForceFlag("c1", true)
	fixed, err := s.Contacts().FixAssignedFlags(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fixed)
}
