package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/internal/repository/repotest"
	"callcenter-service/pkg/xerrors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. The database
// is wiped between tests, so point it at a throwaway instance.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE account_assignments, contact_phone_statuses, contacts, accounts CASCADE`)
	require.NoError(t, err)
}

func TestRepositoryContract(t *testing.T) {
	pool := testPool(t)
	repotest.Run(t, func(t *testing.T) (repository.AccountRepository, repository.ContactRepository) {
		truncate(t, pool)
		return NewAccountRepository(pool), NewContactRepository(pool)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := testPool(t)
	require.NoError(t, Migrate(context.Background(), pool))
}

func TestAssignedFlagMustMatchOwner(t *testing.T) {
	pool := testPool(t)
	truncate(t, pool)
	ctx := context.Background()
	accounts, contacts := NewAccountRepository(pool), NewContactRepository(pool)

	require.NoError(t, accounts.Create(ctx, &domain.Account{ID: "u1", Email: "u1@callcenter.test", Name: "u1", Role: domain.RoleUser, PasswordHash: "x"}))
	require.NoError(t, contacts.Create(ctx, &domain.Contact{ID: "c1", SerialNo: 1, PMNo: "PM-1", EnrollmentNo: "EN-1", Name: "One", Phones: []string{"5551"}}))

	_, err := pool.Exec(ctx, `UPDATE contacts SET is_assigned = TRUE WHERE id = 'c1'`)
	assert.Equal(t, xerrors.PGCheckViolation, xerrors.ParsePGErrorCode(err))

	_, err = pool.Exec(ctx, `UPDATE contacts SET assigned_to = 'u1' WHERE id = 'c1'`)
	assert.Equal(t, xerrors.PGCheckViolation, xerrors.ParsePGErrorCode(err))

	_, err = contacts.ClaimUnassigned(ctx, "u1", []string{"c1"}, time.Now().UTC())
	require.NoError(t, err)
	c, err := contacts.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.IsAssigned)
}

func TestDeleteRefusesAccountStillHoldingContacts(t *testing.T) {
	pool := testPool(t)
	truncate(t, pool)
	ctx := context.Background()
	accounts, contacts := NewAccountRepository(pool), NewContactRepository(pool)

	require.NoError(t, accounts.Create(ctx, &domain.Account{ID: "u1", Email: "u1@callcenter.test", Name: "u1", Role: domain.RoleUser, PasswordHash: "x"}))
	require.NoError(t, contacts.Create(ctx, &domain.Contact{ID: "c1", SerialNo: 1, PMNo: "PM-1", EnrollmentNo: "EN-1", Name: "One", Phones: []string{"5551"}}))
	_, err := contacts.ClaimUnassigned(ctx, "u1", []string{"c1"}, time.Now().UTC())
	require.NoError(t, err)

	err = accounts.Delete(ctx, "u1")
	assert.ErrorIs(t, err, xerrors.ErrAccountHasContacts)
	assert.ErrorIs(t, err, xerrors.ErrConflict)
}
