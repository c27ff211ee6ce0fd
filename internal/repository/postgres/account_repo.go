package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepo struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) repository.AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `
	id, email, name, role, password_hash,
	last_active_at, last_assignment_at,
	total_calls_made, unique_contacts_called,
	total_assigned_contacts, active_assigned_contacts,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Role,
		&a.PasswordHash,
		&a.Stats.LastActiveAt,
		&a.Stats.LastAssignmentAt,
		&a.Stats.TotalCallsMade,
		&a.Stats.UniqueContactsCalled,
		&a.Stats.TotalAssignedContacts,
		&a.Stats.ActiveAssignedContacts,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) Create(ctx context.Context, a *domain.Account) error {
	const q = `
		INSERT INTO accounts (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.db.Exec(ctx, q, a.ID, a.Email, a.Name, a.Role, a.PasswordHash, a.CreatedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return xerrors.ErrEmailAlreadyInUse
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, q, id))
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.db.QueryRow(ctx, q, email))
}

func (r *accountRepo) List(ctx context.Context, role *domain.Role) ([]*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts`
	args := []interface{}{}
	if role != nil {
		q += ` WHERE role = $1`
		args = append(args, *role)
	}
	q += ` ORDER BY name, email`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		// a contact was claimed for this account after its release
		if xerrors.ParsePGErrorCode(err) == xerrors.PGForeignKeyViolation {
			return xerrors.ErrAccountHasContacts
		}
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepo) AppendAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// entries left behind by an unassign that has released the contact but
	// not yet closed its entry
	_, err = tx.Exec(ctx, `
		WITH stale AS (
			UPDATE account_assignments
			SET status = 'removed', removed_at = $3
			WHERE contact_id = ANY($2) AND status = 'active' AND account_id <> $1
			RETURNING account_id
		)
		UPDATE accounts a
		SET active_assigned_contacts = GREATEST(a.active_assigned_contacts - s.n, 0),
		    updated_at = $3
		FROM (SELECT account_id, COUNT(*) AS n FROM stale GROUP BY account_id) s
		WHERE a.id = s.account_id`, accountID, contactIDs, at)
	if err != nil {
		return fmt.Errorf("close stale assignment entries: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO account_assignments (account_id, contact_id, assigned_at, status)
		SELECT $1, cid, $3, 'active' FROM UNNEST($2::text[]) AS cid
		ON CONFLICT (contact_id) WHERE status = 'active' DO NOTHING`, accountID, contactIDs, at)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGForeignKeyViolation {
			return xerrors.ErrAccountNotFound
		}
		return fmt.Errorf("insert assignment entries: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE accounts
		SET total_assigned_contacts  = total_assigned_contacts + $2,
		    active_assigned_contacts = active_assigned_contacts + $2,
		    last_assignment_at       = $3,
		    updated_at               = $3
		WHERE id = $1`, accountID, tag.RowsAffected(), at)
	if err != nil {
		return fmt.Errorf("bump assignment counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return tx.Commit(ctx)
}

func (r *accountRepo) RemoveAssignments(ctx context.Context, accountID string, contactIDs []string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE account_assignments e
		SET status = 'removed', removed_at = $3
		WHERE e.account_id = $1 AND e.contact_id = ANY($2) AND e.status = 'active'
		  AND NOT EXISTS (
		      SELECT 1 FROM contacts c
		      WHERE c.id = e.contact_id AND c.assigned_to = e.account_id
		  )`, accountID, contactIDs, at)
	if err != nil {
		return 0, fmt.Errorf("remove assignment entries: %w", err)
	}
	n := tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE accounts
		SET active_assigned_contacts = GREATEST(active_assigned_contacts - $2, 0),
		    updated_at = $3
		WHERE id = $1`, accountID, n, at)
	if err != nil {
		return 0, fmt.Errorf("decrement assignment counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, xerrors.ErrAccountNotFound
	}
	return n, tx.Commit(ctx)
}

func (r *accountRepo) ListAssignments(ctx context.Context, accountID string) ([]domain.Assignment, error) {
	if _, err := r.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT contact_id, assigned_at, status, removed_at
		FROM account_assignments WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Assignment{}
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ContactID, &a.AssignedAt, &a.Status, &a.RemovedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountRepo) ActiveAssignments(ctx context.Context) ([]domain.ContactOwner, error) {
	rows, err := r.db.Query(ctx, `
		SELECT contact_id, account_id, assigned_at
		FROM account_assignments WHERE status = 'active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContactOwner
	for rows.Next() {
		var o domain.ContactOwner
		if err := rows.Scan(&o.ContactID, &o.AccountID, &o.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *accountRepo) RestoreAssignment(ctx context.Context, o domain.ContactOwner) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO account_assignments (account_id, contact_id, assigned_at, status)
		SELECT $1, c.id, $3, 'active' FROM contacts c
		WHERE c.id = $2 AND c.assigned_to = $1
		ON CONFLICT (contact_id) WHERE status = 'active' DO NOTHING`, o.AccountID, o.ContactID, o.AssignedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGForeignKeyViolation {
			return false, xerrors.ErrAccountNotFound
		}
		return false, fmt.Errorf("restore assignment entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE accounts
		SET total_assigned_contacts  = total_assigned_contacts + 1,
		    active_assigned_contacts = active_assigned_contacts + 1,
		    last_assignment_at       = GREATEST(last_assignment_at, $2),
		    updated_at               = NOW()
		WHERE id = $1`, o.AccountID, o.AssignedAt)
	if err != nil {
		return false, fmt.Errorf("bump assignment counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, xerrors.ErrAccountNotFound
	}
	return true, tx.Commit(ctx)
}

func (r *accountRepo) ApplyCallDelta(ctx context.Context, accountID string, delta int64, activeAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET total_calls_made = GREATEST(total_calls_made + $2, 0),
		    unique_contacts_called = (
		        SELECT COUNT(DISTINCT contact_id) FROM contact_phone_statuses
		        WHERE called AND called_by = $1
		    ),
		    last_active_at = COALESCE($3, last_active_at),
		    updated_at = NOW()
		WHERE id = $1`, accountID, delta, activeAt)
	if err != nil {
		return fmt.Errorf("apply call delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

// RecomputeStats locks the account row before counting, so the count runs on
// a snapshot taken after every concurrent counter write has committed.
func (r *accountRepo) RecomputeStats(ctx context.Context, accountID string) (*domain.StatsDrift, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var drift domain.StatsDrift
	err = tx.QueryRow(ctx, `
		SELECT total_assigned_contacts, active_assigned_contacts, total_calls_made, unique_contacts_called
		FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(
		&drift.Before.TotalAssignedContacts,
		&drift.Before.ActiveAssignedContacts,
		&drift.Before.TotalCallsMade,
		&drift.Before.UniqueContactsCalled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE accounts a
		SET total_assigned_contacts  = e.total,
		    active_assigned_contacts = e.active,
		    last_assignment_at       = COALESCE(e.last_at, a.last_assignment_at),
		    total_calls_made         = p.calls,
		    unique_contacts_called   = p.uniq,
		    updated_at               = NOW()
		FROM (
		    SELECT COUNT(*) AS total,
		           COUNT(*) FILTER (WHERE status = 'active') AS active,
		           MAX(assigned_at) AS last_at
		    FROM account_assignments WHERE account_id = $1
		) e, (
		    SELECT COUNT(*) AS calls, COUNT(DISTINCT contact_id) AS uniq
		    FROM contact_phone_statuses WHERE called AND called_by = $1
		) p
		WHERE a.id = $1
		  AND (a.total_assigned_contacts, a.active_assigned_contacts, a.total_calls_made, a.unique_contacts_called)
		      IS DISTINCT FROM (e.total, e.active, p.calls, p.uniq)
		RETURNING e.total, e.active, p.calls, p.uniq`, accountID).Scan(
		&drift.After.TotalAssignedContacts,
		&drift.After.ActiveAssignedContacts,
		&drift.After.TotalCallsMade,
		&drift.After.UniqueContactsCalled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tx.Commit(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("recompute stats: %w", err)
	}
	return &drift, tx.Commit(ctx)
}
