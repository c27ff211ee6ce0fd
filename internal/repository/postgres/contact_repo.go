package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contactRepo struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) repository.ContactRepository {
	return &contactRepo{db: db}
}

// statusesExpr aggregates the phone statuses of contact c as JSON so a
// single row carries the whole contact.
const statusesExpr = `
	COALESCE((
		SELECT json_agg(json_build_object(
			'number', ps.number,
			'called', ps.called,
			'calledBy', ps.called_by,
			'lastCalledAt', ps.last_called_at
		) ORDER BY ps.number)
		FROM contact_phone_statuses ps WHERE ps.contact_id = c.id
	), '[]'::json)`

const contactColumns = `
	c.id, c.serial_no, c.pm_no, c.enrollment_no, c.name, c.phones, c.address,
	c.assigned_to, c.is_assigned, c.assigned_at, c.created_at, c.updated_at,` + statusesExpr

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(
		&c.ID,
		&c.SerialNo,
		&c.PMNo,
		&c.EnrollmentNo,
		&c.Name,
		&c.Phones,
		&c.Address,
		&c.AssignedTo,
		&c.IsAssigned,
		&c.AssignedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.PhoneStatuses,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrContactNotFound
		}
		return nil, err
	}
	if c.Phones == nil {
		c.Phones = []string{}
	}
	return &c, nil
}

func collectContacts(rows pgx.Rows) ([]*domain.Contact, error) {
	defer rows.Close()
	out := []*domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *contactRepo) Create(ctx context.Context, c *domain.Contact) error {
	const q = `
		INSERT INTO contacts (id, serial_no, pm_no, enrollment_no, name, phones, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	_, err := r.db.Exec(ctx, q, c.ID, c.SerialNo, c.PMNo, c.EnrollmentNo, c.Name, c.Phones, c.Address, c.CreatedAt)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == xerrors.PGUniqueViolation {
			return xerrors.ErrConflict
		}
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.id = $1`
	return scanContact(r.db.QueryRow(ctx, q, id))
}

func (r *contactRepo) GetMany(ctx context.Context, ids []string) (map[string]*domain.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.id = ANY($1)`
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	list, err := collectContacts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Contact, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// searchClause matches the needle against every text field of c.
func searchClause(pos int) string {
	p := fmt.Sprintf("$%d", pos)
	return `(c.name ILIKE ` + p +
		` OR c.pm_no ILIKE ` + p +
		` OR c.enrollment_no ILIKE ` + p +
		` OR c.address ILIKE ` + p +
		` OR c.serial_no::text ILIKE ` + p +
		` OR array_to_string(c.phones, ' ') ILIKE ` + p + `)`
}

func (r *contactRepo) Query(ctx context.Context, cq domain.ContactQuery) ([]*domain.Contact, int64, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	argPos := 1

	switch cq.Filter {
	case domain.FilterAssigned:
		where = append(where, "c.assigned_to IS NOT NULL")
	case domain.FilterUnassigned:
		where = append(where, "c.assigned_to IS NULL")
	case domain.FilterByAccount:
		where = append(where, fmt.Sprintf("c.assigned_to = $%d", argPos))
		args = append(args, cq.AccountID)
		argPos++
	}
	if s := strings.TrimSpace(cq.Search); s != "" {
		where = append(where, searchClause(argPos))
		args = append(args, likePattern(s))
		argPos++
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts c WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM contacts c WHERE %s ORDER BY c.serial_no, c.id LIMIT $%d OFFSET $%d`,
		contactColumns, cond, argPos, argPos+1)
	args = append(args, cq.PageSize, cq.Offset())
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query contacts: %w", err)
	}
	list, err := collectContacts(rows)
	return list, total, err
}

func (r *contactRepo) ListActiveForAccount(ctx context.Context, accountID string, p domain.PageRequest) ([]*domain.Contact, int64, error) {
	cond := `EXISTS (SELECT 1 FROM account_assignments e
		WHERE e.contact_id = c.id AND e.account_id = $1 AND e.status = 'active')`
	args := []interface{}{accountID}
	argPos := 2
	if s := strings.TrimSpace(p.Search); s != "" {
		cond += " AND " + searchClause(argPos)
		args = append(args, likePattern(s))
		argPos++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts c WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assigned contacts: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM contacts c WHERE %s ORDER BY c.serial_no, c.id LIMIT $%d OFFSET $%d`,
		contactColumns, cond, argPos, argPos+1)
	args = append(args, p.PageSize, p.Offset())
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query assigned contacts: %w", err)
	}
	list, err := collectContacts(rows)
	return list, total, err
}

func (r *contactRepo) IDsAssignedTo(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM contacts WHERE assigned_to = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *contactRepo) ClaimUnassigned(ctx context.Context, accountID string, ids []string, at time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE contacts
		SET assigned_to = $1, is_assigned = TRUE, assigned_at = $3, updated_at = $3
		WHERE id = ANY($2) AND assigned_to IS NULL
		RETURNING id`, accountID, ids, at)
	if err != nil {
		return nil, fmt.Errorf("claim contacts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *contactRepo) Release(ctx context.Context, ids []string) ([]domain.ContactOwner, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE contacts c
		SET assigned_to = NULL, is_assigned = FALSE, assigned_at = NULL, updated_at = NOW()
		FROM (
			SELECT id, assigned_to, assigned_at FROM contacts
			WHERE id = ANY($1) AND assigned_to IS NOT NULL
			FOR UPDATE
		) old
		WHERE c.id = old.id
		RETURNING c.id, old.assigned_to, COALESCE(old.assigned_at, NOW())`, ids)
	if err != nil {
		return nil, fmt.Errorf("release contacts: %w", err)
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

func (r *contactRepo) SetPhoneCalled(ctx context.Context, u domain.CallUpdate) (domain.CallTransition, error) {
	var tr domain.CallTransition

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return tr, err
	}
	defer tx.Rollback(ctx)

	var phones []string
	var assignedTo *string
	err = tx.QueryRow(ctx, `SELECT phones, assigned_to FROM contacts WHERE id = $1 FOR SHARE`, u.ContactID).
		Scan(&phones, &assignedTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tr, xerrors.ErrContactNotFound
		}
		return tr, err
	}
	found := false
	for _, p := range phones {
		if p == u.Number {
			found = true
			break
		}
	}
	if !found {
		return tr, xerrors.ErrPhoneNotFound
	}
	if u.RequireAssignee && (assignedTo == nil || *assignedTo != u.By) {
		return tr, xerrors.ErrNotAssignee
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO contact_phone_statuses (contact_id, number) VALUES ($1, $2)
		ON CONFLICT (contact_id, number) DO NOTHING`, u.ContactID, u.Number); err != nil {
		return tr, fmt.Errorf("ensure phone status: %w", err)
	}

	if u.Called {
		tag, err := tx.Exec(ctx, `
			UPDATE contact_phone_statuses
			SET called = TRUE, called_by = $3, last_called_at = $4
			WHERE contact_id = $1 AND number = $2 AND NOT called`, u.ContactID, u.Number, u.By, u.At)
		if err != nil {
			return tr, fmt.Errorf("mark called: %w", err)
		}
		tr.Changed = tag.RowsAffected() == 1
	} else {
		err := tx.QueryRow(ctx, `
			UPDATE contact_phone_statuses
			SET called = FALSE
			WHERE contact_id = $1 AND number = $2 AND called
			RETURNING called_by`, u.ContactID, u.Number).Scan(&tr.PreviousCalledBy)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return tr, fmt.Errorf("mark not called: %w", err)
		default:
			tr.Changed = true
		}
	}

	if tr.Changed {
		if _, err := tx.Exec(ctx, `UPDATE contacts SET updated_at = $2 WHERE id = $1`, u.ContactID, u.At); err != nil {
			return tr, err
		}
	}
	return tr, tx.Commit(ctx)
}

func (r *contactRepo) Stats(ctx context.Context) (*domain.ContactStats, error) {
	st := &domain.ContactStats{PerAccount: []domain.AccountContactCount{}}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE c.assigned_to IS NOT NULL),
		       COUNT(*) FILTER (WHERE c.assigned_to IS NULL),
		       COUNT(*) FILTER (WHERE EXISTS (
		           SELECT 1 FROM contact_phone_statuses ps WHERE ps.contact_id = c.id AND ps.called))
		FROM contacts c`).Scan(&st.Total, &st.Assigned, &st.Unassigned, &st.Called)
	if err != nil {
		return nil, fmt.Errorf("contact stats: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT assigned_to, COUNT(*) FROM contacts
		WHERE assigned_to IS NOT NULL GROUP BY assigned_to ORDER BY assigned_to`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ac domain.AccountContactCount
		if err := rows.Scan(&ac.AccountID, &ac.Count); err != nil {
			return nil, err
		}
		st.PerAccount = append(st.PerAccount, ac)
	}
	return st, rows.Err()
}

func (r *contactRepo) AssignedOwners(ctx context.Context) ([]domain.ContactOwner, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, assigned_to, COALESCE(assigned_at, updated_at)
		FROM contacts WHERE assigned_to IS NOT NULL`)
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

func (r *contactRepo) FixAssignedFlags(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE contacts SET is_assigned = (assigned_to IS NOT NULL), updated_at = NOW()
		WHERE is_assigned <> (assigned_to IS NOT NULL)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
