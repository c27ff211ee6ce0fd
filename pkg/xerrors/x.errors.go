package xerrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped to domain errors.
const (
	PGUniqueViolation     = "23505"
	PGForeignKeyViolation = "23503"
	PGCheckViolation      = "23514"
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

// Generic
var (
	ErrValidation      = errors.New("validation failed")
	ErrInternal        = errors.New("internal server error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Accounts / login
var (
	ErrAccountNotFound    = fmt.Errorf("account %w", ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
	ErrEmailAlreadyInUse  = fmt.Errorf("email already in use: %w", ErrConflict)
	ErrSelfDelete         = fmt.Errorf("an admin cannot delete its own account: %w", ErrForbidden)
	ErrAccountHasContacts = fmt.Errorf("account still holds contacts: %w", ErrConflict)
)

// Contacts
var (
	ErrContactNotFound = fmt.Errorf("contact %w", ErrNotFound)
	ErrPhoneNotFound   = fmt.Errorf("phone number %w on contact", ErrNotFound)
	ErrNotAssignee     = fmt.Errorf("contact is not assigned to caller: %w", ErrForbidden)
)

// Token
var (
	ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", ErrUnauthenticated)
	ErrMissingToken = fmt.Errorf("no token provided: %w", ErrUnauthenticated)
)

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// PartialAssignmentError is returned when the contact side of an
// assignment change was applied but the account side was not.
type PartialAssignmentError struct {
	Op      string
	Applied []string
	Err     error
}

func (e *PartialAssignmentError) Error() string {
	return fmt.Sprintf("%s partially applied to contacts [%s]: %v", e.Op, strings.Join(e.Applied, ","), e.Err)
}

func (e *PartialAssignmentError) Unwrap() error { return e.Err }
