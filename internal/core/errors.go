package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors, used with errors.Is(). Structured variants below wrap
// these so callers can branch on category without losing context.
var (
	// ErrNotFound is returned when a referenced resource does not exist
	// within the caller's tenant/legal-entity scope.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a lifecycle action not permitted
	// from the contract's current status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidState is returned when an operation is not permitted given
	// the current state of a contract, document or link.
	ErrInvalidState = errors.New("operation not permitted in current state")

	// ErrAmountCapExceeded is returned when a link create/adjust would push
	// the document-wide effective linked total past the document amount.
	ErrAmountCapExceeded = errors.New("document amount cap exceeded")

	// ErrIdempotencyConflict is returned when an idempotency key or
	// integration event UID is reused with a different request fingerprint.
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrIntegrity indicates a readback failure or missing required linkage:
	// a bug or concurrent external mutation, not caller-fixable.
	ErrIntegrity = errors.New("integrity violation")
)

// ValidationError is a caller-fixable input error referencing the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError reports the rejected (action, from) pair.
type TransitionError struct {
	Action string
	From   ContractStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s contract", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CapExceededError reports the amounts behind a cap violation.
type CapExceededError struct {
	DocumentID int64
	Requested  string
	Available  string
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("document %d: requested %s exceeds remaining linkable amount %s",
		e.DocumentID, e.Requested, e.Available)
}

func (e *CapExceededError) Unwrap() error { return ErrAmountCapExceeded }

// IdempotencyConflictError reports which fingerprint field diverged.
type IdempotencyConflictError struct {
	Key   string
	Field string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q was already used with a different %s", e.Key, e.Field)
}

func (e *IdempotencyConflictError) Unwrap() error { return ErrIdempotencyConflict }

// UniqueConstraintViolation is the store-agnostic form of a duplicate-key
// failure. Services translate it into either an idempotent replay or a
// ValidationError; it never surfaces raw.
type UniqueConstraintViolation struct {
	Constraint string
}

func (e *UniqueConstraintViolation) Error() string {
	return fmt.Sprintf("unique constraint violated: %s", e.Constraint)
}

// translateDBError maps PostgreSQL unique violations (SQLSTATE 23505) to
// UniqueConstraintViolation and passes everything else through unchanged.
func translateDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &UniqueConstraintViolation{Constraint: pgErr.ConstraintName}
	}
	return err
}

// isUniqueViolation reports whether err is a duplicate on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var ucv *UniqueConstraintViolation
	if errors.As(translateDBError(err), &ucv) {
		return ucv.Constraint == constraint
	}
	return false
}

// IsClientError reports whether the error is caller-fixable (4xx-equivalent).
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAmountCapExceeded) ||
		errors.Is(err, ErrIdempotencyConflict) ||
		errors.Is(err, ErrNotFound)
}
