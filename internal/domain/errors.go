package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when no participation exists for a token.
	ErrInvalidToken = errors.New("invalid participation token")
	// ErrTokenContestMismatch is returned when a token belongs to another contest.
	ErrTokenContestMismatch = errors.New("token belongs to a different contest")
	// ErrDuplicateStudent is returned when the same identity is already registered
	// under a different token.
	ErrDuplicateStudent = errors.New("student already registered")
	// ErrRestoreExpired is returned when a restore request is no longer pending.
	ErrRestoreExpired = errors.New("restore request expired")
	// ErrRestoreNotFound indicates an unknown restore request id.
	ErrRestoreNotFound = errors.New("restore request not found")
	// ErrStudentNotFound indicates an unknown student id.
	ErrStudentNotFound = errors.New("student not found")
	// ErrVariantNotFound indicates the variant schema could not be loaded.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrConflict signals a failed store transaction predicate; callers retry
	// with bounded attempts.
	ErrConflict = errors.New("transaction conflict")
)

// ValidationError aborts a single variant build; already-built variants
// are unaffected.
type ValidationError struct {
	Path   string // pre-order path of the offending node
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "statement validation: " + e.Reason
	}
	return fmt.Sprintf("statement validation at %s: %s", e.Path, e.Reason)
}
