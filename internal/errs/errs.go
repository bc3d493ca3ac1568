// Package errs defines the closed error-kind taxonomy shared by every
// LegalCore component: Validation, Policy, Integrity, Availability, Fatal.
// Callers match on Kind, never on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of failure categories.
type Kind int

const (
	// Unknown is never the Kind of an Error built by New or Wrap; it
	// exists so a zero Error is visibly invalid, and KindOf reports it
	// (with false) for errors that are not *Error.
	Unknown Kind = iota
	// Validation marks caller-supplied input that failed a structural
	// or semantic check (bad purpose string, malformed SQL, oversized
	// request).
	Validation
	// Policy marks a request that was well-formed but refused by a
	// compliance rule (missing consent, stale consent version).
	Policy
	// Integrity marks data that failed a cryptographic or structural
	// check (AEAD tag mismatch, corrupt export snapshot).
	Integrity
	// Availability marks a dependency that could not be reached or
	// completed in time (store unreachable, external analyzer timeout).
	Availability
	// Fatal marks a condition the process cannot recover from
	// (master key missing at startup, schema migration failed).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Policy:
		return "policy"
	case Integrity:
		return "integrity"
	case Availability:
		return "availability"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type every package boundary returns.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, errs.ValidationKind) style matching by kind,
// via a sentinel comparison against the kindSentinel values declared
// below (ValidationKind, PolicyKind, IntegrityKind, AvailabilityKind,
// FatalKind).
func (e *Error) Is(target error) bool {
	var ks *kindSentinel
	if errors.As(target, &ks) {
		return e.Kind == ks.kind
	}
	return false
}

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return s.kind.String() }

// sentinels usable with errors.Is(err, errs.ValidationKind) etc.
var (
	ValidationKind   error = &kindSentinel{Validation}
	PolicyKind       error = &kindSentinel{Policy}
	IntegrityKind    error = &kindSentinel{Integrity}
	AvailabilityKind error = &kindSentinel{Availability}
	FatalKind        error = &kindSentinel{Fatal}
)

// New builds an Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error wrapping cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Unknown, false
}
