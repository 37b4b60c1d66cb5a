package lifecycle

import "errors"

// Every coordinator operation returns either a result or exactly one of
// these error kinds (possibly wrapped with detail). Nothing else escapes
// the coordinator boundary.
var (
	// Principal lacks the role or ownership for the requested transition.
	ErrUnauthorized = errors.New("unauthorized")
	// Referenced device, report or profile does not exist.
	ErrNotFound = errors.New("not found")
	// Attribute validation failed; recoverable by correcting input.
	ErrInvalidInput = errors.New("invalid input")
	// A domain invariant would be broken by the requested transition.
	ErrConstraintViolation = errors.New("constraint violation")
	// The device already has an open report.
	ErrDuplicateActiveReport = errors.New("device already has an active report")
	// The report is no longer active.
	ErrAlreadyResolved = errors.New("report already resolved")
	// Status changed between precondition check and write. Safe to re-fetch
	// and retry.
	ErrStaleState = errors.New("state changed during transition")
	// The persistence layer failed; transient, safe to retry with backoff.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
