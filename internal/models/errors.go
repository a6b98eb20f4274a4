package models

import "errors"

// Sentinel errors shared across services and handlers. Services wrap these
// with fmt.Errorf("...: %w", ...) so callers can branch with errors.Is while
// still getting a useful message.
var (
	// ErrValidation marks bad input (e.g. an empty proof description).
	// Rejected immediately, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotAuthorized marks a role or capability mismatch.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound marks a missing order, gig, or user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a state machine guard failure, including
	// any attempt to move an order out of a terminal state.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrVersionConflict marks a lost optimistic-lock race: another writer
	// applied a transition first. The caller should refresh and re-decide.
	ErrVersionConflict = errors.New("order version conflict")

	// ErrDuplicatePayment marks an idempotency-key collision during order
	// creation. Treated as success by the creation path (the existing order
	// is returned), so retries are always safe.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrLedgerUnavailable marks a transient ledger network failure.
	// The caller retries with backoff up to a bound.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrConfirmationTimeout marks a confirmation that did not arrive within
	// the polling bound. The transfer may still land later; the buyer can
	// re-enter the signature manually instead of paying again.
	ErrConfirmationTimeout = errors.New("ledger confirmation timed out")
)
