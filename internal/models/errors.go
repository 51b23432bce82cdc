package models

import "errors"

// Error taxonomy for the market core. Handlers map these to HTTP
// statuses; callers distinguish kinds with errors.Is.
var (
	// Validation: malformed or out-of-range input. No state change.
	ErrInvalidPrice = errors.New("price out of range")
	ErrInvalidSide  = errors.New("invalid order side")

	// Authorization: caller is not the owner, or would self-trade.
	ErrUnauthorized = errors.New("not authorized")

	// Resource shortage, named by the deficient resource.
	ErrInsufficientPax     = errors.New("insufficient pax")
	ErrInsufficientScrolls = errors.New("insufficient scrolls")

	// ErrNotFound: the order does not exist in the caller's view.
	ErrNotFound = errors.New("order not found")
	// ErrGone: the order existed but raced to a terminal state.
	ErrGone = errors.New("order no longer open")
	// ErrAlreadyTerminal: cancel on a filled or cancelled order.
	ErrAlreadyTerminal = errors.New("order already terminal")

	// Transient: safe to retry, never a committed partial effect.
	ErrContention = errors.New("write contention")
	ErrTimeout    = errors.New("deadline exceeded before commit")

	// ErrHalted: an invariant violation was detected and the engine
	// refuses further writes until an operator reconciles.
	ErrHalted = errors.New("engine halted pending reconciliation")
)
