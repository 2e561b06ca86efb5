package apperrors

import "errors"

// Standardized engine error kinds
var (
	// ErrPriceFeedUnavailable marks a transient vendor failure. The tick
	// still advances; symbols without quotes simply have no latest price.
	ErrPriceFeedUnavailable = errors.New("price feed unavailable")

	// ErrStoreTransient marks a retryable store read/write failure. The
	// affected game tick aborts; the driver continues with other games.
	ErrStoreTransient = errors.New("transient store failure")

	// ErrInvariantViolation marks an order that would break a cash or
	// position invariant. The engine moves the order to rejected.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrValidationFailure marks a malformed order payload at ingest,
	// before the engine ever sees it.
	ErrValidationFailure = errors.New("validation failure")

	// ErrSchedulerFailure marks a driver invocation that panicked or failed
	// during setup. The timer chain reschedules unconditionally.
	ErrSchedulerFailure = errors.New("scheduler failure")
)

// Store lifecycle errors
var (
	ErrGameNotJoinable     = errors.New("game not joinable")
	ErrOrderNotPending     = errors.New("order not pending")
	ErrPositionNotFound    = errors.New("position not found")
	ErrDurationOutOfBounds = errors.New("duration out of bounds")
	ErrUnknownStoreDriver  = errors.New("unknown store driver")
)

// Transient reports whether err should be retried against the store.
func Transient(err error) bool {
	return errors.Is(err, ErrStoreTransient)
}
