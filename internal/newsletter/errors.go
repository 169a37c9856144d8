package newsletter

import "errors"

var (
	// ErrInvalidState is returned when an operation is not legal in the
	// newsletter's current lifecycle state.
	ErrInvalidState = errors.New("invalid newsletter state")

	// ErrConflict is returned when an update loses the compare-and-swap
	// race more times than the retry budget allows.
	ErrConflict = errors.New("newsletter update conflict")

	// ErrGenerationInFlight is returned when a generation job is already
	// running for the newsletter id.
	ErrGenerationInFlight = errors.New("generation already in flight")

	// ErrManagerClosed is returned when starting work on a manager that
	// has been shut down.
	ErrManagerClosed = errors.New("newsletter manager is closed")
)
