package booking

import "errors"

var (
	// ErrTerminalState is returned for any event sent to a booking in a
	// state with no outgoing transitions.
	ErrTerminalState = errors.New("booking is in a terminal state")

	// ErrInvalidTransition is returned when the event is not defined for
	// the booking's current state.
	ErrInvalidTransition = errors.New("event not allowed from current state")

	// ErrUnauthorized is returned when the actor fails the transition's
	// guard.
	ErrUnauthorized = errors.New("actor not authorized for this transition")

	// ErrBookingNotFound is returned for an unknown booking ID.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidRequester is returned when a booking names neither a
	// customer nor a guest session, or both.
	ErrInvalidRequester = errors.New("exactly one of customer or guest session required")
)

// SideEffectError marks a transition that failed because a dependent side
// effect (hold acquisition, conversion, release) failed inside the
// transaction. The whole transition is rolled back.
type SideEffectError struct {
	Cause error
}

func (e *SideEffectError) Error() string {
	return "side effect error: " + e.Cause.Error()
}

func (e *SideEffectError) Unwrap() error {
	return e.Cause
}
