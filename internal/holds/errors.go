package holds

import "errors"

var (
	// ErrSlotTaken is the normal negative result of losing a hold race: an
	// overlapping active hold or converted booking already occupies the
	// interval. Callers should offer alternative slots.
	ErrSlotTaken = errors.New("slot already held or booked")

	// ErrHoldNotFoundOrExpired is returned when converting a hold that is
	// missing, already released, or past its expiry.
	ErrHoldNotFoundOrExpired = errors.New("hold not found or expired")

	// ErrHoldNotFound is returned when releasing a hold that does not exist.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrInvalidRequester is returned when a hold request names neither a
	// customer nor a guest session, or both.
	ErrInvalidRequester = errors.New("exactly one of customer or guest session required")
)
