package availability

import (
	"time"

	"github.com/google/uuid"
)

// Window is a provider's recurring weekly availability rule.
type Window struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Weekday    int       `json:"weekday"` // 0 = Sunday .. 6 = Saturday
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Active     bool      `json:"active"`
}

// BlockedSlot is a provider exception for a single date. StartTime and
// EndTime are both nil for a whole-day block.
type BlockedSlot struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	StartTime  *string   `json:"start_time,omitempty"`
	EndTime    *string   `json:"end_time,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Slot is a derived candidate booking interval. It is never persisted; the
// holds and bookings tables remain the source of truth.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	IsBooked  bool   `json:"is_booked"`
	IsBlocked bool   `json:"is_blocked"`
}

// Settings carries the provider-facing scheduling policy applied when
// computing slots.
type Settings struct {
	Timezone           string
	MinimumNoticeHours int
	MaxAdvanceDays     int
}

// IntervalKind distinguishes what occupies a span of time on a given date.
type IntervalKind string

const (
	KindBooking IntervalKind = "booking"
	KindHold    IntervalKind = "hold"
)

// Interval is an occupied span within a day, in minutes from midnight,
// half-open [Start, End).
type Interval struct {
	StartMinute int
	EndMinute   int
	Kind        IntervalKind
}

// Overlaps reports half-open interval intersection.
func (i Interval) Overlaps(startMinute, endMinute int) bool {
	return i.StartMinute < endMinute && startMinute < i.EndMinute
}
