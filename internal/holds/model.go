package holds

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a hold.
type Status string

const (
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
	StatusReleased  Status = "released"
	StatusExpired   Status = "expired"
)

// Hold is a temporary, exclusive claim on a provider's time interval. At
// most one active or converted hold may occupy an overlapping interval for
// a provider; the holds table's exclusion constraint enforces this.
type Hold struct {
	ID             uuid.UUID  `json:"id"`
	ProviderID     uuid.UUID  `json:"provider_id"`
	Date           string     `json:"date"`
	StartTime      string     `json:"start_time"`
	EndTime        string     `json:"end_time"`
	CustomerID     *uuid.UUID `json:"customer_id,omitempty"`
	GuestSessionID string     `json:"guest_session_id,omitempty"`
	Status         Status     `json:"status"`
	LockedUntil    time.Time  `json:"locked_until"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Requester identifies who is asking for the hold: an authenticated
// customer or a guest session, never both.
type Requester struct {
	CustomerID     *uuid.UUID
	GuestSessionID string
}
