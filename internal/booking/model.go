package booking

import (
	"time"

	"github.com/google/uuid"
)

// State is a booking lifecycle state.
type State string

const (
	StateInitiated        State = "INITIATED"
	StateHold             State = "HOLD"
	StatePendingPayment   State = "PENDING_PAYMENT"
	StatePendingProvider  State = "PENDING_PROVIDER"
	StateConfirmed        State = "CONFIRMED"
	StateRejected         State = "REJECTED"
	StatePaymentFailed    State = "PAYMENT_FAILED"
	StateCompleted        State = "COMPLETED"
	StateCanceledCustomer State = "CANCELED_CUSTOMER"
	StateCanceledProvider State = "CANCELED_PROVIDER"
	StateNoShowCustomer   State = "NO_SHOW_CUSTOMER"
	StateNoShowProvider   State = "NO_SHOW_PROVIDER"
	StateRefundedPartial  State = "REFUNDED_PARTIAL"
	StateRefundedFull     State = "REFUNDED_FULL"
	StateDispute          State = "DISPUTE"
	StateExpired          State = "EXPIRED"
)

// Event triggers a state transition.
type Event string

const (
	EventPlaceHold        Event = "PLACE_HOLD"
	EventProceedToPayment Event = "PROCEED_TO_PAYMENT"
	EventPaymentSucceeded Event = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    Event = "PAYMENT_FAILED"
	EventProviderAccept   Event = "PROVIDER_ACCEPT"
	EventProviderReject   Event = "PROVIDER_REJECT"
	EventMarkComplete     Event = "MARK_COMPLETE"
	EventCustomerCancel   Event = "CUSTOMER_CANCEL"
	EventProviderCancel   Event = "PROVIDER_CANCEL"
	EventMarkNoShow       Event = "MARK_NO_SHOW"
	EventProcessRefund    Event = "PROCESS_REFUND"
	EventInitiateDispute  Event = "INITIATE_DISPUTE"
	EventTimeoutExpired   Event = "TIMEOUT_EXPIRED"
)

// ActorType classifies who is sending an event.
type ActorType string

const (
	ActorCustomer      ActorType = "customer"
	ActorGuest         ActorType = "guest"
	ActorProvider      ActorType = "provider"
	ActorPaymentSystem ActorType = "payment_system"
	ActorScheduler     ActorType = "scheduler"
	ActorAdmin         ActorType = "admin"
	ActorSystem        ActorType = "system"
)

// Actor identifies the party sending an event; guards compare it against
// the booking's parties.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// Qualifier values for parameterized events.
const (
	PartyCustomer = "customer"
	PartyProvider = "provider"

	RefundPartial = "partial"
	RefundFull    = "full"

	TimeoutHoldExpiry     = "hold_expiry"
	TimeoutPaymentTimeout = "payment_timeout"
	TimeoutReminder       = "reminder"
)

// Command is one event submission against a booking.
type Command struct {
	Event       Event  `json:"event"`
	Actor       Actor  `json:"actor"`
	Party       string `json:"party,omitempty"`        // MARK_NO_SHOW
	RefundType  string `json:"refund_type,omitempty"`  // PROCESS_REFUND
	TimeoutKind string `json:"timeout_kind,omitempty"` // TIMEOUT_EXPIRED
	Reason      string `json:"reason,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"` // refund amount
}

// Booking is one reservation attempt/agreement. The service snapshot fields
// are captured at creation and immutable afterwards, even if the provider
// later edits their catalog.
type Booking struct {
	ID              uuid.UUID      `json:"id"`
	ProviderID      uuid.UUID      `json:"provider_id"`
	CustomerID      *uuid.UUID     `json:"customer_id,omitempty"`
	GuestSessionID  string         `json:"guest_session_id,omitempty"`
	ServiceName     string         `json:"service_name"`
	UnitPriceCents  int64          `json:"unit_price_cents"`
	DurationMinutes int            `json:"duration_minutes"`
	ServiceDate     string         `json:"service_date"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	TotalCents      int64          `json:"total_cents"`
	FeeCents        int64          `json:"fee_cents"`
	PayoutCents     int64          `json:"payout_cents"`
	State           State          `json:"state"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Metadata keys used by the lifecycle engine.
const (
	MetaHoldID             = "holdId"
	MetaCancellationReason = "cancellationReason"
	MetaRefundType         = "refundType"
	MetaRefundAmountCents  = "refundAmountCents"
	MetaDisputeReason      = "disputeReason"
)

// HoldID returns the hold referenced by the booking's metadata, if any.
func (b *Booking) HoldID() (uuid.UUID, bool) {
	raw, ok := b.Metadata[MetaHoldID].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// HistoryEntry is one row of a booking's append-only lifecycle history.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	State      State     `json:"state"`
	Event      string    `json:"event"`
	ActorType  ActorType `json:"actor_type"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransitionResult reports the outcome of sending one event.
type TransitionResult struct {
	Success       bool     `json:"success"`
	PreviousState State    `json:"previous_state"`
	CurrentState  State    `json:"current_state"`
	SideEffects   []string `json:"side_effects"`
	Error         string   `json:"error,omitempty"`
}
