package booking

// holdAction is what the concurrency manager must do inside the
// transition's transaction.
type holdAction int

const (
	holdNone holdAction = iota
	holdAcquire
	holdConvert
	holdRelease
)

type guardFunc func(b *Booking, cmd Command) bool

// transition is one row of the lifecycle table. Qualifier narrows
// parameterized events (MARK_NO_SHOW party, PROCESS_REFUND type,
// TIMEOUT_EXPIRED kind); empty matches unconditionally.
type transition struct {
	From        State
	Event       Event
	Qualifier   string
	To          State
	Guard       guardFunc
	Hold        holdAction
	SideEffects []string
	Schedules   []string // timeout kinds to persist with the transition
}

func guardAnyRequester(b *Booking, cmd Command) bool {
	return cmd.Actor.Type == ActorCustomer || cmd.Actor.Type == ActorGuest
}

func guardBookingRequester(b *Booking, cmd Command) bool {
	switch cmd.Actor.Type {
	case ActorCustomer:
		return b.CustomerID != nil && cmd.Actor.ID == b.CustomerID.String()
	case ActorGuest:
		return b.GuestSessionID != "" && cmd.Actor.ID == b.GuestSessionID
	default:
		return false
	}
}

func guardOwningProvider(b *Booking, cmd Command) bool {
	return cmd.Actor.Type == ActorProvider && cmd.Actor.ID == b.ProviderID.String()
}

func guardPaymentSystem(b *Booking, cmd Command) bool {
	return cmd.Actor.Type == ActorPaymentSystem || cmd.Actor.Type == ActorSystem
}

func guardScheduler(b *Booking, cmd Command) bool {
	return cmd.Actor.Type == ActorScheduler || cmd.Actor.Type == ActorSystem
}

func guardSystemOrAdmin(b *Booking, cmd Command) bool {
	return cmd.Actor.Type == ActorSystem || cmd.Actor.Type == ActorAdmin
}

// transitions is the authoritative lifecycle table. States absent from the
// From column are terminal by construction.
var transitions = []transition{
	{
		From: StateInitiated, Event: EventPlaceHold, To: StateHold,
		Guard: guardAnyRequester, Hold: holdAcquire,
		SideEffects: []string{"Slot hold placed", "Hold expiry scheduled"},
		Schedules:   []string{TimeoutHoldExpiry},
	},
	{
		From: StateHold, Event: EventProceedToPayment, To: StatePendingPayment,
		Guard:       guardBookingRequester,
		SideEffects: []string{"Payment timeout scheduled"},
		Schedules:   []string{TimeoutPaymentTimeout},
	},
	{
		From: StatePendingPayment, Event: EventPaymentSucceeded, To: StatePendingProvider,
		Guard:       guardPaymentSystem,
		SideEffects: []string{"Provider notified"},
	},
	{
		From: StatePendingPayment, Event: EventPaymentFailed, To: StatePaymentFailed,
		Guard: guardPaymentSystem, Hold: holdRelease,
	},
	{
		From: StatePendingProvider, Event: EventProviderAccept, To: StateConfirmed,
		Guard: guardOwningProvider, Hold: holdConvert,
		SideEffects: []string{"Hold converted to booking", "Reminders scheduled", "Customer notified"},
		Schedules:   []string{TimeoutReminder},
	},
	{
		From: StatePendingProvider, Event: EventProviderReject, To: StateRejected,
		Guard: guardOwningProvider, Hold: holdRelease,
		SideEffects: []string{"Hold released", "Customer notified"},
	},
	{
		From: StateConfirmed, Event: EventMarkComplete, To: StateCompleted,
		Guard:       guardOwningProvider,
		SideEffects: []string{"Provider payout scheduled", "Review request sent"},
	},
	{
		From: StateConfirmed, Event: EventCustomerCancel, To: StateCanceledCustomer,
		Guard: guardBookingRequester, Hold: holdRelease,
		SideEffects: []string{"Slot released"},
	},
	{
		From: StateConfirmed, Event: EventProviderCancel, To: StateCanceledProvider,
		Guard: guardOwningProvider, Hold: holdRelease,
		SideEffects: []string{"Slot released"},
	},
	{
		From: StateConfirmed, Event: EventMarkNoShow, Qualifier: PartyCustomer, To: StateNoShowCustomer,
		Guard: guardOwningProvider,
	},
	{
		From: StateConfirmed, Event: EventMarkNoShow, Qualifier: PartyProvider, To: StateNoShowProvider,
		Guard:       guardBookingRequester,
		SideEffects: []string{"Full refund initiated"},
	},
	{
		From: StateCanceledCustomer, Event: EventProcessRefund, Qualifier: RefundPartial, To: StateRefundedPartial,
		Guard:       guardSystemOrAdmin,
		SideEffects: []string{"Refund processed"},
	},
	{
		From: StateCanceledCustomer, Event: EventProcessRefund, Qualifier: RefundFull, To: StateRefundedFull,
		Guard:       guardSystemOrAdmin,
		SideEffects: []string{"Refund processed"},
	},
	{
		From: StateCanceledProvider, Event: EventProcessRefund, Qualifier: RefundPartial, To: StateRefundedPartial,
		Guard:       guardSystemOrAdmin,
		SideEffects: []string{"Refund processed"},
	},
	{
		From: StateCanceledProvider, Event: EventProcessRefund, Qualifier: RefundFull, To: StateRefundedFull,
		Guard:       guardSystemOrAdmin,
		SideEffects: []string{"Refund processed"},
	},
	{
		From: StateNoShowProvider, Event: EventProcessRefund, Qualifier: RefundFull, To: StateRefundedFull,
		Guard:       guardSystemOrAdmin,
		SideEffects: []string{"Refund processed"},
	},
	{
		From: StateCompleted, Event: EventInitiateDispute, To: StateDispute,
		Guard:       guardBookingRequester,
		SideEffects: []string{"Admin notified"},
	},
	{
		From: StateHold, Event: EventTimeoutExpired, Qualifier: TimeoutHoldExpiry, To: StateExpired,
		Guard: guardScheduler, Hold: holdRelease,
		SideEffects: []string{"Hold released"},
	},
	{
		From: StatePendingPayment, Event: EventTimeoutExpired, Qualifier: TimeoutPaymentTimeout, To: StatePaymentFailed,
		Guard: guardScheduler, Hold: holdRelease,
		SideEffects: []string{"Hold released"},
	},
}

func qualifierOf(cmd Command) string {
	switch cmd.Event {
	case EventMarkNoShow:
		return cmd.Party
	case EventProcessRefund:
		return cmd.RefundType
	case EventTimeoutExpired:
		return cmd.TimeoutKind
	default:
		return ""
	}
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(state State) bool {
	for _, t := range transitions {
		if t.From == state {
			return false
		}
	}
	return true
}

// findTransition resolves the table row for an event sent from a state.
func findTransition(state State, cmd Command) (*transition, bool) {
	qualifier := qualifierOf(cmd)
	for i := range transitions {
		t := &transitions[i]
		if t.From != state || t.Event != cmd.Event {
			continue
		}
		if t.Qualifier != "" && t.Qualifier != qualifier {
			continue
		}
		return t, true
	}
	return nil, false
}

// AvailableEvents returns the distinct outgoing event names for a state, in
// table order. Empty for terminal states.
func AvailableEvents(state State) []Event {
	var events []Event
	seen := map[Event]bool{}
	for _, t := range transitions {
		if t.From != state || seen[t.Event] {
			continue
		}
		seen[t.Event] = true
		events = append(events, t.Event)
	}
	return events
}
