package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/internal/holds"
	"github.com/tidebook/booking-engine/internal/notify"
	"github.com/tidebook/booking-engine/internal/observability/metrics"
	"github.com/tidebook/booking-engine/internal/timeouts"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Config tunes the lifecycle engine.
type Config struct {
	PlatformFeePercent  int
	HoldDurationMinutes int
	PaymentTimeout      time.Duration
	ReminderLeadTime    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PlatformFeePercent <= 0 {
		c.PlatformFeePercent = 10
	}
	if c.HoldDurationMinutes <= 0 {
		c.HoldDurationMinutes = holds.DefaultHoldMinutes
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 15 * time.Minute
	}
	if c.ReminderLeadTime <= 0 {
		c.ReminderLeadTime = 24 * time.Hour
	}
	return c
}

// Service runs booking lifecycle transitions. Every transition is one
// transaction: row lock, guard, hold side effect, state write, history
// append, timer changes, and outbox inserts commit or roll back together.
type Service struct {
	db       DB
	repo     *Repository
	holds    *holds.Manager
	timeouts *timeouts.Store
	outbox   *notify.OutboxStore
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	cfg      Config
	now      func() time.Time
}

// NewService creates the lifecycle engine.
func NewService(db DB, repo *Repository, hm *holds.Manager, ts *timeouts.Store, outbox *notify.OutboxStore, cfg Config, logger *logging.Logger, m *metrics.BookingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		db:       db,
		repo:     repo,
		holds:    hm,
		timeouts: ts,
		outbox:   outbox,
		logger:   logger,
		metrics:  m,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// WithClock overrides the clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateBookingRequest starts a lifecycle. The service fields are snapshotted
// onto the booking; later catalog edits never touch it.
type CreateBookingRequest struct {
	ProviderID      uuid.UUID
	CustomerID      *uuid.UUID
	GuestSessionID  string
	ServiceName     string
	UnitPriceCents  int64
	DurationMinutes int
	ServiceDate     string
	StartTime       string
}

// splitTotal divides a total into platform fee and provider payout. The fee
// is rounded half-up; the payout takes the remainder so the two always sum
// back to the total.
func splitTotal(totalCents int64, feePercent int) (fee, payout int64) {
	fee = (totalCents*int64(feePercent) + 50) / 100
	return fee, totalCents - fee
}

// CreateBooking snapshots the service, computes the money split, and opens
// the lifecycle at INITIATED with its first history row.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	if (req.CustomerID == nil) == (req.GuestSessionID == "") {
		return nil, ErrInvalidRequester
	}
	if req.ServiceName == "" || req.UnitPriceCents < 0 || req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("booking: invalid service snapshot")
	}
	start, err := availability.ClockToMinutes(req.StartTime)
	if err != nil {
		return nil, err
	}
	end := start + req.DurationMinutes
	if end > 24*60 {
		return nil, fmt.Errorf("booking: %s+%dm crosses midnight: %w", req.StartTime, req.DurationMinutes, availability.ErrInvalidInterval)
	}
	if _, err := time.Parse(time.DateOnly, req.ServiceDate); err != nil {
		return nil, fmt.Errorf("booking: parse date %q: %w", req.ServiceDate, err)
	}

	fee, payout := splitTotal(req.UnitPriceCents, s.cfg.PlatformFeePercent)
	b := &Booking{
		ID:              uuid.New(),
		ProviderID:      req.ProviderID,
		CustomerID:      req.CustomerID,
		GuestSessionID:  req.GuestSessionID,
		ServiceName:     req.ServiceName,
		UnitPriceCents:  req.UnitPriceCents,
		DurationMinutes: req.DurationMinutes,
		ServiceDate:     req.ServiceDate,
		StartTime:       req.StartTime,
		EndTime:         availability.MinutesToClock(end),
		TotalCents:      req.UnitPriceCents,
		FeeCents:        fee,
		PayoutCents:     payout,
		State:           StateInitiated,
		Metadata:        map[string]any{},
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	entry := &HistoryEntry{
		BookingID: b.ID,
		State:     StateInitiated,
		Event:     "BOOKING_CREATED",
		ActorType: requesterActor(b),
		ActorID:   requesterID(b),
	}
	if err := s.repo.AppendHistory(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit create: %w", err)
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"provider_id", b.ProviderID,
		"service_date", b.ServiceDate,
		"start", b.StartTime,
	)
	return b, nil
}

func requesterActor(b *Booking) ActorType {
	if b.CustomerID != nil {
		return ActorCustomer
	}
	return ActorGuest
}

func requesterID(b *Booking) string {
	if b.CustomerID != nil {
		return b.CustomerID.String()
	}
	return b.GuestSessionID
}

// Send applies one event to a booking. The returned result always reports
// the previous and current states; on failure they are equal and the booking
// is untouched.
func (s *Service) Send(ctx context.Context, bookingID uuid.UUID, cmd Command) (*TransitionResult, error) {
	started := s.now()
	result, err := s.send(ctx, bookingID, cmd)
	s.metrics.ObserveTransitionLatency(string(cmd.Event), time.Since(started).Seconds())
	switch {
	case err == nil:
		s.metrics.ObserveTransition(string(cmd.Event), "applied")
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnauthorized):
		s.metrics.ObserveTransition(string(cmd.Event), "rejected")
	default:
		var se *SideEffectError
		if errors.As(err, &se) {
			s.metrics.ObserveTransition(string(cmd.Event), "conflict")
		} else {
			s.metrics.ObserveTransition(string(cmd.Event), "error")
		}
	}
	return result, err
}

func (s *Service) send(ctx context.Context, bookingID uuid.UUID, cmd Command) (*TransitionResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := s.repo.GetForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*TransitionResult, error) {
		return &TransitionResult{
			PreviousState: b.State,
			CurrentState:  b.State,
			Error:         err.Error(),
		}, err
	}

	if IsTerminal(b.State) {
		return fail(fmt.Errorf("booking: %s: %w", b.State, ErrTerminalState))
	}
	tr, ok := findTransition(b.State, cmd)
	if !ok {
		return fail(fmt.Errorf("booking: %s from %s: %w", cmd.Event, b.State, ErrInvalidTransition))
	}
	if !tr.Guard(b, cmd) {
		return fail(fmt.Errorf("booking: %s by %s: %w", cmd.Event, cmd.Actor.Type, ErrUnauthorized))
	}

	if err := s.applyHoldAction(ctx, tx, b, tr); err != nil {
		return fail(err)
	}
	s.applyMetadata(b, cmd)

	if err := s.rearmTimeouts(ctx, tx, b, tr); err != nil {
		return fail(err)
	}

	if err := s.repo.UpdateState(ctx, tx, b.ID, tr.To, b.Metadata); err != nil {
		return fail(err)
	}
	entry := &HistoryEntry{
		BookingID: b.ID,
		State:     tr.To,
		Event:     string(cmd.Event),
		ActorType: cmd.Actor.Type,
		ActorID:   cmd.Actor.ID,
	}
	if err := s.repo.AppendHistory(ctx, tx, entry); err != nil {
		return fail(err)
	}
	if err := s.recordEffects(ctx, tx, b, tr, cmd); err != nil {
		return fail(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("booking: commit transition: %w", err))
	}
	if tr.Hold != holdNone {
		// The hold mutation is visible only now; invalidating earlier would
		// let a concurrent reader repopulate the cache from pre-commit state.
		s.holds.InvalidateSlot(ctx, b.ProviderID, b.ServiceDate)
	}

	s.logger.Info("booking transition",
		"booking_id", b.ID,
		"event", cmd.Event,
		"from", b.State,
		"to", tr.To,
		"actor", cmd.Actor.Type,
	)
	return &TransitionResult{
		Success:       true,
		PreviousState: b.State,
		CurrentState:  tr.To,
		SideEffects:   tr.SideEffects,
	}, nil
}

// applyHoldAction runs the transition's concurrency side effect inside the
// transaction. A failure aborts the whole transition.
func (s *Service) applyHoldAction(ctx context.Context, tx pgx.Tx, b *Booking, tr *transition) error {
	switch tr.Hold {
	case holdAcquire:
		hold, err := s.holds.PlaceHold(ctx, tx, holds.PlaceHoldRequest{
			ProviderID: b.ProviderID,
			Date:       b.ServiceDate,
			StartTime:  b.StartTime,
			EndTime:    b.EndTime,
			Requester: holds.Requester{
				CustomerID:     b.CustomerID,
				GuestSessionID: b.GuestSessionID,
			},
			DurationMinutes: s.cfg.HoldDurationMinutes,
		})
		if err != nil {
			return &SideEffectError{Cause: err}
		}
		b.Metadata[MetaHoldID] = hold.ID.String()

	case holdConvert:
		holdID, ok := b.HoldID()
		if !ok {
			return &SideEffectError{Cause: fmt.Errorf("booking %s has no hold to convert", b.ID)}
		}
		if err := s.holds.ConvertHold(ctx, tx, holdID); err != nil {
			return &SideEffectError{Cause: err}
		}

	case holdRelease:
		holdID, ok := b.HoldID()
		if !ok {
			return nil
		}
		err := s.holds.ReleaseHold(ctx, tx, holdID)
		if err != nil && !errors.Is(err, holds.ErrHoldNotFound) {
			return &SideEffectError{Cause: err}
		}
	}
	return nil
}

func (s *Service) applyMetadata(b *Booking, cmd Command) {
	switch cmd.Event {
	case EventCustomerCancel, EventProviderCancel:
		if cmd.Reason != "" {
			b.Metadata[MetaCancellationReason] = cmd.Reason
		}
	case EventProcessRefund:
		b.Metadata[MetaRefundType] = cmd.RefundType
		amount := cmd.AmountCents
		if cmd.RefundType == RefundFull || amount <= 0 {
			amount = b.TotalCents
		}
		b.Metadata[MetaRefundAmountCents] = amount
	case EventInitiateDispute:
		if cmd.Reason != "" {
			b.Metadata[MetaDisputeReason] = cmd.Reason
		}
	}
}

// rearmTimeouts disarms whatever the previous state had pending and
// schedules the timers the new state needs.
func (s *Service) rearmTimeouts(ctx context.Context, tx pgx.Tx, b *Booking, tr *transition) error {
	if err := s.timeouts.CancelPending(ctx, tx, b.ID); err != nil {
		return err
	}
	for _, kind := range tr.Schedules {
		due, ok := s.dueAt(b, kind)
		if !ok {
			continue
		}
		t := &timeouts.Timeout{BookingID: b.ID, Kind: kind, DueAt: due}
		if err := s.timeouts.Schedule(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) dueAt(b *Booking, kind string) (time.Time, bool) {
	now := s.now().UTC()
	switch kind {
	case timeouts.KindHoldExpiry:
		return now.Add(time.Duration(s.cfg.HoldDurationMinutes) * time.Minute), true
	case timeouts.KindPaymentTimeout:
		return now.Add(s.cfg.PaymentTimeout), true
	case timeouts.KindReminder:
		slotStart, err := time.Parse("2006-01-02 15:04", b.ServiceDate+" "+b.StartTime)
		if err != nil {
			return time.Time{}, false
		}
		due := slotStart.Add(-s.cfg.ReminderLeadTime)
		if due.Before(now) {
			return time.Time{}, false
		}
		return due, true
	}
	return time.Time{}, false
}

func (s *Service) recordEffects(ctx context.Context, tx pgx.Tx, b *Booking, tr *transition, cmd Command) error {
	for _, effect := range tr.SideEffects {
		payload := notify.EffectPayload{
			Event:       string(cmd.Event),
			State:       string(tr.To),
			ServiceName: b.ServiceName,
			ServiceDate: b.ServiceDate,
			StartTime:   b.StartTime,
			Reason:      cmd.Reason,
		}
		if _, err := s.outbox.Insert(ctx, tx, b.ID, b.ProviderID, b.ServiceDate, effect, payload); err != nil {
			return err
		}
	}
	return nil
}

// GetBooking loads a booking.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, nil, id)
}

// ListBookings returns a provider's bookings for one service date.
func (s *Service) ListBookings(ctx context.Context, providerID uuid.UUID, date string) ([]Booking, error) {
	return s.repo.ListByProviderAndDate(ctx, providerID, date)
}

// GetHistory returns the booking's lifecycle entries oldest first.
func (s *Service) GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, nil, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// GetAvailableEvents returns the events the booking's current state accepts.
func (s *Service) GetAvailableEvents(ctx context.Context, id uuid.UUID) (State, []Event, error) {
	b, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return "", nil, err
	}
	return b.State, AvailableEvents(b.State), nil
}

// HandleTimeout reacts to a fired timer. Lifecycle kinds become scheduler
// events; reminders only record a notification. A booking that already moved
// on makes the timer a no-op.
func (s *Service) HandleTimeout(ctx context.Context, bookingID uuid.UUID, kind string) error {
	if kind == timeouts.KindReminder {
		b, err := s.repo.GetByID(ctx, nil, bookingID)
		if err != nil {
			return err
		}
		if b.State != StateConfirmed {
			return nil
		}
		payload := notify.EffectPayload{
			State:       string(b.State),
			ServiceName: b.ServiceName,
			ServiceDate: b.ServiceDate,
			StartTime:   b.StartTime,
		}
		_, err = s.outbox.Insert(ctx, nil, b.ID, b.ProviderID, b.ServiceDate, "Reminder sent", payload)
		return err
	}

	_, err := s.Send(ctx, bookingID, Command{
		Event:       EventTimeoutExpired,
		Actor:       Actor{Type: ActorScheduler},
		TimeoutKind: kind,
	})
	if errors.Is(err, ErrTerminalState) || errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

var _ timeouts.Handler = (*Service)(nil)
