package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/internal/observability/metrics"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// DefaultHoldMinutes is how long an acquired hold locks its interval when
// the request does not override it.
const DefaultHoldMinutes = 10

// AvailabilityView is the slice of the availability service the manager
// consumes: rule checks, slot listings, and cache invalidation.
type AvailabilityView interface {
	CheckSlot(ctx context.Context, providerID uuid.UUID, date, startTime, endTime, tz string) (bool, error)
	SlotsForDate(ctx context.Context, providerID uuid.UUID, date string, q availability.SlotQuery) ([]availability.Slot, error)
	Invalidate(ctx context.Context, providerID uuid.UUID, date string)
}

// Manager owns the hold lifecycle: atomic acquire, convert, release, and the
// expiry sweep.
type Manager struct {
	repo    *Repository
	avail   AvailabilityView
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time

	defaultHold time.Duration
}

// NewManager creates a hold manager.
func NewManager(repo *Repository, avail AvailabilityView, logger *logging.Logger, m *metrics.BookingMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		repo:        repo,
		avail:       avail,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		defaultHold: DefaultHoldMinutes * time.Minute,
	}
}

// WithClock overrides the clock, used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// PlaceHoldRequest asks for an exclusive claim on an interval.
type PlaceHoldRequest struct {
	ProviderID      uuid.UUID
	Date            string
	StartTime       string
	EndTime         string
	Requester       Requester
	DurationMinutes int // hold lifetime, not the appointment length
}

// PlaceHold acquires an exclusive hold on the interval. Losing the race
// returns ErrSlotTaken with no side effects. When q is non-nil the acquire
// runs inside that transaction.
func (m *Manager) PlaceHold(ctx context.Context, q Querier, req PlaceHoldRequest) (*Hold, error) {
	if (req.Requester.CustomerID == nil) == (req.Requester.GuestSessionID == "") {
		return nil, ErrInvalidRequester
	}
	start, err := availability.ClockToMinutes(req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := availability.ClockToMinutes(req.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("holds: %s-%s: %w", req.StartTime, req.EndTime, availability.ErrInvalidInterval)
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		return nil, fmt.Errorf("holds: parse date %q: %w", req.Date, err)
	}

	lifetime := m.defaultHold
	if req.DurationMinutes > 0 {
		lifetime = time.Duration(req.DurationMinutes) * time.Minute
	}
	hold := &Hold{
		ID:             uuid.New(),
		ProviderID:     req.ProviderID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		CustomerID:     req.Requester.CustomerID,
		GuestSessionID: req.Requester.GuestSessionID,
		LockedUntil:    m.now().UTC().Add(lifetime),
	}

	if err := m.repo.Acquire(ctx, q, hold); err != nil {
		if err == ErrSlotTaken {
			m.metrics.ObserveHoldAcquire("lost")
			return nil, err
		}
		m.metrics.ObserveHoldAcquire("error")
		return nil, err
	}
	m.metrics.ObserveHoldAcquire("won")
	if q == nil {
		// Inside a caller's transaction the hold is not visible yet;
		// the caller invalidates after commit via InvalidateSlot.
		m.avail.Invalidate(ctx, req.ProviderID, req.Date)
	}
	m.logger.Info("hold placed",
		"hold_id", hold.ID,
		"provider_id", req.ProviderID,
		"date", req.Date,
		"start", req.StartTime,
		"locked_until", hold.LockedUntil,
	)
	return hold, nil
}

// ConvertHold flips an active hold to converted inside the caller's
// transaction; the booking's CONFIRMED state must commit with it.
func (m *Manager) ConvertHold(ctx context.Context, q Querier, holdID uuid.UUID) error {
	return m.repo.Convert(ctx, q, holdID)
}

// ReleaseHold releases a hold and, when running directly against the pool,
// drops the cached availability for its key. In-transaction callers
// invalidate after commit via InvalidateSlot. Idempotent for
// already-released or expired holds.
func (m *Manager) ReleaseHold(ctx context.Context, q Querier, holdID uuid.UUID) error {
	hold, err := m.repo.GetByID(ctx, q, holdID)
	if err != nil {
		return err
	}
	if err := m.repo.Release(ctx, q, holdID); err != nil {
		return err
	}
	if q == nil {
		m.avail.Invalidate(ctx, hold.ProviderID, hold.Date)
	}
	return nil
}

// InvalidateSlot drops the cached availability for a (provider, date) key.
// Callers that mutate holds inside their own transaction call this after
// commit, so a concurrent reader never repopulates the cache from
// pre-commit state.
func (m *Manager) InvalidateSlot(ctx context.Context, providerID uuid.UUID, date string) {
	m.avail.Invalidate(ctx, providerID, date)
}

// GetHold loads a hold by ID.
func (m *Manager) GetHold(ctx context.Context, holdID uuid.UUID) (*Hold, error) {
	return m.repo.GetByID(ctx, nil, holdID)
}

// IsSlotAvailable combines calculator rules with current hold/booking
// occupancy for one interval.
func (m *Manager) IsSlotAvailable(ctx context.Context, providerID uuid.UUID, date, startTime, endTime string) (bool, error) {
	return m.avail.CheckSlot(ctx, providerID, date, startTime, endTime, "")
}

// SweepExpired marks all overdue active holds expired, purges their cache
// entries, and returns the count. Safe to run concurrently.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	keys, err := m.repo.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		m.avail.Invalidate(ctx, k.ProviderID, k.Date)
	}
	if len(keys) > 0 {
		m.metrics.AddSweptExpired(len(keys))
		m.logger.Info("expired holds swept", "count", len(keys))
	}
	return len(keys), nil
}

// FindAlternativeSlots returns up to max available slots for the date,
// ordered by start time ascending. Offered to callers who lost a hold race.
func (m *Manager) FindAlternativeSlots(ctx context.Context, providerID uuid.UUID, date string, durationMinutes int, tz string, max int) ([]availability.Slot, error) {
	if max <= 0 {
		max = 5
	}
	slots, err := m.avail.SlotsForDate(ctx, providerID, date, availability.SlotQuery{
		DurationMinutes: durationMinutes,
		Timezone:        tz,
	})
	if err != nil {
		return nil, err
	}
	alternatives := make([]availability.Slot, 0, max)
	for _, s := range slots {
		if !s.Available {
			continue
		}
		alternatives = append(alternatives, s)
		if len(alternatives) == max {
			break
		}
	}
	return alternatives, nil
}
