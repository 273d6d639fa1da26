package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// ScheduleSource supplies a provider's recurring windows and date blocks.
// *Repository implements it.
type ScheduleSource interface {
	WindowForWeekday(ctx context.Context, providerID uuid.UUID, weekday int) (*Window, error)
	BlocksForDate(ctx context.Context, providerID uuid.UUID, date string) ([]BlockedSlot, error)
}

// OccupancySource supplies the intervals already taken by bookings and
// active holds. The holds repository implements it.
type OccupancySource interface {
	OccupiedIntervals(ctx context.Context, providerID uuid.UUID, date string) ([]Interval, error)
}

// Defaults are the scheduling policy values applied when a query does not
// override them.
type Defaults struct {
	GranularityMinutes int
	MinimumNoticeHours int
	MaxAdvanceDays     int
	Timezone           string
}

// Service computes availability for display and selection, with a
// read-through cache in front of the calculator.
type Service struct {
	schedule  ScheduleSource
	occupancy OccupancySource
	cache     *Cache
	defaults  Defaults
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates an availability service. cache may be nil.
func NewService(schedule ScheduleSource, occupancy OccupancySource, cache *Cache, defaults Defaults, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if defaults.GranularityMinutes <= 0 {
		defaults.GranularityMinutes = DefaultGranularityMinutes
	}
	return &Service{
		schedule:  schedule,
		occupancy: occupancy,
		cache:     cache,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SlotQuery shapes one availability computation.
type SlotQuery struct {
	DurationMinutes     int
	GranularityMinutes  int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	Timezone            string
}

// DayAvailability is the payload for one date of a range query.
type DayAvailability struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// SlotsForDate returns the candidate slots for one provider and date,
// serving from cache when possible.
func (s *Service) SlotsForDate(ctx context.Context, providerID uuid.UUID, date string, q SlotQuery) ([]Slot, error) {
	if slots, ok := s.cache.Get(ctx, providerID, date, q); ok {
		return slots, nil
	}
	slots, err := s.computeDirect(ctx, providerID, date, q)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, providerID, date, q, slots)
	return slots, nil
}

// GetAvailability computes slots for a contiguous date range.
func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID, startDate string, days int, q SlotQuery) ([]DayAvailability, error) {
	if days <= 0 {
		days = 1
	}
	start, err := time.Parse(time.DateOnly, startDate)
	if err != nil {
		return nil, fmt.Errorf("availability: parse start date %q: %w", startDate, err)
	}
	out := make([]DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		slots, err := s.SlotsForDate(ctx, providerID, date, q)
		if err != nil {
			return nil, err
		}
		out = append(out, DayAvailability{Date: date, Slots: slots})
	}
	return out, nil
}

// CheckSlot applies the full rule set to a single requested interval:
// inside an active window, not blocked, not occupied, and within the
// notice/advance policy.
func (s *Service) CheckSlot(ctx context.Context, providerID uuid.UUID, date, startTime, endTime string, tz string) (bool, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return false, fmt.Errorf("availability: parse date %q: %w", date, err)
	}
	start, err := ClockToMinutes(startTime)
	if err != nil {
		return false, err
	}
	end, err := ClockToMinutes(endTime)
	if err != nil {
		return false, err
	}
	if end <= start {
		return false, fmt.Errorf("availability: %s-%s: %w", startTime, endTime, ErrInvalidInterval)
	}

	window, err := s.schedule.WindowForWeekday(ctx, providerID, int(day.Weekday()))
	if err != nil {
		return false, err
	}
	if window == nil || !window.Active {
		return false, nil
	}
	winStart, err := ClockToMinutes(window.StartTime)
	if err != nil {
		return false, err
	}
	winEnd, err := ClockToMinutes(window.EndTime)
	if err != nil {
		return false, err
	}
	if start < winStart || end > winEnd {
		return false, nil
	}

	blocked, err := s.schedule.BlocksForDate(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	blockedIntervals, err := blockedToIntervals(blocked)
	if err != nil {
		return false, err
	}
	for _, b := range blockedIntervals {
		if b.Overlaps(start, end) {
			return false, nil
		}
	}

	occupied, err := s.occupancy.OccupiedIntervals(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	for _, o := range occupied {
		if o.Overlaps(start, end) {
			return false, nil
		}
	}

	loc := time.UTC
	if tz == "" {
		tz = s.defaults.Timezone
	}
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return false, fmt.Errorf("availability: load timezone %q: %w", tz, err)
		}
	}
	now := s.now().In(loc)
	slotStart := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
	if slotStart.Before(now.Add(time.Duration(s.defaults.MinimumNoticeHours) * time.Hour)) {
		return false, nil
	}
	if s.defaults.MaxAdvanceDays > 0 {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if !slotStart.Before(today.AddDate(0, 0, s.defaults.MaxAdvanceDays+1)) {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate drops the cached availability for a (provider, date) key.
func (s *Service) Invalidate(ctx context.Context, providerID uuid.UUID, date string) {
	s.cache.Invalidate(ctx, providerID, date)
}

func (s *Service) computeDirect(ctx context.Context, providerID uuid.UUID, date string, q SlotQuery) ([]Slot, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("availability: parse date %q: %w", date, err)
	}
	window, err := s.schedule.WindowForWeekday(ctx, providerID, int(day.Weekday()))
	if err != nil {
		return nil, err
	}
	blocked, err := s.schedule.BlocksForDate(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	occupied, err := s.occupancy.OccupiedIntervals(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	granularity := q.GranularityMinutes
	if granularity <= 0 {
		granularity = s.defaults.GranularityMinutes
	}
	tz := q.Timezone
	if tz == "" {
		tz = s.defaults.Timezone
	}
	return ComputeSlots(window, blocked, occupied, SlotRequest{
		Date:                date,
		DurationMinutes:     q.DurationMinutes,
		GranularityMinutes:  granularity,
		BufferBeforeMinutes: q.BufferBeforeMinutes,
		BufferAfterMinutes:  q.BufferAfterMinutes,
		Settings: Settings{
			Timezone:           tz,
			MinimumNoticeHours: s.defaults.MinimumNoticeHours,
			MaxAdvanceDays:     s.defaults.MaxAdvanceDays,
		},
		Now: s.now(),
	})
}
