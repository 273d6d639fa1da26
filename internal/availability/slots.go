package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// DefaultGranularityMinutes is the candidate step used when a request does
// not specify one.
const DefaultGranularityMinutes = 15

var (
	// ErrMalformedTime is returned for time strings not in HH:MM form.
	ErrMalformedTime = errors.New("malformed time, want HH:MM")

	// ErrInvalidInterval is returned when an end time is not after its start.
	ErrInvalidInterval = errors.New("end time must be after start time")
)

// SlotRequest are the inputs to ComputeSlots beyond the provider's own
// window/block/occupancy data.
type SlotRequest struct {
	Date                string
	DurationMinutes     int
	GranularityMinutes  int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	Settings            Settings
	Now                 time.Time
}

// ComputeSlots turns a provider's window, blocked slots, and occupied
// intervals for one date into an ordered sequence of candidate slots.
// A nil or inactive window yields an empty sequence. The function is pure:
// callers supply everything, including the clock.
func ComputeSlots(window *Window, blocked []BlockedSlot, occupied []Interval, req SlotRequest) ([]Slot, error) {
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("availability: duration must be positive, got %d", req.DurationMinutes)
	}
	granularity := req.GranularityMinutes
	if granularity == 0 {
		granularity = DefaultGranularityMinutes
	}
	if granularity < 0 {
		return nil, fmt.Errorf("availability: granularity must be positive, got %d", granularity)
	}
	if req.BufferBeforeMinutes < 0 || req.BufferAfterMinutes < 0 {
		return nil, fmt.Errorf("availability: buffers must not be negative")
	}
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return nil, fmt.Errorf("availability: parse date %q: %w", req.Date, err)
	}

	if window == nil || !window.Active {
		return []Slot{}, nil
	}

	winStart, err := ClockToMinutes(window.StartTime)
	if err != nil {
		return nil, err
	}
	winEnd, err := ClockToMinutes(window.EndTime)
	if err != nil {
		return nil, err
	}
	if winEnd <= winStart {
		return nil, fmt.Errorf("availability: window %s-%s: %w", window.StartTime, window.EndTime, ErrInvalidInterval)
	}

	blockedIntervals, err := blockedToIntervals(blocked)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if req.Settings.Timezone != "" {
		loc, err = time.LoadLocation(req.Settings.Timezone)
		if err != nil {
			return nil, fmt.Errorf("availability: load timezone %q: %w", req.Settings.Timezone, err)
		}
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)
	earliest := now.Add(time.Duration(req.Settings.MinimumNoticeHours) * time.Hour)
	var latestDay time.Time
	if req.Settings.MaxAdvanceDays > 0 {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		latestDay = today.AddDate(0, 0, req.Settings.MaxAdvanceDays+1)
	}

	var slots []Slot
	for start := winStart; start+req.DurationMinutes <= winEnd; start += granularity {
		end := start + req.DurationMinutes

		// Occupied footprint includes the buffers around the appointment.
		occStart := start - req.BufferBeforeMinutes
		occEnd := end + req.BufferAfterMinutes

		slot := Slot{
			Date:      req.Date,
			StartTime: MinutesToClock(start),
			EndTime:   MinutesToClock(end),
			Available: true,
		}

		for _, b := range blockedIntervals {
			if b.Overlaps(occStart, occEnd) {
				slot.IsBlocked = true
				slot.Available = false
				break
			}
		}
		for _, o := range occupied {
			if !o.Overlaps(occStart, occEnd) {
				continue
			}
			slot.Available = false
			if o.Kind == KindBooking {
				slot.IsBooked = true
			}
		}

		slotStart := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
		if slotStart.Before(earliest) {
			slot.Available = false
		}
		if !latestDay.IsZero() && !slotStart.Before(latestDay) {
			slot.Available = false
		}

		slots = append(slots, slot)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

func blockedToIntervals(blocked []BlockedSlot) ([]Interval, error) {
	intervals := make([]Interval, 0, len(blocked))
	for _, b := range blocked {
		if b.StartTime == nil || b.EndTime == nil {
			intervals = append(intervals, Interval{StartMinute: 0, EndMinute: minutesPerDay})
			continue
		}
		start, err := ClockToMinutes(*b.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := ClockToMinutes(*b.EndTime)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("availability: block %s-%s: %w", *b.StartTime, *b.EndTime, ErrInvalidInterval)
		}
		intervals = append(intervals, Interval{StartMinute: start, EndMinute: end})
	}
	return intervals, nil
}

// ClockToMinutes parses an HH:MM string into minutes from midnight.
func ClockToMinutes(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("availability: %q: %w", clock, ErrMalformedTime)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("availability: %q: %w", clock, ErrMalformedTime)
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("availability: %q: %w", clock, ErrMalformedTime)
	}
	if hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("availability: %q: %w", clock, ErrMalformedTime)
	}
	return hours*60 + mins, nil
}

// MinutesToClock renders minutes from midnight as HH:MM.
func MinutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
