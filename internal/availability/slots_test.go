package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayWindow() *Window {
	return &Window{Weekday: 1, StartTime: "09:00", EndTime: "17:00", Active: true}
}

// 2026-09-07 is a Monday.
const testMonday = "2026-09-07"

func baseRequest() SlotRequest {
	return SlotRequest{
		Date:               testMonday,
		DurationMinutes:    60,
		GranularityMinutes: 15,
		Settings:           Settings{Timezone: "UTC"},
		Now:                time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestComputeSlotsFullOpenDay(t *testing.T) {
	slots, err := ComputeSlots(mondayWindow(), nil, nil, baseRequest())
	require.NoError(t, err)

	// 09:00 through 16:00 starts inclusive, stepping 15 minutes.
	require.Len(t, slots, 29)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "10:00", slots[0].EndTime)
	assert.Equal(t, "16:00", slots[len(slots)-1].StartTime)
	assert.Equal(t, "17:00", slots[len(slots)-1].EndTime)
	for _, s := range slots {
		assert.True(t, s.Available, "slot %s should be available", s.StartTime)
		assert.False(t, s.IsBooked)
		assert.False(t, s.IsBlocked)
	}
}

func TestComputeSlotsBookedInterval(t *testing.T) {
	occupied := []Interval{{StartMinute: 14 * 60, EndMinute: 15 * 60, Kind: KindBooking}}
	slots, err := ComputeSlots(mondayWindow(), nil, occupied, baseRequest())
	require.NoError(t, err)

	byStart := map[string]Slot{}
	for _, s := range slots {
		byStart[s.StartTime] = s
	}

	booked := byStart["14:00"]
	assert.False(t, booked.Available)
	assert.True(t, booked.IsBooked)

	// Candidates whose 60-minute span crosses the booking are also unavailable.
	assert.False(t, byStart["13:30"].Available)
	assert.False(t, byStart["14:45"].Available)

	// Non-overlapping neighbours are untouched.
	assert.True(t, byStart["13:00"].Available)
	assert.True(t, byStart["15:00"].Available)
}

func TestComputeSlotsHeldIntervalNotMarkedBooked(t *testing.T) {
	occupied := []Interval{{StartMinute: 10 * 60, EndMinute: 11 * 60, Kind: KindHold}}
	slots, err := ComputeSlots(mondayWindow(), nil, occupied, baseRequest())
	require.NoError(t, err)

	for _, s := range slots {
		if s.StartTime == "10:00" {
			assert.False(t, s.Available)
			assert.False(t, s.IsBooked)
			assert.False(t, s.IsBlocked)
		}
	}
}

func TestComputeSlotsWholeDayBlock(t *testing.T) {
	blocked := []BlockedSlot{{Date: testMonday}}
	slots, err := ComputeSlots(mondayWindow(), blocked, nil, baseRequest())
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.False(t, s.Available)
		assert.True(t, s.IsBlocked)
	}
}

func TestComputeSlotsPartialBlock(t *testing.T) {
	start, end := "12:00", "13:00"
	blocked := []BlockedSlot{{Date: testMonday, StartTime: &start, EndTime: &end}}
	slots, err := ComputeSlots(mondayWindow(), blocked, nil, baseRequest())
	require.NoError(t, err)

	for _, s := range slots {
		switch s.StartTime {
		case "12:00":
			assert.True(t, s.IsBlocked)
			assert.False(t, s.Available)
		case "11:00", "13:00":
			assert.True(t, s.Available, "slot %s", s.StartTime)
		}
	}
}

func TestComputeSlotsBuffersWidenFootprint(t *testing.T) {
	// Booking at 12:00-13:00; with a 30-minute buffer after, the 11:15 slot
	// footprint reaches 12:45 and collides.
	occupied := []Interval{{StartMinute: 12 * 60, EndMinute: 13 * 60, Kind: KindBooking}}
	req := baseRequest()
	req.BufferAfterMinutes = 30
	slots, err := ComputeSlots(mondayWindow(), nil, occupied, req)
	require.NoError(t, err)

	for _, s := range slots {
		if s.StartTime == "11:15" {
			assert.False(t, s.Available)
		}
		if s.StartTime == "10:45" {
			assert.True(t, s.Available)
		}
	}
}

func TestComputeSlotsMinimumNotice(t *testing.T) {
	req := baseRequest()
	req.Settings.MinimumNoticeHours = 4
	// 08:00 on the requested Monday: slots before 12:00 fall inside notice.
	req.Now = time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)

	slots, err := ComputeSlots(mondayWindow(), nil, nil, req)
	require.NoError(t, err)
	for _, s := range slots {
		start, perr := ClockToMinutes(s.StartTime)
		require.NoError(t, perr)
		if start < 12*60 {
			assert.False(t, s.Available, "slot %s inside notice window", s.StartTime)
		} else {
			assert.True(t, s.Available, "slot %s outside notice window", s.StartTime)
		}
	}
}

func TestComputeSlotsMaxAdvance(t *testing.T) {
	req := baseRequest()
	req.Settings.MaxAdvanceDays = 3
	req.Now = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	slots, err := ComputeSlots(mondayWindow(), nil, nil, req)
	require.NoError(t, err)
	for _, s := range slots {
		assert.False(t, s.Available, "slot %s beyond advance limit", s.StartTime)
	}
}

func TestComputeSlotsNoWindow(t *testing.T) {
	slots, err := ComputeSlots(nil, nil, nil, baseRequest())
	require.NoError(t, err)
	assert.Empty(t, slots)

	inactive := mondayWindow()
	inactive.Active = false
	slots, err = ComputeSlots(inactive, nil, nil, baseRequest())
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlotsMalformedInput(t *testing.T) {
	t.Run("bad window time", func(t *testing.T) {
		w := &Window{Weekday: 1, StartTime: "nine", EndTime: "17:00", Active: true}
		_, err := ComputeSlots(w, nil, nil, baseRequest())
		assert.True(t, errors.Is(err, ErrMalformedTime))
	})
	t.Run("inverted window", func(t *testing.T) {
		w := &Window{Weekday: 1, StartTime: "17:00", EndTime: "09:00", Active: true}
		_, err := ComputeSlots(w, nil, nil, baseRequest())
		assert.True(t, errors.Is(err, ErrInvalidInterval))
	})
	t.Run("zero duration", func(t *testing.T) {
		req := baseRequest()
		req.DurationMinutes = 0
		_, err := ComputeSlots(mondayWindow(), nil, nil, req)
		assert.Error(t, err)
	})
	t.Run("bad date", func(t *testing.T) {
		req := baseRequest()
		req.Date = "07/09/2026"
		_, err := ComputeSlots(mondayWindow(), nil, nil, req)
		assert.Error(t, err)
	})
	t.Run("inverted block", func(t *testing.T) {
		start, end := "13:00", "12:00"
		blocked := []BlockedSlot{{Date: testMonday, StartTime: &start, EndTime: &end}}
		_, err := ComputeSlots(mondayWindow(), blocked, nil, baseRequest())
		assert.True(t, errors.Is(err, ErrInvalidInterval))
	})
}

func TestClockRoundTrip(t *testing.T) {
	m, err := ClockToMinutes("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)
	assert.Equal(t, "09:30", MinutesToClock(570))

	_, err = ClockToMinutes("24:00")
	assert.Error(t, err)
	_, err = ClockToMinutes("12:60")
	assert.Error(t, err)
}
