package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 3, hour, minute, 0, 0, time.UTC)
}

func outcomePtr(o Outcome) *Outcome { return &o }

func visit(start time.Time, minutes int, outcome *Outcome) Booking {
	return Booking{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ScheduledAt:     start,
		DurationMinutes: minutes,
		Kind:            KindAppointment,
		Outcome:         outcome,
	}
}

func bySlot(slots []TimeSlot) map[string]TimeSlot {
	m := make(map[string]TimeSlot, len(slots))
	for _, s := range slots {
		m[s.Time] = s
	}
	return m
}

// The day before the grid, so no slot is in the past.
var earlier = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

func TestResolveOccupancy_LocalBookingBlocksOverlappingSlots(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "12:00"), 30, 15)
	booked := visit(at(10, 0), 30, outcomePtr(OutcomePending))

	got := bySlot(ResolveOccupancy(grid, []Booking{booked}, nil, earlier))

	assert.True(t, got["09:30"].Available, "09:30-10:00 only touches the booking")
	assert.False(t, got["09:45"].Available)
	assert.Equal(t, ConflictLocal, got["09:45"].ConflictReason)
	assert.False(t, got["10:00"].Available)
	assert.False(t, got["10:15"].Available)
	assert.True(t, got["10:30"].Available)
	assert.Equal(t, ConflictNone, got["10:30"].ConflictReason)
}

func TestResolveOccupancy_ExternalBusy(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "12:00"), 30, 30)
	busy := []BusyTime{{Start: at(11, 0), End: at(11, 20)}}

	got := bySlot(ResolveOccupancy(grid, nil, busy, earlier))

	assert.False(t, got["11:00"].Available)
	assert.Equal(t, ConflictExternal, got["11:00"].ConflictReason)
	assert.True(t, got["10:30"].Available)
	assert.True(t, got["11:30"].Available)
}

func TestResolveOccupancy_LocalWinsOverExternal(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "12:00"), 30, 30)
	booked := visit(at(9, 0), 30, nil)
	busy := []BusyTime{{Start: at(9, 0), End: at(9, 30)}}

	got := bySlot(ResolveOccupancy(grid, []Booking{booked}, busy, earlier))

	assert.False(t, got["09:00"].Available)
	assert.Equal(t, ConflictLocal, got["09:00"].ConflictReason)
}

func TestResolveOccupancy_CancelledBookingFreesSlotButMirrorStillBlocks(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "12:00"), 30, 30)
	cancelled := visit(at(9, 0), 30, outcomePtr(OutcomeCancelled))
	mirror := []BusyTime{{Start: at(9, 0), End: at(9, 30)}}

	got := bySlot(ResolveOccupancy(grid, []Booking{cancelled}, nil, earlier))
	assert.True(t, got["09:00"].Available)

	got = bySlot(ResolveOccupancy(grid, []Booking{cancelled}, mirror, earlier))
	assert.False(t, got["09:00"].Available)
	assert.Equal(t, ConflictExternal, got["09:00"].ConflictReason)
}

func TestResolveOccupancy_NonOccupyingBookings(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "10:00"), 30, 30)

	call := visit(at(9, 0), 30, nil)
	call.Kind = KindCall

	done := visit(at(9, 0), 30, outcomePtr(OutcomeConfirmed))
	done.Completed = true

	noShow := visit(at(9, 30), 30, outcomePtr(OutcomeNoShow))

	for _, s := range ResolveOccupancy(grid, []Booking{call, done, noShow}, nil, earlier) {
		assert.True(t, s.Available, s.Time)
	}
}

func TestResolveOccupancy_PastSlots(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "12:00"), 30, 30)
	busy := []BusyTime{{Start: at(9, 0), End: at(9, 30)}}
	now := at(10, 10)

	got := bySlot(ResolveOccupancy(grid, nil, busy, now))

	for _, past := range []string{"09:00", "09:30", "10:00"} {
		assert.False(t, got[past].Available, past)
		assert.Equal(t, ConflictNone, got[past].ConflictReason, past)
	}
	assert.True(t, got["10:30"].Available)
}

func TestResolveOccupancy_SlotStartingNowIsBookable(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "10:00"), 30, 30)

	got := bySlot(ResolveOccupancy(grid, nil, nil, at(9, 0)))

	assert.True(t, got["09:00"].Available)
}

func TestResolveOccupancy_DoesNotMutateInput(t *testing.T) {
	grid := GenerateSlots(monday, weekdayHours(t, "09:00", "10:00"), 30, 30)
	booked := visit(at(9, 0), 60, nil)

	out := ResolveOccupancy(grid, []Booking{booked}, nil, earlier)

	require.Len(t, out, len(grid))
	for i := range grid {
		assert.True(t, grid[i].Available)
		assert.False(t, out[i].Available)
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"touching before", at(9, 0), at(9, 30), at(9, 30), at(10, 0), false},
		{"touching after", at(10, 0), at(10, 30), at(9, 30), at(10, 0), false},
		{"contained", at(9, 0), at(10, 0), at(9, 15), at(9, 45), true},
		{"partial", at(9, 0), at(9, 30), at(9, 20), at(9, 50), true},
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), true},
		{"disjoint", at(9, 0), at(9, 30), at(11, 0), at(11, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.want, overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}
