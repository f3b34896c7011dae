package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var statusNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func completedVisit(completedAt time.Time) Booking {
	b := visit(completedAt.Add(-time.Hour), 30, outcomePtr(OutcomeCompleted))
	b.Completed = true
	b.CompletedAt = &completedAt
	return b
}

func TestDeriveStatus(t *testing.T) {
	daysAgo := func(d int) time.Time { return statusNow.AddDate(0, 0, -d) }

	call := visit(daysAgo(1), 15, nil)
	call.Kind = KindCall

	tests := []struct {
		name     string
		bookings []Booking
		want     LifecycleStatus
	}{
		{"no bookings", nil, StatusNew},
		{"only non-visit contacts", []Booking{call}, StatusNew},
		{"pending visit", []Booking{visit(daysAgo(-2), 30, outcomePtr(OutcomePending))}, StatusScheduled},
		{"confirmed visit", []Booking{visit(daysAgo(-2), 30, outcomePtr(OutcomeConfirmed))}, StatusScheduled},
		{"visit without outcome", []Booking{visit(daysAgo(-2), 30, nil)}, StatusScheduled},
		{"completed recently", []Booking{completedVisit(daysAgo(10))}, StatusActive},
		{"completed 45 days ago", []Booking{completedVisit(daysAgo(45))}, StatusInactive},
		{"only no-show", []Booking{visit(daysAgo(3), 30, outcomePtr(OutcomeNoShow))}, StatusLost},
		{"only cancelled", []Booking{visit(daysAgo(3), 30, outcomePtr(OutcomeCancelled))}, StatusLost},
		{
			"open visit beats recent completion",
			[]Booking{completedVisit(daysAgo(2)), visit(daysAgo(-7), 30, outcomePtr(OutcomePending))},
			StatusScheduled,
		},
		{
			"recent completion beats no-show",
			[]Booking{completedVisit(daysAgo(5)), visit(daysAgo(3), 30, outcomePtr(OutcomeNoShow))},
			StatusActive,
		},
		{
			"old completion with later no-show is inactive",
			[]Booking{completedVisit(daysAgo(90)), visit(daysAgo(3), 30, outcomePtr(OutcomeNoShow))},
			StatusInactive,
		},
		{
			"contacts do not count towards the lifecycle",
			[]Booking{completedVisit(daysAgo(60)), call},
			StatusInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.bookings, statusNow))
		})
	}
}

func TestDeriveStatus_ActiveWindowBoundary(t *testing.T) {
	onEdge := completedVisit(statusNow.Add(-ActiveWindow))
	assert.Equal(t, StatusActive, DeriveStatus([]Booking{onEdge}, statusNow))

	justPast := completedVisit(statusNow.Add(-ActiveWindow - time.Second))
	assert.Equal(t, StatusInactive, DeriveStatus([]Booking{justPast}, statusNow))
}

func TestDeriveStatus_CompletedWithoutTimestampUsesScheduledAt(t *testing.T) {
	b := visit(statusNow.AddDate(0, 0, -5), 30, outcomePtr(OutcomeCompleted))

	assert.Equal(t, StatusActive, DeriveStatus([]Booking{b}, statusNow))
}

func TestDeriveStatus_Idempotent(t *testing.T) {
	history := []Booking{
		completedVisit(statusNow.AddDate(0, 0, -20)),
		visit(statusNow.AddDate(0, 0, -4), 30, outcomePtr(OutcomeNoShow)),
	}

	first := DeriveStatus(history, statusNow)
	second := DeriveStatus(history, statusNow)

	assert.Equal(t, first, second)
}

func TestDeriveStatus_ActiveDecaysToInactive(t *testing.T) {
	history := []Booking{completedVisit(statusNow)}

	assert.Equal(t, StatusActive, DeriveStatus(history, statusNow))
	assert.Equal(t, StatusActive, DeriveStatus(history, statusNow.AddDate(0, 0, 29)))
	assert.Equal(t, StatusInactive, DeriveStatus(history, statusNow.AddDate(0, 0, 31)))

	// Nothing brings an inactive patient back without a new booking.
	for d := 31; d < 400; d += 30 {
		assert.Equal(t, StatusInactive, DeriveStatus(history, statusNow.AddDate(0, 0, d)))
	}
}

func TestDeriveStatus_FutureCompletionCountsAsRecent(t *testing.T) {
	history := []Booking{completedVisit(statusNow.Add(2 * time.Hour))}

	assert.Equal(t, StatusActive, DeriveStatus(history, statusNow))
}
