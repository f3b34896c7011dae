package scheduling

import "time"

// ActiveWindow is how far back a completed visit keeps a patient active.
const ActiveWindow = 30 * 24 * time.Hour

// DeriveStatus computes the patient lifecycle label from their visit history.
// Only meeting and appointment bookings count. The result depends on nothing
// but bookings and now.
//
// Priority: scheduled > active > lost > inactive > new.
func DeriveStatus(bookings []Booking, now time.Time) LifecycleStatus {
	var (
		visits    int
		open      bool
		completed bool
		recent    bool
		missed    bool
	)

	cutoff := now.Add(-ActiveWindow)

	for _, b := range bookings {
		if !b.Kind.IsVisit() {
			continue
		}
		visits++

		// A visit with no recorded outcome is still pending.
		outcome := OutcomePending
		if b.Outcome != nil {
			outcome = *b.Outcome
		}

		switch outcome {
		case OutcomePending, OutcomeConfirmed:
			open = true
		case OutcomeCompleted:
			completed = true
			at := b.ScheduledAt
			if b.CompletedAt != nil {
				at = *b.CompletedAt
			}
			if !at.Before(cutoff) {
				recent = true
			}
		case OutcomeNoShow, OutcomeCancelled:
			missed = true
		default:
			open = true
		}
	}

	switch {
	case visits == 0:
		return StatusNew
	case open:
		return StatusScheduled
	case recent:
		return StatusActive
	case !completed && missed:
		return StatusLost
	default:
		return StatusInactive
	}
}
