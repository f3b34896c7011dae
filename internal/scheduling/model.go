package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type BookingKind string

const (
	KindCall        BookingKind = "call"
	KindMessage     BookingKind = "message"
	KindEmail       BookingKind = "email"
	KindMeeting     BookingKind = "meeting"
	KindAppointment BookingKind = "appointment"
)

// Valid reports whether k is one of the known kinds.
func (k BookingKind) Valid() bool {
	switch k {
	case KindCall, KindMessage, KindEmail, KindMeeting, KindAppointment:
		return true
	}
	return false
}

// IsVisit reports whether the kind occupies the clinic calendar and counts
// towards the patient lifecycle.
func (k BookingKind) IsVisit() bool {
	return k == KindMeeting || k == KindAppointment
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCompleted Outcome = "completed"
	OutcomeNoShow    Outcome = "noShow"
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeConfirmed, OutcomeCompleted, OutcomeNoShow, OutcomeCancelled:
		return true
	}
	return false
}

// Settled reports whether the outcome closes the visit.
func (o Outcome) Settled() bool {
	return o == OutcomeCompleted || o == OutcomeNoShow || o == OutcomeCancelled
}

type ConflictReason string

const (
	ConflictNone     ConflictReason = "none"
	ConflictLocal    ConflictReason = "local"
	ConflictExternal ConflictReason = "external"
)

type LifecycleStatus string

const (
	StatusNew       LifecycleStatus = "new"
	StatusScheduled LifecycleStatus = "scheduled"
	StatusActive    LifecycleStatus = "active"
	StatusInactive  LifecycleStatus = "inactive"
	StatusLost      LifecycleStatus = "lost"
)

// TimeSlot is a candidate start time on a given day. It is recomputed for
// every query and never stored.
type TimeSlot struct {
	Time           string // HH:MM in the clinic time zone
	Date           string // YYYY-MM-DD in the clinic time zone
	Start          time.Time
	End            time.Time
	Available      bool
	ConflictReason ConflictReason
}

// BusyTime is an occupied [Start, End) range owned by the external calendar.
type BusyTime struct {
	Start time.Time
	End   time.Time
}

type Booking struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	ScheduledAt      time.Time
	DurationMinutes  int
	Kind             BookingKind
	Notes            string
	Completed        bool
	CompletedAt      *time.Time
	Outcome          *Outcome
	ExternalEventID  *string
	ExternalJoinLink *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// End returns the instant the booking stops occupying the calendar.
func (b Booking) End() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Occupies reports whether the booking blocks overlapping slots.
// Cancelled, no-show and completed visits free their time.
func (b Booking) Occupies() bool {
	if !b.Kind.IsVisit() || b.Completed {
		return false
	}
	if b.Outcome == nil {
		return true
	}
	switch *b.Outcome {
	case OutcomeCancelled, OutcomeNoShow, OutcomeCompleted:
		return false
	}
	return true
}

// NewBooking carries the fields the store needs to create a booking.
type NewBooking struct {
	PatientID       uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Kind            BookingKind
	Notes           string
	Outcome         *Outcome
}

// PatientContact is what the calendar mirror needs to invite the patient.
type PatientContact struct {
	PatientID uuid.UUID
	Name      string
	Email     *string
	Phone     *string
}

// ExternalEvent is the mirrored calendar event created for a meeting.
type ExternalEvent struct {
	ID       string
	JoinLink string
}

// EventLog is an audit row for a booking lifecycle event.
type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
