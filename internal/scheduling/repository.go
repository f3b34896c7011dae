package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the patient-record store. It owns all booking writes.
type Store interface {
	CreateBooking(ctx context.Context, nb NewBooking) (*Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, patientID uuid.UUID) ([]Booking, error)

	// For occupancy checks
	ListBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error)

	// Staff actions
	UpdateBookingOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) (*Booking, error)
	CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error)

	// Calendar mirror bookkeeping
	AttachExternalEvent(ctx context.Context, id uuid.UUID, ev ExternalEvent) error

	GetPatientContact(ctx context.Context, patientID uuid.UUID) (*PatientContact, error)
	TreatmentDuration(ctx context.Context, treatmentID uuid.UUID) (int, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// BusySource returns externally owned busy ranges overlapping [from, to).
type BusySource interface {
	ListBusyTimes(ctx context.Context, from, to time.Time) ([]BusyTime, error)
}

// Calendar is the external calendar integration.
type Calendar interface {
	BusySource
	IsConnected(ctx context.Context) bool
	CreateEvent(ctx context.Context, b Booking, contact PatientContact) (*ExternalEvent, error)
}

// Locker serialises booking attempts that share a key (the clinic day).
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
