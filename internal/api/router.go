package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// Scheduler is the booking surface the handlers drive.
type Scheduler interface {
	ListSlots(ctx context.Context, q scheduling.SlotQuery) (*scheduling.SlotsResult, error)
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.BookingResult, error)
	UpdateOutcome(ctx context.Context, id uuid.UUID, outcome scheduling.Outcome) (*scheduling.Booking, error)
	CompleteBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)
	PatientStatus(ctx context.Context, patientID uuid.UUID) (scheduling.LifecycleStatus, error)
	ListPatientBookings(ctx context.Context, patientID uuid.UUID) ([]scheduling.Booking, error)
}

// CalendarConnector drives the clinic's OAuth connection to its calendar.
type CalendarConnector interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	Disconnect(ctx context.Context) error
	IsConnected(ctx context.Context) bool
}

type RouterConfig struct {
	Service  Scheduler
	Calendar CalendarConnector // nil when the integration is not configured
	Health   *HealthHandler
	Location *time.Location // clinic time zone for date/time inputs
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Get("/slots", listSlotsHandler(cfg.Service, cfg.Location))

	r.Route("/patients/{id}", func(r chi.Router) {
		r.Post("/bookings", createBookingHandler(cfg.Service, cfg.Location))
		r.Get("/bookings", listBookingsHandler(cfg.Service))
		r.Get("/status", patientStatusHandler(cfg.Service))
	})

	r.Route("/bookings/{id}", func(r chi.Router) {
		r.Post("/outcome", updateOutcomeHandler(cfg.Service))
		r.Post("/complete", bookingActionHandler(cfg.Service.CompleteBooking))
		r.Post("/cancel", bookingActionHandler(cfg.Service.CancelBooking))
	})

	cal := newCalendarHandler(cfg.Calendar)
	r.Get("/calendar/connect", cal.Connect)
	r.Get("/calendar/callback", cal.Callback)
	r.Delete("/calendar/connect", cal.Disconnect)

	return r
}
