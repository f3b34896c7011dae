package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type SlotResponse struct {
	Time           string    `json:"time"`
	Date           string    `json:"date"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Available      bool      `json:"available"`
	ConflictReason string    `json:"conflict_reason"`
}

type SlotsResponse struct {
	Date              string         `json:"date"`
	DurationMinutes   int            `json:"duration_minutes"`
	CalendarConnected bool           `json:"calendar_connected"`
	ExternalDegraded  bool           `json:"external_degraded"`
	Slots             []SlotResponse `json:"slots"`
}

// CreateBookingRequest names the slot either by Start (RFC 3339) or by the
// Date and Time pair returned from GET /slots.
type CreateBookingRequest struct {
	Start           string  `json:"start,omitempty"`
	Date            string  `json:"date,omitempty"`
	Time            string  `json:"time,omitempty"`
	Kind            string  `json:"kind"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	TreatmentID     *string `json:"treatment_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

type BookingResponse struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	DurationMinutes  int        `json:"duration_minutes"`
	Kind             string     `json:"kind"`
	Notes            string     `json:"notes,omitempty"`
	Outcome          *string    `json:"outcome,omitempty"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ExternalEventID  *string    `json:"external_event_id,omitempty"`
	ExternalJoinLink *string    `json:"join_link,omitempty"`
}

type WarningResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateBookingResponse struct {
	Booking       BookingResponse   `json:"booking"`
	PatientStatus string            `json:"patient_status,omitempty"`
	Warnings      []WarningResponse `json:"warnings"`
}

type PatientStatusResponse struct {
	PatientID uuid.UUID `json:"patient_id"`
	Status    string    `json:"status"`
}

type UpdateOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func toSlotsResponse(res *scheduling.SlotsResult) SlotsResponse {
	slots := make([]SlotResponse, len(res.Slots))
	for i, s := range res.Slots {
		slots[i] = SlotResponse{
			Time:           s.Time,
			Date:           s.Date,
			Start:          s.Start,
			End:            s.End,
			Available:      s.Available,
			ConflictReason: string(s.ConflictReason),
		}
	}
	return SlotsResponse{
		Date:              res.Date,
		DurationMinutes:   res.DurationMinutes,
		CalendarConnected: res.CalendarConnected,
		ExternalDegraded:  res.ExternalDegraded,
		Slots:             slots,
	}
}

func toBookingResponse(b scheduling.Booking) BookingResponse {
	resp := BookingResponse{
		ID:               b.ID,
		PatientID:        b.PatientID,
		ScheduledAt:      b.ScheduledAt,
		DurationMinutes:  b.DurationMinutes,
		Kind:             string(b.Kind),
		Notes:            b.Notes,
		Completed:        b.Completed,
		CompletedAt:      b.CompletedAt,
		ExternalEventID:  b.ExternalEventID,
		ExternalJoinLink: b.ExternalJoinLink,
	}
	if b.Outcome != nil {
		o := string(*b.Outcome)
		resp.Outcome = &o
	}
	return resp
}

func toCreateBookingResponse(res *scheduling.BookingResult) CreateBookingResponse {
	warnings := make([]WarningResponse, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, WarningResponse{Code: string(w.Code()), Message: w.Error()})
	}
	return CreateBookingResponse{
		Booking:       toBookingResponse(res.Booking),
		PatientStatus: string(res.Status),
		Warnings:      warnings,
	}
}
