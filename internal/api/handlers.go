package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func listSlotsHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := scheduling.ParseDate(q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		query := scheduling.SlotQuery{Date: date}

		if raw := q.Get("duration"); raw != "" {
			d, err := strconv.Atoi(raw)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive number of minutes")
				return
			}
			query.DurationMinutes = d
		}

		if raw := q.Get("treatment_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_treatment_id", "treatment_id must be a valid UUID")
				return
			}
			query.TreatmentID = &id
		}

		res, err := svc.ListSlots(r.Context(), query)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotsResponse(res))
	}
}

func createBookingHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathUUID(w, r, "invalid_patient_id")
		if !ok {
			return
		}

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := bookingStart(req, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
			return
		}

		if req.DurationMinutes < 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be positive")
			return
		}

		breq := scheduling.BookingRequest{
			PatientID:       patientID,
			Start:           start,
			Kind:            scheduling.BookingKind(req.Kind),
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		}
		if req.TreatmentID != nil && *req.TreatmentID != "" {
			id, err := uuid.Parse(*req.TreatmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_treatment_id", "treatment_id must be a valid UUID")
				return
			}
			breq.TreatmentID = &id
		}

		res, err := svc.Book(r.Context(), breq)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCreateBookingResponse(res))
	}
}

// bookingStart reads the requested start from either RFC 3339 or the
// date/time pair interpreted in the clinic zone.
func bookingStart(req CreateBookingRequest, loc *time.Location) (time.Time, error) {
	if req.Start != "" {
		t, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			return time.Time{}, errors.New("start must be an RFC 3339 timestamp")
		}
		return t, nil
	}
	if req.Date == "" || req.Time == "" {
		return time.Time{}, errors.New("either start or date and time are required")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD and time HH:MM")
	}
	return t, nil
}

func listBookingsHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathUUID(w, r, "invalid_patient_id")
		if !ok {
			return
		}

		bookings, err := svc.ListPatientBookings(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]BookingResponse, len(bookings))
		for i, b := range bookings {
			resp[i] = toBookingResponse(b)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientStatusHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathUUID(w, r, "invalid_patient_id")
		if !ok {
			return
		}

		status, err := svc.PatientStatus(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PatientStatusResponse{PatientID: patientID, Status: string(status)})
	}
}

func updateOutcomeHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateOutcomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.UpdateOutcome(r.Context(), id, scheduling.Outcome(req.Outcome))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

// bookingActionHandler serves the body-less staff actions on one booking.
func bookingActionHandler(action func(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		b, err := action(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict *scheduling.ConflictError
		persist  *scheduling.PersistenceError
	)

	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrLockBusy):
		w.Header().Set("Retry-After", "1")
		writeServerError(w, r, http.StatusServiceUnavailable, "booking_busy", err)
	case errors.As(err, &persist):
		logging.FromContext(r.Context()).Error().Err(err).Str("op", persist.Op).Msg("booking store failure")
		writeServerError(w, r, http.StatusBadGateway, "persistence_failed", err)
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, scheduling.ErrTreatmentNotFound):
		writeError(w, http.StatusNotFound, "treatment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrBookingSettled):
		writeError(w, http.StatusConflict, "booking_settled", err.Error())
	case errors.Is(err, scheduling.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, "invalid_kind", err.Error())
	case errors.Is(err, scheduling.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, "invalid_outcome", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("unhandled service error")
		writeServerError(w, r, http.StatusInternalServerError, "internal_error", err)
	}
}

// writeServerError tags the body with the request id so a failure the
// client reports can be found in the logs.
func writeServerError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Details:   err.Error(),
		RequestID: GetRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
