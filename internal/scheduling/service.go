package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/logging"
)

const (
	EventBookingCreated        = "BOOKING_CREATED"
	EventBookingOutcomeUpdated = "BOOKING_OUTCOME_UPDATED"
	EventBookingCompleted      = "BOOKING_COMPLETED"
	EventCalendarMirrored      = "CALENDAR_MIRRORED"
	EventCalendarMirrorFailed  = "CALENDAR_MIRROR_FAILED"
)

// Settings is the clinic configuration the slot grid is derived from.
type Settings struct {
	Hours                  WorkingHours
	IntervalMinutes        int
	DefaultDurationMinutes int
	Location               *time.Location
}

// SlotQuery asks for the slot grid of one day. TreatmentID, when set, wins
// over DurationMinutes; with neither the clinic default applies.
type SlotQuery struct {
	Date            time.Time
	DurationMinutes int
	TreatmentID     *uuid.UUID
}

type SlotsResult struct {
	Date              string
	DurationMinutes   int
	Slots             []TimeSlot
	CalendarConnected bool
	// ExternalDegraded is set when the calendar is connected but its busy
	// ranges could not be fetched; slots then reflect local bookings only.
	ExternalDegraded bool
}

type BookingRequest struct {
	PatientID       uuid.UUID
	Start           time.Time
	Kind            BookingKind
	DurationMinutes int
	TreatmentID     *uuid.UUID
	Notes           string
}

// BookingResult is a successful booking plus any soft warnings.
type BookingResult struct {
	Booking  Booking
	Status   LifecycleStatus
	Warnings []Warning
}

func (r *BookingResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

type Service struct {
	store    Store
	calendar Calendar
	locker   Locker
	settings Settings
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the scheduling service. calendar and locker may be nil:
// without a calendar the external busy set is empty and nothing is mirrored,
// without a locker attempts are not serialised.
func NewService(store Store, calendar Calendar, locker Locker, settings Settings, opts ...Option) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	s := &Service{
		store:    store,
		calendar: calendar,
		locker:   locker,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSlots builds the day's grid and attributes availability against local
// bookings and, when connected, external busy ranges.
func (s *Service) ListSlots(ctx context.Context, q SlotQuery) (*SlotsResult, error) {
	duration, err := s.resolveDuration(ctx, q.DurationMinutes, q.TreatmentID)
	if err != nil {
		return nil, err
	}

	day := q.Date.In(s.settings.Location)
	slots, connected, degraded, err := s.resolveDay(ctx, day, duration)
	if err != nil {
		return nil, err
	}

	return &SlotsResult{
		Date:              day.Format(dateLayout),
		DurationMinutes:   duration,
		Slots:             slots,
		CalendarConnected: connected,
		ExternalDegraded:  degraded,
	}, nil
}

// resolveDay is the shared read path of ListSlots and Book.
func (s *Service) resolveDay(ctx context.Context, day time.Time, duration int) (slots []TimeSlot, connected, degraded bool, err error) {
	grid := GenerateSlots(day, s.settings.Hours, duration, s.settings.IntervalMinutes)
	if len(grid) == 0 {
		return nil, false, false, nil
	}

	from, to := dayBounds(day)

	bookings, err := s.store.ListBookingsBetween(ctx, from, to)
	if err != nil {
		return nil, false, false, &PersistenceError{Op: "list bookings", Err: err}
	}

	busy, connected, degraded := s.busyTimes(ctx, from, to)

	return ResolveOccupancy(grid, bookings, busy, s.now()), connected, degraded, nil
}

// busyTimes never fails: a disconnected calendar contributes nothing, and a
// connected one that errors is logged and treated as empty.
func (s *Service) busyTimes(ctx context.Context, from, to time.Time) (busy []BusyTime, connected, degraded bool) {
	if s.calendar == nil || !s.calendar.IsConnected(ctx) {
		return nil, false, false
	}

	busy, err := s.calendar.ListBusyTimes(ctx, from, to)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).
			Time("from", from).Time("to", to).
			Msg("external busy times unavailable, using local bookings only")
		return nil, true, true
	}
	return busy, true, false
}

func (s *Service) resolveDuration(ctx context.Context, minutes int, treatmentID *uuid.UUID) (int, error) {
	if treatmentID != nil {
		d, err := s.store.TreatmentDuration(ctx, *treatmentID)
		if err != nil {
			if errors.Is(err, ErrTreatmentNotFound) {
				return 0, err
			}
			return 0, fmt.Errorf("load treatment duration: %w", err)
		}
		minutes = d
	}
	if minutes == 0 {
		minutes = s.settings.DefaultDurationMinutes
	}
	if minutes <= 0 {
		return 0, ErrInvalidDuration
	}
	return minutes, nil
}

// Book creates a booking for a slot the caller picked from ListSlots.
//
// Steps run strictly in order and are never retried:
//  1. re-resolve the day and reject the slot if it is gone or unavailable
//  2. persist the booking (the durability boundary)
//  3. mirror meetings to the external calendar; failure is a warning
//  4. re-derive the patient's lifecycle status
//
// Steps 1 and 2 run under a per-day lock so that overlapping staggered starts
// cannot both pass validation. Bookings for the same day queue on the lock;
// only the slot check decides whether a booking conflicts.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, ErrPatientNotFound
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	duration, err := s.resolveDuration(ctx, req.DurationMinutes, req.TreatmentID)
	if err != nil {
		return nil, err
	}

	start := req.Start.In(s.settings.Location)
	lockKey := start.Format(dateLayout)

	var created *Booking
	critical := func(lockCtx context.Context) error {
		if err := s.validateSlot(lockCtx, start, duration); err != nil {
			return err
		}

		nb := NewBooking{
			PatientID:       req.PatientID,
			ScheduledAt:     start,
			DurationMinutes: duration,
			Kind:            req.Kind,
			Notes:           req.Notes,
		}
		if req.Kind.IsVisit() {
			pending := OutcomePending
			nb.Outcome = &pending
		}

		b, err := s.store.CreateBooking(lockCtx, nb)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return &ConflictError{Start: start, Reason: ConflictLocal, Err: err}
			}
			if errors.Is(err, ErrPatientNotFound) {
				return err
			}
			return &PersistenceError{Op: "create booking", Err: err}
		}
		created = b
		return nil
	}

	if s.locker != nil {
		err = s.locker.WithSlotLock(ctx, lockKey, critical)
	} else {
		err = critical(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			return nil, s.lockTimedOut(ctx, start, duration, err)
		}
		return nil, err
	}

	logger := logging.FromContext(ctx)
	logger.Info().
		Str("booking_id", created.ID.String()).
		Str("patient_id", created.PatientID.String()).
		Str("kind", string(created.Kind)).
		Time("scheduled_at", created.ScheduledAt).
		Msg("booking created")

	s.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"patient_id":       created.PatientID.String(),
		"scheduled_at":     created.ScheduledAt,
		"duration_minutes": created.DurationMinutes,
		"kind":             created.Kind,
	})

	result := &BookingResult{Booking: *created}

	if created.Kind == KindMeeting {
		if w := s.mirror(ctx, &result.Booking); w != nil {
			logger.Warn().Err(w).Str("booking_id", created.ID.String()).Msg("booking kept without calendar mirror")
			result.Warnings = append(result.Warnings, w)
		}
	}

	history, err := s.store.ListBookings(ctx, created.PatientID)
	if err != nil {
		logger.Warn().Err(err).Str("patient_id", created.PatientID.String()).Msg("status refresh after booking failed")
		result.Warnings = append(result.Warnings, &StatusRefreshWarning{Err: err})
	} else {
		result.Status = DeriveStatus(history, s.now())
	}

	return result, nil
}

// lockTimedOut reports a slot that is really gone as a conflict. A slot that
// is still free only means the day stayed busy for the whole wait, and the
// caller may retry.
func (s *Service) lockTimedOut(ctx context.Context, start time.Time, duration int, lockErr error) error {
	if err := s.validateSlot(ctx, start, duration); err != nil {
		return err
	}
	return fmt.Errorf("book %s: %w", start.Format(time.RFC3339), lockErr)
}

// validateSlot re-runs the read path for start's day.
func (s *Service) validateSlot(ctx context.Context, start time.Time, duration int) error {
	slots, _, _, err := s.resolveDay(ctx, start, duration)
	if err != nil {
		return err
	}

	slot, ok := findSlot(slots, start)
	if !ok {
		return &ConflictError{Start: start, Reason: ConflictNone, Err: errors.New("not a slot of the current grid")}
	}
	if !slot.Available {
		return &ConflictError{Start: start, Reason: slot.ConflictReason}
	}
	return nil
}

// mirror creates the external event for a meeting. b is updated in place
// when the event is recorded.
func (s *Service) mirror(ctx context.Context, b *Booking) Warning {
	if s.calendar == nil || !s.calendar.IsConnected(ctx) {
		return nil
	}

	contact, err := s.store.GetPatientContact(ctx, b.PatientID)
	if err != nil {
		return s.mirrorFailed(ctx, b.ID, fmt.Errorf("load patient contact: %w", err))
	}

	ev, err := s.calendar.CreateEvent(ctx, *b, *contact)
	if err != nil {
		return s.mirrorFailed(ctx, b.ID, err)
	}
	if ev == nil {
		return s.mirrorFailed(ctx, b.ID, errors.New("calendar returned no event"))
	}

	if err := s.store.AttachExternalEvent(ctx, b.ID, *ev); err != nil {
		return s.mirrorFailed(ctx, b.ID, fmt.Errorf("record external event %s: %w", ev.ID, err))
	}

	b.ExternalEventID = &ev.ID
	if ev.JoinLink != "" {
		link := ev.JoinLink
		b.ExternalJoinLink = &link
	}

	s.logEvent(ctx, b.ID, EventCalendarMirrored, map[string]any{
		"external_event_id": ev.ID,
	})
	return nil
}

func (s *Service) mirrorFailed(ctx context.Context, bookingID uuid.UUID, err error) Warning {
	s.logEvent(ctx, bookingID, EventCalendarMirrorFailed, map[string]any{
		"error": err.Error(),
	})
	return &CalendarMirrorWarning{Err: err}
}

// UpdateOutcome records a staff disposition. A completed outcome also marks
// the booking completed. A completed booking cannot be moved back to
// pending or confirmed.
func (s *Service) UpdateOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) (*Booking, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	if outcome == OutcomeCompleted {
		return s.CompleteBooking(ctx, id)
	}

	if !outcome.Settled() {
		current, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return nil, storeError("get booking", err)
		}
		if current.Completed {
			return nil, fmt.Errorf("%w: cannot reopen as %s", ErrBookingSettled, outcome)
		}
	}

	b, err := s.store.UpdateBookingOutcome(ctx, id, outcome)
	if err != nil {
		return nil, storeError("update booking outcome", err)
	}

	s.logEvent(ctx, b.ID, EventBookingOutcomeUpdated, map[string]any{
		"outcome": outcome,
	})
	return b, nil
}

// CompleteBooking is the explicit completion action. Completing twice keeps
// the first completion time.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, storeError("get booking", err)
	}
	if current.Completed && current.CompletedAt != nil {
		return current, nil
	}

	b, err := s.store.CompleteBooking(ctx, id, s.now())
	if err != nil {
		return nil, storeError("complete booking", err)
	}

	s.logEvent(ctx, b.ID, EventBookingCompleted, map[string]any{
		"completed_at": b.CompletedAt,
	})
	return b, nil
}

// CancelBooking sets the outcome to cancelled. It is not an undo: the
// booking stays in the history and counts towards the lifecycle.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.UpdateOutcome(ctx, id, OutcomeCancelled)
}

// PatientStatus derives the lifecycle label from the stored history.
func (s *Service) PatientStatus(ctx context.Context, patientID uuid.UUID) (LifecycleStatus, error) {
	bookings, err := s.store.ListBookings(ctx, patientID)
	if err != nil {
		return "", storeError("list bookings", err)
	}
	return DeriveStatus(bookings, s.now()), nil
}

func (s *Service) ListPatientBookings(ctx context.Context, patientID uuid.UUID) ([]Booking, error) {
	bookings, err := s.store.ListBookings(ctx, patientID)
	if err != nil {
		return nil, storeError("list bookings", err)
	}
	return bookings, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, ErrBookingNotFound) || errors.Is(err, ErrPatientNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// logEvent writes an audit row. Failures are logged and swallowed.
func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	logger := logging.FromContext(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID
	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(err).
			Str("event_type", eventType).
			Str("booking_id", bookingID.String()).
			Msg("failed to insert event log")
	}
}
