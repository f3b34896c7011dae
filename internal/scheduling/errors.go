package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrTreatmentNotFound = errors.New("treatment not found")
	ErrInvalidKind       = errors.New("invalid booking kind")
	ErrInvalidOutcome    = errors.New("invalid booking outcome")
	ErrBookingSettled    = errors.New("booking is already completed")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrSlotTaken         = errors.New("slot already taken")
	ErrLockBusy          = errors.New("another booking for this day is in progress")
)

// ConflictError means the requested slot stopped being bookable between the
// slot query and the submit. Callers re-query and re-present slots.
type ConflictError struct {
	Start  time.Time
	Reason ConflictReason
	Err    error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("slot %s is not available", e.Start.Format(time.RFC3339))
	if e.Reason != "" && e.Reason != ConflictNone {
		msg += fmt.Sprintf(" (%s conflict)", e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.Err }

// PersistenceError means the booking store write failed and nothing was created.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// WarningCode identifies a soft failure attached to a successful booking.
type WarningCode string

const (
	WarningCalendarMirror WarningCode = "calendar_mirror_failed"
	WarningStatusRefresh  WarningCode = "status_refresh_failed"
)

// Warning is a non-fatal problem the caller should surface to the user.
type Warning interface {
	error
	Code() WarningCode
}

// CalendarMirrorWarning means the booking exists locally but its external
// calendar event could not be created or recorded.
type CalendarMirrorWarning struct {
	Err error
}

func (w *CalendarMirrorWarning) Error() string {
	return "calendar mirror failed: " + w.Err.Error()
}

func (w *CalendarMirrorWarning) Unwrap() error { return w.Err }

func (w *CalendarMirrorWarning) Code() WarningCode { return WarningCalendarMirror }

// StatusRefreshWarning means the lifecycle status could not be re-read after
// booking. The booking itself is intact.
type StatusRefreshWarning struct {
	Err error
}

func (w *StatusRefreshWarning) Error() string {
	return "status refresh failed: " + w.Err.Error()
}

func (w *StatusRefreshWarning) Unwrap() error { return w.Err }

func (w *StatusRefreshWarning) Code() WarningCode { return WarningStatusRefresh }
