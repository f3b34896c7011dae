package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const bookingColumns = `id, patient_id, scheduled_at, duration_minutes, kind, notes, completed,
	completed_at, outcome, external_event_id, external_join_link, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var outcome *string

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.ScheduledAt,
		&b.DurationMinutes,
		&b.Kind,
		&b.Notes,
		&b.Completed,
		&b.CompletedAt,
		&outcome,
		&b.ExternalEventID,
		&b.ExternalJoinLink,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if outcome != nil {
		o := Outcome(*outcome)
		b.Outcome = &o
	}
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrSlotTaken, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return ErrPatientNotFound
		}
	}
	return err
}

// Interface methods

func (s *PgStore) CreateBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	id := uuid.New()

	var outcome *string
	if nb.Outcome != nil {
		o := string(*nb.Outcome)
		outcome = &o
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, patient_id, scheduled_at, duration_minutes, kind, notes, completed, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, now(), now())
		RETURNING `+bookingColumns,
		id, nb.PatientID, nb.ScheduledAt, nb.DurationMinutes, nb.Kind, nb.Notes, outcome)

	b, err := scanBooking(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

func (s *PgStore) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (s *PgStore) ListBookings(ctx context.Context, patientID uuid.UUID) ([]Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		ORDER BY scheduled_at
	`, patientID)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ListBookingsBetween returns every booking whose [start, end) overlaps [from, to).
func (s *PgStore) ListBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE scheduled_at < $2
		  AND scheduled_at + make_interval(mins => duration_minutes) > $1
		ORDER BY scheduled_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (s *PgStore) UpdateBookingOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) (*Booking, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE bookings
		SET outcome = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns,
		id, string(outcome))

	b, err := scanBooking(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

// CompleteBooking marks the booking done. Visits also get the completed outcome.
func (s *PgStore) CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE bookings
		SET completed = true,
		    completed_at = COALESCE(completed_at, $2),
		    outcome = CASE WHEN kind IN ('meeting', 'appointment') THEN 'completed' ELSE outcome END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns,
		id, at)
	return scanBooking(row)
}

func (s *PgStore) AttachExternalEvent(ctx context.Context, id uuid.UUID, ev ExternalEvent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET external_event_id = $2,
		    external_join_link = NULLIF($3, ''),
		    updated_at = now()
		WHERE id = $1
	`, id, ev.ID, ev.JoinLink)
	if err != nil {
		return fmt.Errorf("attach external event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (s *PgStore) GetPatientContact(ctx context.Context, patientID uuid.UUID) (*PatientContact, error) {
	var c PatientContact

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&c.PatientID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) TreatmentDuration(ctx context.Context, treatmentID uuid.UUID) (int, error) {
	var minutes int

	err := s.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM treatments
		WHERE id = $1
	`, treatmentID).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTreatmentNotFound
		}
		return 0, err
	}
	return minutes, nil
}

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
