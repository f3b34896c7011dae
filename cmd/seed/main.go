package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

const (
	patientCount = 2000
	batchSize    = 500
)

var treatments = []struct {
	name    string
	minutes int
}{
	{"Initial consultation", 30},
	{"Follow-up", 15},
	{"Dental cleaning", 45},
	{"Physiotherapy session", 60},
	{"Skin check", 20},
	{"Vaccination", 15},
	{"Minor procedure", 90},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("seed", "dev")
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("seed", cfg.Env)
	log.Info().Msg("seed starting")

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedTreatments(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("seed treatments")
	}
	if err := seedPatients(ctx, pool, patientCount, cfg.Clinic.Location()); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedTreatments(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range treatments {
		_, err := tx.Exec(ctx, `
			INSERT INTO treatments (id, name, duration_minutes)
			VALUES ($1, $2, $3)
		`, uuid.New(), t.name, t.minutes)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("count", len(treatments)).Msg("treatments seeded")
	return nil
}

// seedPatients inserts patients with a past booking history so every
// lifecycle status shows up. All seeded visits are settled, so none of them
// blocks a future slot.
func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, loc *time.Location) error {
	var bookings int

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone)
				VALUES ($1, $2, $3, $4)
			`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			n, err := seedHistory(ctx, tx, id, loc)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			bookings += n
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	log.Info().Int("bookings", bookings).Msg("booking history seeded")
	return nil
}

func seedHistory(ctx context.Context, tx pgx.Tx, patientID uuid.UUID, loc *time.Location) (int, error) {
	n := gofakeit.Number(0, 4)

	for i := 0; i < n; i++ {
		kind := randomKind()
		at := pastSlot(loc)
		duration := []int{15, 30, 45, 60}[gofakeit.Number(0, 3)]

		var (
			outcome     *scheduling.Outcome
			completed   bool
			completedAt *time.Time
		)
		if kind.IsVisit() {
			o := []scheduling.Outcome{
				scheduling.OutcomeCompleted,
				scheduling.OutcomeCompleted,
				scheduling.OutcomeNoShow,
				scheduling.OutcomeCancelled,
			}[gofakeit.Number(0, 3)]
			outcome = &o
			if o == scheduling.OutcomeCompleted {
				done := at.Add(time.Duration(duration) * time.Minute)
				completed = true
				completedAt = &done
			}
		}

		var outcomeText *string
		if outcome != nil {
			s := string(*outcome)
			outcomeText = &s
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, patient_id, scheduled_at, duration_minutes, kind, notes, completed, completed_at, outcome)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), patientID, at, duration, string(kind), gofakeit.Sentence(6), completed, completedAt, outcomeText)
		if err != nil {
			return i, err
		}
	}
	return n, nil
}

func randomKind() scheduling.BookingKind {
	kinds := []scheduling.BookingKind{
		scheduling.KindAppointment,
		scheduling.KindAppointment,
		scheduling.KindMeeting,
		scheduling.KindCall,
		scheduling.KindEmail,
		scheduling.KindMessage,
	}
	return kinds[gofakeit.Number(0, len(kinds)-1)]
}

// pastSlot picks a half-hour start during office hours in the last 120 days.
func pastSlot(loc *time.Location) time.Time {
	y, m, d := time.Now().In(loc).AddDate(0, 0, -gofakeit.Number(1, 120)).Date()
	return time.Date(y, m, d, gofakeit.Number(9, 16), 30*gofakeit.Number(0, 1), 0, 0, loc)
}
