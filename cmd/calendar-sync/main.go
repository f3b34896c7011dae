package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// syncer pulls external busy times into the shared busy cache so slot
// queries rarely have to call the calendar API themselves.
type syncer struct {
	google  *calendar.Google
	cache   *redisclient.BusyCache
	clock   *redisclient.SyncClock
	loc     *time.Location
	horizon int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("calendar-sync", "dev")
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("calendar-sync", cfg.Env)

	if !cfg.CalendarEnabled() {
		log.Fatal().Msg("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for calendar-sync")
	}

	log.Info().
		Dur("check_interval", cfg.Sync.CheckInterval).
		Dur("pull_interval", cfg.Sync.PullInterval).
		Int("horizon_days", cfg.Sync.HorizonDays).
		Msg("calendar-sync starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()

	loc := cfg.Clinic.Location()
	google := calendar.NewGoogle(calendar.Config{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		RedirectURL:  cfg.Calendar.RedirectURL,
		CalendarID:   cfg.Calendar.CalendarID,
	}, redisclient.NewTokenStore(rdb))

	s := &syncer{
		google:  google,
		cache:   redisclient.NewBusyCache(rdb, google, loc, cfg.Calendar.BusyCacheTTL),
		clock:   redisclient.NewSyncClock(rdb, cfg.Sync.PullInterval),
		loc:     loc,
		horizon: cfg.Sync.HorizonDays,
	}

	// Run once at startup
	s.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.Sync.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping calendar-sync")
			return
		case <-ticker.C:
			s.runOnce(rootCtx)
		}
	}
}

func (s *syncer) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if !s.google.IsConnected(runCtx) {
		log.Debug().Msg("calendar not connected, skipping pull")
		return
	}

	now := time.Now()
	due, err := s.clock.Due(runCtx, now)
	if err != nil {
		log.Error().Err(err).Msg("sync clock unavailable")
		return
	}
	if !due {
		return
	}

	y, m, d := now.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, s.horizon)

	start := time.Now()
	days, err := s.cache.Refresh(runCtx, from, to)
	if err != nil {
		log.Error().Err(err).Msg("busy time pull failed")
		return
	}

	if err := s.clock.MarkPulled(runCtx, now); err != nil {
		log.Warn().Err(err).Msg("pull succeeded but could not be recorded")
	}

	log.Info().
		Int("days", days).
		Time("from", from).
		Time("to", to).
		Dur("took", time.Since(start)).
		Msg("busy times pulled")
}
