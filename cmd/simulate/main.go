package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

// SimConfig drives a booking load test against a running api-server. Many
// workers race for the same few days so slot conflicts actually happen.
type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Days         int // how many days ahead bookings are spread over
	BookingRatio float64
	OutcomeRatio float64
	ReadRatio    float64
	PatientLimit int
}

type DataPool struct {
	Patients []uuid.UUID

	mu       sync.RWMutex
	bookings []uuid.UUID
}

func (dp *DataPool) AddBooking(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, id)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return uuid.Nil, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Busy     int64
	Warning  int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int, warned bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
		if warned {
			atomic.AddInt64(&om.Warning, 1)
		}
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, maxLatency time.Duration) {
	om.mu.Lock()
	sorted := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(pct int) time.Duration {
		idx := len(sorted) * pct / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return at(50), at(95), sorted[len(sorted)-1]
}

type Metrics struct {
	ListSlots OperationMetrics
	Book      OperationMetrics
	Outcome   OperationMetrics
	Status    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	loc     *time.Location
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Init("simulate", "dev")
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logging.Init("simulate", baseCfg.Env)

	cfg := loadConfig(baseCfg)
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.Days <= 0 {
		log.Fatal().Msg("SIM_WORKERS, SIM_DURATION and SIM_DAYS must be positive")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("days", cfg.Days).
		Float64("booking", cfg.BookingRatio).
		Float64("outcome", cfg.OutcomeRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 2)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg.PatientLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		loc:    baseCfg.Clinic.Location(),
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Days:         getInt("SIM_DAYS", 3),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		OutcomeRatio: getFloat("SIM_OUTCOME_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
	}

	total := cfg.BookingRatio + cfg.OutcomeRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.OutcomeRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, limit int) (*DataPool, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	dp := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.OutcomeRatio:
			s.doOutcome(ctx, rng)
		case rng.Intn(2) == 0:
			s.doListSlots(ctx, rng)
		default:
			s.doStatus(ctx, rng)
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return time.Now().In(s.loc).AddDate(0, 0, 1+rng.Intn(s.config.Days)).Format("2006-01-02")
}

func (s *Simulator) listSlots(ctx context.Context, date string) (*api.SlotsResponse, int, error) {
	var out api.SlotsResponse
	status, err := s.call(ctx, http.MethodGet, "/slots?date="+date, nil, &out)
	if err != nil || status != http.StatusOK {
		return nil, status, err
	}
	return &out, status, nil
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	_, status, _ := s.listSlots(ctx, s.randomDate(rng))
	s.metrics.ListSlots.Record(time.Since(start), status, false)
}

// doBooking reads the grid and books a random free slot, the way a
// front-desk client would. Other workers race for the same slots.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slots, _, err := s.listSlots(ctx, s.randomDate(rng))
	if err != nil || slots == nil {
		return
	}

	var free []api.SlotResponse
	for _, sl := range slots.Slots {
		if sl.Available {
			free = append(free, sl)
		}
	}
	if len(free) == 0 {
		return
	}
	slot := free[rng.Intn(len(free))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	kind := "appointment"
	if rng.Intn(4) == 0 {
		kind = "meeting"
	}

	req := api.CreateBookingRequest{Date: slot.Date, Time: slot.Time, Kind: kind}

	start := time.Now()
	var out api.CreateBookingResponse
	status, _ := s.call(ctx, http.MethodPost, "/patients/"+patient.String()+"/bookings", req, &out)
	s.metrics.Book.Record(time.Since(start), status, len(out.Warnings) > 0)

	if status == http.StatusCreated && out.Booking.ID != uuid.Nil {
		s.pool.AddBooking(out.Booking.ID)
	}
}

func (s *Simulator) doOutcome(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	outcomes := []string{"confirmed", "noShow", "cancelled", "completed"}
	req := api.UpdateOutcomeRequest{Outcome: outcomes[rng.Intn(len(outcomes))]}

	start := time.Now()
	status, _ := s.call(ctx, http.MethodPost, "/bookings/"+id.String()+"/outcome", req, nil)
	s.metrics.Outcome.Record(time.Since(start), status, false)
}

func (s *Simulator) doStatus(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/patients/"+patient.String()+"/status", nil, nil)
	s.metrics.Status.Record(time.Since(start), status, false)
}

// call returns status 0 when the request itself failed.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("List slots", &s.metrics.ListSlots)
	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Update outcome", &s.metrics.Outcome)
	printOperationReport("Patient status", &s.metrics.Status)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	warning := atomic.LoadInt64(&om.Warning)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, maxLatency := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if warning > 0 {
		fmt.Printf("  With warnings: %d (%.1f%%)\n", warning, pct(warning))
	}
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if busy > 0 {
		fmt.Printf("  Day lock busy: %d (%.1f%%)\n", busy, pct(busy))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), maxLatency.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
