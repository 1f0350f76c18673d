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
	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/db"
	"github.com/hackgods/agendavet-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	Users           int
	CreateRatio     float64
	TransitionRatio float64
	SuggestRatio    float64
	ReadRatio       float64
	PostgresDSN     string
}

type trackedAppointment struct {
	userID string
	id     string
	status appointment.Status
}

// DataPool holds what the workers have created so far.
type DataPool struct {
	Users    []string
	Services []string

	mu           sync.Mutex
	pets         map[string][]string
	appointments []*trackedAppointment
}

func (dp *DataPool) AddPet(userID, petID string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pets[userID] = append(dp.pets[userID], petID)
}

func (dp *DataPool) RandomPet(rng *rand.Rand, userID string) (string, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	pets := dp.pets[userID]
	if len(pets) == 0 {
		return "", false
	}
	return pets[rng.Intn(len(pets))], true
}

func (dp *DataPool) AddAppointment(a *trackedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

// RandomAppointment returns a copy; several workers may transition the same record.
func (dp *DataPool) RandomAppointment(rng *rand.Rand) (trackedAppointment, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return trackedAppointment{}, false
	}
	return *dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) SetStatus(id string, status appointment.Status) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for _, a := range dp.appointments {
		if a.id == id {
			a.status = status
			return
		}
	}
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeQueued
	outcomeConflict
	outcomeError
)

type OperationMetrics struct {
	Total     int64
	Applied   int64
	Queued    int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeApplied:
		atomic.AddInt64(&om.Applied, 1)
	case outcomeQueued:
		atomic.AddInt64(&om.Queued, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	CreatePet         OperationMetrics
	CreateAppointment OperationMetrics
	Transition        OperationMetrics
	Suggest           OperationMetrics
	Snapshot          OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	logger := logging.New(getEnv("APP_ENV", "dev"), "info").With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().Dur("duration", cfg.Duration).Int("workers", cfg.Workers).
		Float64("create", cfg.CreateRatio).Float64("transition", cfg.TransitionRatio).
		Float64("suggest", cfg.SuggestRatio).Float64("read", cfg.ReadRatio).Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "agendavet-simulate", MaxConns: 1, PingTimeout: 5 * time.Second})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("users", len(dataPool.Users)).Int("services", len(dataPool.Services)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		Users:           getInt("SIM_USERS", 20),
		CreateRatio:     getFloat("SIM_CREATE_RATIO", 0.3),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		SuggestRatio:    getFloat("SIM_SUGGEST_RATIO", 0.3),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.2),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
	}

	total := cfg.CreateRatio + cfg.TransitionRatio + cfg.SuggestRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.TransitionRatio /= total
		cfg.SuggestRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Users <= 0 {
		return fmt.Errorf("SIM_USERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool reads the service catalog; users are fresh ids so every run
// starts with empty local state for them.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{pets: make(map[string][]string)}

	rows, err := pool.Query(ctx, `SELECT id::text FROM services`)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Services = append(dataPool.Services, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dataPool.Services) == 0 {
		return nil, fmt.Errorf("no services loaded; run cmd/seed first")
	}

	for i := 0; i < cfg.Users; i++ {
		dataPool.Users = append(dataPool.Users, "sim-"+uuid.NewString())
	}
	return dataPool, nil
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
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.CreateRatio:
				s.doCreate(ctx, rng)
			case r < c.CreateRatio+c.TransitionRatio:
				s.doTransition(ctx, rng)
			case r < c.CreateRatio+c.TransitionRatio+c.SuggestRatio:
				s.doSuggest(ctx, rng)
			default:
				s.doSnapshot(ctx, rng)
			}
		}
	}
}

// doCreate adds a pet for a user without one, otherwise an appointment
// request for one of the user's pets.
func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	userID := s.pool.Users[rng.Intn(len(s.pool.Users))]

	petID, ok := s.pool.RandomPet(rng, userID)
	if !ok || rng.Intn(4) == 0 {
		var resp struct {
			Pet struct {
				ID string `json:"id"`
			} `json:"pet"`
		}
		body := map[string]any{"name": fmt.Sprintf("Pet %d", rng.Intn(1000)), "type": "dog"}
		o := s.call(ctx, &s.metrics.CreatePet, http.MethodPost, "/users/"+userID+"/pets", body, &resp)
		if o == outcomeApplied || o == outcomeQueued {
			s.pool.AddPet(userID, resp.Pet.ID)
		}
		return
	}

	var resp struct {
		Appointment struct {
			ID string `json:"id"`
		} `json:"appointment"`
	}
	body := map[string]any{
		"pet_id":         petID,
		"preferred_date": time.Now().AddDate(0, 0, 1+rng.Intn(14)).Format(time.DateOnly),
		"reason":         "simulated visit",
		"service_id":     s.pool.Services[rng.Intn(len(s.pool.Services))],
	}
	o := s.call(ctx, &s.metrics.CreateAppointment, http.MethodPost, "/users/"+userID+"/appointments", body, &resp)
	if o == outcomeApplied || o == outcomeQueued {
		s.pool.AddAppointment(&trackedAppointment{userID: userID, id: resp.Appointment.ID, status: appointment.StatusPending})
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	next := appointment.NextPossibleActions(appt.status)
	if len(next) == 0 {
		return
	}
	to := next[rng.Intn(len(next))]

	path := fmt.Sprintf("/users/%s/appointments/%s/status", appt.userID, appt.id)
	o := s.call(ctx, &s.metrics.Transition, http.MethodPost, path, map[string]string{"status": string(to)}, nil)
	if o == outcomeApplied || o == outcomeQueued {
		s.pool.SetStatus(appt.id, to)
	}
}

func (s *Simulator) doSuggest(ctx context.Context, rng *rand.Rand) {
	turns := []string{"", "morning", "afternoon"}
	body := map[string]any{
		"service_id":  s.pool.Services[rng.Intn(len(s.pool.Services))],
		"date":        time.Now().AddDate(0, 0, 1+rng.Intn(14)).Format(time.DateOnly),
		"preferences": map[string]string{"turn": turns[rng.Intn(len(turns))]},
	}
	s.call(ctx, &s.metrics.Suggest, http.MethodPost, "/suggestions", body, nil)
}

func (s *Simulator) doSnapshot(ctx context.Context, rng *rand.Rand) {
	userID := s.pool.Users[rng.Intn(len(s.pool.Users))]
	s.call(ctx, &s.metrics.Snapshot, http.MethodGet, "/users/"+userID+"/snapshot", nil, nil)
}

// call performs one request, records it and decodes a successful body into
// out when out is non-nil.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body, out any) outcome {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		om.Record(0, outcomeError)
		return outcomeError
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			om.Record(latency, outcomeError)
		}
		return outcomeError
	}
	defer resp.Body.Close()

	o := outcomeError
	switch {
	case resp.StatusCode == http.StatusAccepted:
		o = outcomeQueued
	case resp.StatusCode < 300:
		o = outcomeApplied
	case resp.StatusCode == http.StatusConflict:
		o = outcomeConflict
	}
	if out != nil && (o == outcomeApplied || o == outcomeQueued) {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			o = outcomeError
		}
	}

	om.Record(latency, o)
	return o
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d  Users: %d\n", s.config.Workers, s.config.Users)
	fmt.Println()

	printOperationReport("Create pet", &s.metrics.CreatePet)
	printOperationReport("Create appointment", &s.metrics.CreateAppointment)
	printOperationReport("Status transition", &s.metrics.Transition)
	printOperationReport("Suggest", &s.metrics.Suggest)
	printOperationReport("Snapshot", &s.metrics.Snapshot)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	applied := atomic.LoadInt64(&om.Applied)
	queued := atomic.LoadInt64(&om.Queued)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Applied: %d (%.1f%%)\n", applied, pct(applied))
	if queued > 0 {
		fmt.Printf("  Queued offline: %d (%.1f%%)\n", queued, pct(queued))
	}
	if conflict > 0 {
		fmt.Printf("  Rejected transitions: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
