package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/db"
	"github.com/hackgods/consultation-queue/internal/logging"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	EmergencyRatio float64
	QueueRatio     float64
	ReadRatio      float64
	DoctorLimit    int
	PatientLimit   int
	DaysAhead      int
	PostgresDSN    string
}

// DataPool holds the identities the workers draw from and the ids they
// produce along the way.
type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu      sync.Mutex
	today   []uuid.UUID // appointments booked for today, not yet checked in
	serving []uuid.UUID // queue entries currently in consultation
}

func (dp *DataPool) addToday(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.today = append(dp.today, id)
}

func (dp *DataPool) takeToday(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return take(&dp.today, rng)
}

func (dp *DataPool) addServing(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.serving = append(dp.serving, id)
}

func (dp *DataPool) takeServing(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return take(&dp.serving, rng)
}

func take(list *[]uuid.UUID, rng *rand.Rand) (uuid.UUID, bool) {
	if len(*list) == 0 {
		return uuid.Nil, false
	}
	i := rng.IntN(len(*list))
	id := (*list)[i]
	(*list)[i] = (*list)[len(*list)-1]
	*list = (*list)[:len(*list)-1]
	return id, true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(baseCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("emergency", cfg.EmergencyRatio),
		zap.Float64("queue", cfg.QueueRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data pool loaded", zap.Int("doctors", len(dataPool.Doctors)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()

	fmt.Println("Consistency checks:")
	if err := verify(verifyCtx, pgPool); err != nil {
		log.Fatal("verification failed", zap.Error(err))
	}
	log.Info("all consistency checks passed")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		EmergencyRatio: getFloat("SIM_EMERGENCY_RATIO", 0.05),
		QueueRatio:     getFloat("SIM_QUEUE_RATIO", 0.3),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.25),
		DoctorLimit:    getInt("SIM_DOCTOR_LIMIT", 10),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 1000),
		DaysAhead:      getInt("SIM_DAYS_AHEAD", 3),
		PostgresDSN:    base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.EmergencyRatio + cfg.QueueRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.EmergencyRatio /= total
		cfg.QueueRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	switch {
	case cfg.PostgresDSN == "":
		return errors.New("POSTGRES_DSN is required (set in .env or environment)")
	case cfg.Workers <= 0:
		return errors.New("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return errors.New("SIM_DURATION must be > 0")
	case cfg.DaysAhead < 0:
		return errors.New("SIM_DAYS_AHEAD must be >= 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	dataPool.Doctors, err = loadIDs(ctx, pool, `SELECT id FROM doctors ORDER BY id LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors loaded; run cmd/seed first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded; run cmd/seed first")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := range s.config.Workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.EmergencyRatio:
			s.doEmergency(ctx, rng)
		case r < c.BookingRatio+c.EmergencyRatio+c.QueueRatio:
			switch rng.IntN(3) {
			case 0:
				s.doCheckIn(ctx, rng)
			case 1:
				s.doCallNext(ctx, rng)
			default:
				s.doCompleteConsultation(ctx, rng)
			}
		default:
			s.doReadQueue(ctx, rng)
		}
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Slots", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Emergency", &s.metrics.Emergency)
	printOperationReport("Check-in", &s.metrics.CheckIn)
	printOperationReport("Call next", &s.metrics.CallNext)
	printOperationReport("Complete consultation", &s.metrics.Consultation)
	printOperationReport("Queue read", &s.metrics.Queue)
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
