package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/db"
	"github.com/hackgods/consultation-queue/internal/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var slotLengths = []int{15, 20, 30}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg)
	if err == nil {
		err = db.EnsureSchema(ctx, pool)
	}
	cancel()
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	ctx = context.Background()
	if err := seedDoctors(ctx, pool, log, *doctors); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, log, *patients); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

// seedDoctors creates doctors with weekday hours, a lunch break and the
// occasional leave period.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, count int) error {
	log.Info("seeding doctors", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := availability.DateOf(time.Now())
	batch := &pgx.Batch{}
	for range count {
		id := uuid.New()
		batch.Queue(`
			INSERT INTO doctors (id, name, specialty, email, phone, slot_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, "Dr. "+gofakeit.Name(), specialties[gofakeit.Number(0, len(specialties)-1)],
			gofakeit.Email(), gofakeit.Phone(), slotLengths[gofakeit.Number(0, len(slotLengths)-1)])

		start := availability.NewClock(gofakeit.Number(7, 9), 0)
		end := start.Add(8 * 60)
		lunch := availability.NewClock(13, 0)
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			working := wd >= time.Monday && wd <= time.Friday || wd == time.Saturday && gofakeit.Bool()
			batch.Queue(`
				INSERT INTO doctor_working_hours (doctor_id, weekday, is_available, start_min, end_min, break_start_min, break_end_min)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, id, int(wd), working, int(start), int(end), int(lunch), int(lunch.Add(60)))
		}

		if gofakeit.Number(1, 5) == 1 {
			from := today.AddDate(0, 0, gofakeit.Number(3, 30))
			status := availability.LeaveApproved
			if gofakeit.Bool() {
				status = "pending"
			}
			batch.Queue(`
				INSERT INTO doctor_leaves (id, doctor_id, start_date, end_date, status)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.New(), id, from, from.AddDate(0, 0, gofakeit.Number(0, 4)), status)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		rows := make([][]any, 0, end-offset)
		for range end - offset {
			rows = append(rows, []any{uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone()})
		}

		if _, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email", "phone"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
