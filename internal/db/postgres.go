package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/health"
)

//go:embed schema.sql
var schemaSQL string

// ConnectPostgres opens the pool that backs appointments, queue entries and
// the doctor directory. It fails unless the first ping succeeds within
// cfg.ConnectTimeout.
func ConnectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := health.Within(ctx, cfg.ConnectTimeout, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func poolConfig(cfg config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	// Booking transactions are short; a few idle connections cover the
	// lock-then-tx path without holding the server's slots.
	poolCfg.MaxConns = int32(cfg.PostgresMaxConns)
	poolCfg.MinConns = min(2, poolCfg.MaxConns)
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 10 * time.Minute
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	return poolCfg, nil
}

// EnsureSchema applies the idempotent schema. Every statement uses
// IF NOT EXISTS so it is safe on every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
