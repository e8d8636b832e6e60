package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/health"
)

// NewRedisClient connects to the scope-lock backend and pings it within
// cfg.ConnectTimeout.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(clientOptions(cfg))

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := health.Within(ctx, cfg.ConnectTimeout, ping); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// Lock commands are single round trips, so timeouts stay well under the
// lock TTL and a stalled server surfaces as schedule_busy quickly.
func clientOptions(cfg config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: 1,
	}
}
