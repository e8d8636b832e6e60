// Package health runs dependency pings for the readiness endpoint and for
// the connect step of each backing store.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"

	DependencyOK       = "ok"
	DependencyDown     = "down"
	DependencyDisabled = "disabled"
)

type PingFunc func(ctx context.Context) error

// Check is one named dependency. A nil Ping reports the dependency as
// disabled. A Critical dependency that is down makes the service unready;
// any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Ping     PingFunc
}

// Within runs ping under its own deadline derived from ctx.
func Within(ctx context.Context, timeout time.Duration, ping PingFunc) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return ping(pingCtx)
}

type Report struct {
	Status       string
	Dependencies map[string]string
}

// Ready reports whether the service should receive traffic.
func (r Report) Ready() bool {
	return r.Status != StatusError
}

// Run pings every check concurrently, each bounded by timeout.
func Run(ctx context.Context, timeout time.Duration, checks []Check) Report {
	states := make([]string, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		if c.Ping == nil {
			states[i] = DependencyDisabled
			continue
		}
		wg.Add(1)
		go func(i int, ping PingFunc) {
			defer wg.Done()
			if err := Within(ctx, timeout, ping); err != nil {
				states[i] = DependencyDown
				return
			}
			states[i] = DependencyOK
		}(i, c.Ping)
	}
	wg.Wait()

	report := Report{Status: StatusOK, Dependencies: make(map[string]string, len(checks))}
	for i, c := range checks {
		report.Dependencies[c.Name] = states[i]
		if states[i] != DependencyDown {
			continue
		}
		if c.Critical {
			report.Status = StatusError
		} else if report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}
	return report
}

// Postgres is critical: without it nothing can be read or booked.
func Postgres(pool *pgxpool.Pool) Check {
	c := Check{Name: "postgres", Critical: true}
	if pool != nil {
		c.Ping = pool.Ping
	}
	return c
}

// Redis only degrades: bookings fail with schedule_busy while reads keep working.
func Redis(rdb *redis.Client) Check {
	c := Check{Name: "redis"}
	if rdb != nil {
		c.Ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return c
}
