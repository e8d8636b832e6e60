package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(context.Context) error { return errors.New("connection refused") }

func hang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		status string
		deps   map[string]string
	}{
		{
			name:   "all up",
			checks: []Check{{Name: "postgres", Critical: true, Ping: up}, {Name: "redis", Ping: up}},
			status: StatusOK,
			deps:   map[string]string{"postgres": DependencyOK, "redis": DependencyOK},
		},
		{
			name:   "nil ping is disabled",
			checks: []Check{Postgres(nil), Redis(nil)},
			status: StatusOK,
			deps:   map[string]string{"postgres": DependencyDisabled, "redis": DependencyDisabled},
		},
		{
			name:   "non-critical down degrades",
			checks: []Check{{Name: "postgres", Critical: true, Ping: up}, {Name: "redis", Ping: down}},
			status: StatusDegraded,
			deps:   map[string]string{"postgres": DependencyOK, "redis": DependencyDown},
		},
		{
			name:   "critical down is an error",
			checks: []Check{{Name: "postgres", Critical: true, Ping: down}, {Name: "redis", Ping: down}},
			status: StatusError,
			deps:   map[string]string{"postgres": DependencyDown, "redis": DependencyDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Run(context.Background(), time.Second, tt.checks)
			assert.Equal(t, tt.status, report.Status)
			assert.Equal(t, tt.deps, report.Dependencies)
			assert.Equal(t, tt.status != StatusError, report.Ready())
		})
	}
}

func TestRun_SlowPingTimesOut(t *testing.T) {
	start := time.Now()
	report := Run(context.Background(), 50*time.Millisecond, []Check{
		{Name: "postgres", Critical: true, Ping: hang},
		{Name: "redis", Ping: hang},
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, DependencyDown, report.Dependencies["redis"])
}

func TestWithin(t *testing.T) {
	err := Within(context.Background(), 20*time.Millisecond, hang)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, Within(context.Background(), time.Second, up))
}

func TestPostgresIsCriticalRedisIsNot(t *testing.T) {
	assert.True(t, Postgres(nil).Critical)
	assert.False(t, Redis(nil).Critical)
}
