package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrLockNotAcquired = errors.New("scope lock not acquired")
)

const lockRetryInterval = 25 * time.Millisecond

// Locker serializes work on one scope (a doctor's day) across every service
// instance. fn runs only while the lock is held.
type Locker interface {
	WithScopeLock(ctx context.Context, scope string, fn func(ctx context.Context) error) error
}

type redisScopeLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

// NewRedisScopeLocker creates a locker that uses one Redis key per scope. A
// busy scope is polled for up to wait before giving up with ErrLockNotAcquired.
func NewRedisScopeLocker(client *redis.Client, ttl, wait time.Duration, log *zap.Logger) Locker {
	return &redisScopeLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    log,
	}
}

func (l *redisScopeLocker) WithScopeLock(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:%s", scope)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release even when the caller's context is already done
		if err := l.release(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn("scope lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisScopeLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire scope lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			l.log.Info("scope lock busy", zap.String("key", key), zap.Duration("waited", l.wait))
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisScopeLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release scope lock: %w", err)
	}
	return nil
}
