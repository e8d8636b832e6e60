package redisclient

import (
	"context"
	"sync"
	"time"
)

type localScope struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is the single-process Locker used with in-memory storage.
type LocalLocker struct {
	mu     sync.Mutex
	scopes map[string]*localScope
	wait   time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		scopes: make(map[string]*localScope),
		wait:   wait,
	}
}

func (l *LocalLocker) WithScopeLock(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	s := l.ref(scope)
	defer l.unref(scope)

	if err := l.acquire(ctx, s); err != nil {
		return err
	}
	defer func() { <-s.sem }()

	return fn(ctx)
}

// acquire takes a free lock without consulting the timer, so a zero wait
// still succeeds when nobody holds the scope.
func (l *LocalLocker) acquire(ctx context.Context, s *localScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalLocker) ref(scope string) *localScope {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.scopes[scope]
	if !ok {
		s = &localScope{sem: make(chan struct{}, 1)}
		l.scopes[scope] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.scopes[scope]
	s.refs--
	if s.refs == 0 {
		delete(l.scopes, scope)
	}
}
