package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameScope(t *testing.T) {
	locker := NewLocalLocker(2 * time.Second)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithScopeLock(context.Background(), "doctor-a:2026-01-01", func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.scopes)
}

func TestLocalLocker_IndependentScopesRunInParallel(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithScopeLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := locker.WithScopeLock(context.Background(), "b", func(context.Context) error { return nil })
	require.NoError(t, err)
	close(release)
}

func TestLocalLocker_GivesUpAfterWait(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = locker.WithScopeLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := locker.WithScopeLock(context.Background(), "a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
	<-done
}

func TestLocalLocker_ZeroWaitAcquiresFreeScope(t *testing.T) {
	locker := NewLocalLocker(0)

	for i := 0; i < 1000; i++ {
		ran := false
		err := locker.WithScopeLock(context.Background(), "a", func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err, "attempt %d", i)
		require.True(t, ran)
	}
}

func TestLocalLocker_ZeroWaitRefusesHeldScope(t *testing.T) {
	locker := NewLocalLocker(0)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = locker.WithScopeLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := locker.WithScopeLock(context.Background(), "a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
	<-done
}
