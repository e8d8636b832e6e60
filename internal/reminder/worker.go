package reminder

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/consultation-queue/internal/redis"
)

// leaderScope keeps reminder passes from running on two instances at once.
const leaderScope = "reminder:leader"

const fallbackSpec = "@every 15m"

// Worker runs the reminder pass on a cron schedule.
type Worker struct {
	runner *Runner
	locker redisclient.Locker
	spec   string
	log    *zap.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewWorker(runner *Runner, locker redisclient.Locker, spec string, log *zap.Logger) *Worker {
	return &Worker{runner: runner, locker: locker, spec: spec, log: log}
}

func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	c := cron.New()
	if _, err := c.AddFunc(w.spec, func() { w.RunOnce(runCtx) }); err != nil {
		w.log.Warn("reminder.worker: invalid cron spec, falling back", zap.String("spec", w.spec), zap.String("fallback", fallbackSpec), zap.Error(err))
		c = cron.New()
		_, _ = c.AddFunc(fallbackSpec, func() { w.RunOnce(runCtx) })
	}
	c.Start()
	w.cron = c
}

// Stop waits for a running pass to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

func (w *Worker) RunOnce(ctx context.Context) {
	err := w.locker.WithScopeLock(ctx, leaderScope, func(lockCtx context.Context) error {
		_, err := w.runner.RunOnce(lockCtx)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		w.log.Info("reminder.worker: leader lock not acquired; another instance is running")
	case err != nil:
		w.log.Warn("reminder.worker: pass failed", zap.Error(err))
	}
}
