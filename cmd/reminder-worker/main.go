package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/db"
	"github.com/hackgods/consultation-queue/internal/logging"
	"github.com/hackgods/consultation-queue/internal/notify"
	redisclient "github.com/hackgods/consultation-queue/internal/redis"
	"github.com/hackgods/consultation-queue/internal/reminder"
)

func main() {
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

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal("reminder-worker needs postgres storage; in-memory mode runs reminders inside api-server")
	}

	log.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("cron", cfg.ReminderCron),
		zap.Duration("lead_time", cfg.ReminderLeadTime),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.AMQPURL != "" {
		conn, err := amqp091.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal("amqp dial error", zap.Error(err))
		}
		defer conn.Close()
		amqpSender, err := notify.NewAMQPSender(conn, cfg.NotifyQueue)
		if err != nil {
			log.Fatal("amqp channel error", zap.Error(err))
		}
		defer amqpSender.Close()
		sender = amqpSender
	}

	runner := reminder.NewRunner(appointment.NewPgRepository(pool), sender, cfg.ReminderLeadTime, time.Local, log)
	// The leader lock must outlive a full pass, so it gets a longer TTL than scope locks.
	locker := redisclient.NewRedisScopeLocker(rdb, max(cfg.LockTTL, time.Minute), 0, log)
	worker := reminder.NewWorker(runner, locker, cfg.ReminderCron, log)

	worker.RunOnce(rootCtx)
	worker.Start(rootCtx)

	<-rootCtx.Done()
	log.Info("shutting down reminder-worker")
	worker.Stop()
}
