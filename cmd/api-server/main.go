package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/api"
	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/db"
	"github.com/hackgods/consultation-queue/internal/directory"
	"github.com/hackgods/consultation-queue/internal/health"
	"github.com/hackgods/consultation-queue/internal/logging"
	"github.com/hackgods/consultation-queue/internal/notify"
	redisclient "github.com/hackgods/consultation-queue/internal/redis"
	"github.com/hackgods/consultation-queue/internal/reminder"
)

var version = "dev"

type storage struct {
	repo      appointment.Repository
	reminders reminder.Source
	dir       directory.Directory
	leaves    directory.LeaveReader
	locker    redisclient.Locker
	pool      *pgxpool.Pool
	rdb       *redis.Client
	inProcess bool
}

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

	if err := run(cfg, log); err != nil {
		log.Fatal("api-server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStorage(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sender, closeSender, err := openSender(cfg, log)
	if err != nil {
		return err
	}
	defer closeSender()

	svc := appointment.NewService(appointment.Deps{
		Repo:      st.repo,
		Directory: st.dir,
		Leaves:    st.leaves,
		Locker:    st.locker,
		Notifier:  sender,
		Logger:    log,
	}, cfg)

	// Nothing outside this process can see in-memory data, so reminders run here.
	if st.inProcess {
		runner := reminder.NewRunner(st.reminders, sender, cfg.ReminderLeadTime, time.Local, log)
		worker := reminder.NewWorker(runner, st.locker, cfg.ReminderCron, log)
		worker.Start(rootCtx)
		defer worker.Stop()
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:      svc,
			Logger:       log,
			HealthChecks: []health.Check{health.Postgres(st.pool), health.Redis(st.rdb)},
			Env:          cfg.Env,
			Version:      version,
			CORSOrigins:  cfg.CORSOrigins,
			RateLimitRPM: cfg.RateLimitRPM,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		repo := appointment.NewMemoryRepository()
		dir := directory.NewMemoryDirectory()
		seedDemo(dir, log)
		return &storage{
			repo:      repo,
			reminders: repo,
			dir:       dir,
			leaves:    dir,
			locker:    redisclient.NewLocalLocker(cfg.LockWait),
			inProcess: true,
		}, func() {}, nil
	}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	defer cancelPg()
	pool, err := db.ConnectPostgres(pgCtx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}
	if err := db.EnsureSchema(pgCtx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("redis connection: %w", err)
	}
	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	repo := appointment.NewPgRepository(pool)
	dir := directory.NewPgDirectory(pool)
	cleanup := func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
		pool.Close()
	}
	return &storage{
		repo:      repo,
		reminders: repo,
		dir:       dir,
		leaves:    dir,
		locker:    redisclient.NewRedisScopeLocker(rdb, cfg.LockTTL, cfg.LockWait, log),
		pool:      pool,
		rdb:       rdb,
	}, cleanup, nil
}

// openSender publishes to RabbitMQ when AMQP_URL is set and logs otherwise.
func openSender(cfg config.Config, log *zap.Logger) (notify.Sender, func(), error) {
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set; notifications go to the log")
		return notify.NewLogSender(log), func() {}, nil
	}

	conn, err := amqp091.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	sender, err := notify.NewAMQPSender(conn, cfg.NotifyQueue)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Info("publishing notifications", zap.String("queue", cfg.NotifyQueue))
	return sender, func() {
		_ = sender.Close()
		_ = conn.Close()
	}, nil
}
