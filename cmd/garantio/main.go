package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"garantio/internal/alert"
	"garantio/internal/auth"
	"garantio/internal/config"
	"garantio/internal/db"
	httpx "garantio/internal/http"
	"garantio/internal/jobs"
	"garantio/internal/log"
	"garantio/internal/metrics"
	"garantio/internal/notify"
	"garantio/internal/warranty"

	"github.com/redis/go-redis/v9"
)

func main() {
	logger := log.NewLogger()
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("db connect failed", "err", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		logger.Fatalw("db migrate failed", "err", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	}

	m := metrics.NewReminderMetrics()
	alerts := alert.NewGormStore(gdb, logger)
	queue := jobs.NewGormQueue(gdb, logger, m, cfg.QueueEnabled)
	if !cfg.QueueEnabled {
		logger.Warnw("job queue disabled, reminders are not scheduled")
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	svc := &warranty.Service{
		DB:      gdb,
		Alerts:  alerts,
		Queue:   queue,
		Locks:   warranty.NewSchedLock(rdb, logger),
		Logger:  logger,
		Metrics: m,
	}

	r := httpx.NewRouter(httpx.Deps{
		Config:  cfg,
		DB:      gdb,
		JWT:     jwtSvc,
		Svc:     svc,
		Alerts:  alerts,
		Queue:   queue,
		Metrics: m,
	})

	notifier := notify.NewBreakerNotifier(&notify.LogNotifier{Logger: logger})
	pool := jobs.NewWorkerPool(cfg.WorkerCount, func(id string) *jobs.Worker {
		return &jobs.Worker{
			ID:         id,
			Queue:      queue,
			Alerts:     alerts,
			Warranties: &jobs.GormWarrantyReader{DB: gdb},
			Notifier:   notifier,
			Logger:     logger,
			Metrics:    m,
			Interval:   cfg.WorkerPollInterval,
		}
	})
	if cfg.QueueEnabled {
		pool.Start(context.Background())
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infow("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("http server failed", "err", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	pool.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
