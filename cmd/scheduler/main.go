package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dealer_coach_backend/internal/adapters/storage"
	"dealer_coach_backend/internal/coaching"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/notify"
	"dealer_coach_backend/internal/coaching/repository"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/internal/scheduler"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/db"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.RequireDatabase(); err != nil {
		panic(err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()
	repo := repository.New(pool)

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		notify.NewBoxExporter(storageSvc, cfg.GetMinioBucketNotifications(), log).Subscribe(eventBus)
	}

	// Snapshots only build notifications, so no generator, review client or
	// shared session store is needed on the worker side.
	coachingModule, err := coaching.NewModule(coaching.ModuleDeps{
		Repository: repo,
		Sessions:   approval.NewMemoryStore(),
		Bus:        eventBus,
		Validator:  validator.New(),
		Config:     cfg,
		Log:        log,
	})
	if err != nil {
		log.Error("failed to initialize coaching module", "error", err)
		panic("failed to initialize coaching module: " + err.Error())
	}

	cleanupInterval := getDurationEnv("COACHING_RETENTION_INTERVAL", time.Hour)
	notificationRetention := time.Duration(getPositiveIntEnv("COACHING_NOTIFICATION_RETENTION_DAYS", 90)) * 24 * time.Hour
	dispatchRetention := time.Duration(getPositiveIntEnv("COACHING_DISPATCH_LOG_RETENTION_DAYS", 365)) * 24 * time.Hour
	retention := scheduler.NewRetentionCleanup(repo, log, cleanupInterval, notificationRetention, dispatchRetention)
	go retention.Run(ctx)

	periodic, err := scheduler.NewPeriodic(cfg, scheduler.SnapshotPayload{
		WindowDays: cfg.GetWindowDays(),
		TopN:       cfg.GetTargetTopN(),
	}, log)
	if err != nil {
		log.Warn("periodic snapshot disabled", "error", err)
	} else {
		if err := periodic.Start(); err != nil {
			log.Error("failed to start periodic snapshot", "error", err)
			panic("failed to start periodic snapshot: " + err.Error())
		}
		defer periodic.Shutdown()
	}

	worker, err := scheduler.NewWorker(cfg, coachingModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
