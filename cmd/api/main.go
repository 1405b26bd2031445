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

	"dealer_coach_backend/internal/adapters/storage"
	"dealer_coach_backend/internal/coaching"
	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/dispatch"
	"dealer_coach_backend/internal/coaching/notify"
	"dealer_coach_backend/internal/coaching/repository"
	"dealer_coach_backend/internal/email"
	"dealer_coach_backend/internal/events"
	apphttp "dealer_coach_backend/internal/http"
	"dealer_coach_backend/internal/http/router"
	"dealer_coach_backend/platform/ai/moonshot"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/db"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/adk/model"
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
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	repo := repository.New(pool)

	sessions, closeSessions := initSessionStore(ctx, cfg, log)
	if closeSessions != nil {
		defer closeSessions()
	}

	var llm model.LLM
	if cfg.IsLLMEnabled() {
		llm = moonshot.NewModel(moonshot.Config{
			APIKey:  cfg.GetLLMAPIKey(),
			BaseURL: cfg.GetLLMBaseURL(),
			Model:   cfg.GetLLMModel(),
			Timeout: cfg.GetLLMTimeout(),
		})
		log.Info("text generation enabled", "model", cfg.GetLLMModel())
	} else {
		log.Warn("LLM_API_KEY not configured; text generation disabled")
	}

	var dispatcher dispatch.Dispatcher
	if cfg.GetReviewsBaseURL() != "" {
		dispatcher = dispatch.NewReviewClient(cfg.GetReviewsBaseURL(), cfg.GetDispatchTimeout())
	}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		bucket := cfg.GetMinioBucketNotifications()
		if err := withRetry(ctx, log, "ensure notifications bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		notify.NewBoxExporter(storageSvc, bucket, log).Subscribe(eventBus)
		log.Info("notification box export enabled", "bucket", bucket)
	}

	email.NewReportMailer(email.NewSender(cfg, log), cfg.GetManagerEmail(), log).Subscribe(eventBus)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	coachingModule, err := coaching.NewModule(coaching.ModuleDeps{
		Repository: repo,
		Sessions:   sessions,
		Bus:        eventBus,
		Validator:  val,
		Config:     cfg,
		Model:      llm,
		Dispatcher: dispatcher,
		Log:        log,
	})
	if err != nil {
		log.Error("failed to initialize coaching module", "error", err)
		panic("failed to initialize coaching module: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules:  []apphttp.Module{coachingModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initSessionStore keeps review sessions in Redis when it is configured so
// they survive restarts and are shared between replicas.
func initSessionStore(ctx context.Context, cfg config.SessionStoreConfig, log *logger.Logger) (approval.Store, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; review sessions kept in memory")
		return approval.NewMemoryStore(), nil
	}

	client, err := approval.NewRedisClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize session store", "error", err)
		panic("failed to initialize session store: " + err.Error())
	}
	if err := withRetry(ctx, log, "session store connection", 5, 2*time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to reach session store", "error", err)
		panic("failed to reach session store: " + err.Error())
	}

	return approval.NewRedisStore(client, cfg.GetSessionTTL()), func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
