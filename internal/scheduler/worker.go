package scheduler

import (
	"context"
	"fmt"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SnapshotRunner builds and stores deterministic notifications.
type SnapshotRunner interface {
	BuildNotifications(ctx context.Context, req transport.NotificationsRequest) ([]domain.Notification, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner SnapshotRunner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner SnapshotRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(runner, log)
	w.server = server
	return w, nil
}

func newWorker(runner SnapshotRunner, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{mux: mux, runner: runner, log: log}
	mux.HandleFunc(TaskCoachingSnapshot, w.handleCoachingSnapshot)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleCoachingSnapshot(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCoachingSnapshotPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	items, err := w.runner.BuildNotifications(ctx, transport.NotificationsRequest{
		Goal:        payload.Goal,
		HorizonDays: payload.HorizonDays,
		Region:      payload.Region,
		WindowDays:  payload.WindowDays,
		TopN:        payload.TopN,
		MinRisk:     payload.MinRisk,
	})
	if err != nil {
		return err
	}

	w.log.Info("coaching snapshot stored", "notifications", len(items), "region", payload.Region)
	return nil
}
