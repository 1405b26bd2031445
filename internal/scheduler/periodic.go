package scheduler

import (
	"fmt"

	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the coaching snapshot on a cron schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, payload SnapshotPayload, log *logger.Logger) (*Periodic, error) {
	spec := cfg.GetSnapshotCron()
	if spec == "" {
		return nil, fmt.Errorf("snapshot cron not configured")
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	task, err := NewCoachingSnapshotTask(payload)
	if err != nil {
		return nil, err
	}

	s := asynq.NewScheduler(opt, nil)
	entryID, err := s.Register(spec, task, asynq.Queue(queueName(cfg)))
	if err != nil {
		return nil, fmt.Errorf("register snapshot: %w", err)
	}
	log.Info("coaching snapshot scheduled", "cron", spec, "entry", entryID)

	return &Periodic{scheduler: s, log: log}, nil
}

// Start runs the scheduler in the background until Shutdown.
func (p *Periodic) Start() error {
	return p.scheduler.Start()
}

func (p *Periodic) Shutdown() {
	p.scheduler.Shutdown()
}
