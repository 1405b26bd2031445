package scheduler

import (
	"context"
	"time"

	"dealer_coach_backend/platform/logger"
)

const (
	defaultRetentionInterval     = time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
	defaultDispatchLogRetention  = 365 * 24 * time.Hour
)

// Pruner deletes coaching rows older than the given cut-offs.
type Pruner interface {
	DeleteBefore(ctx context.Context, notificationsBefore, dispatchBefore time.Time) (int64, error)
}

// RetentionCleanup periodically removes old notifications and dispatch log
// rows.
type RetentionCleanup struct {
	repo                  Pruner
	log                   *logger.Logger
	interval              time.Duration
	notificationRetention time.Duration
	dispatchRetention     time.Duration
	now                   func() time.Time
}

func NewRetentionCleanup(repo Pruner, log *logger.Logger, interval, notificationRetention, dispatchRetention time.Duration) *RetentionCleanup {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if notificationRetention <= 0 {
		notificationRetention = defaultNotificationRetention
	}
	if dispatchRetention <= 0 {
		dispatchRetention = defaultDispatchLogRetention
	}

	return &RetentionCleanup{
		repo:                  repo,
		log:                   log,
		interval:              interval,
		notificationRetention: notificationRetention,
		dispatchRetention:     dispatchRetention,
		now:                   time.Now,
	}
}

func (c *RetentionCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RetentionCleanup) cleanup(ctx context.Context) {
	now := c.now()
	deleted, err := c.repo.DeleteBefore(ctx, now.Add(-c.notificationRetention), now.Add(-c.dispatchRetention))
	if err != nil {
		c.log.Warn("coaching retention cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("coaching retention cleanup deleted rows", "deleted", deleted)
	}
}
