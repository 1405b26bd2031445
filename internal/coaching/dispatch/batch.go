package dispatch

import (
	"context"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Item is one send of a batch.
type Item struct {
	Recipient string
	Level     domain.PerformanceLevel
	Text      string
}

// BatchOptions bound a batch.
type BatchOptions struct {
	ManagerID     string
	Concurrency   int
	RatePerSecond float64
}

// Batch fans sends out over a bounded pool. Failures are recorded per
// recipient and never abort the batch.
type Batch struct {
	dispatcher Dispatcher
	opts       BatchOptions
	log        *logger.Logger
}

// NewBatch creates a batch runner.
func NewBatch(d Dispatcher, opts BatchOptions, log *logger.Logger) *Batch {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Batch{dispatcher: d, opts: opts, log: log}
}

// Run sends every item and returns one result per item, in input order.
func (b *Batch) Run(ctx context.Context, items []Item) []domain.DispatchResult {
	results := make([]domain.DispatchResult, len(items))

	var limiter *rate.Limiter
	if b.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.opts.RatePerSecond), 1)
	}

	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			results[i] = b.send(ctx, limiter, it)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (b *Batch) send(ctx context.Context, limiter *rate.Limiter, it Item) domain.DispatchResult {
	res := domain.DispatchResult{Recipient: it.Recipient, Level: it.Level}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Detail = err.Error()
			b.record(ctx, res)
			return res
		}
	}

	out, err := b.dispatcher.Send(ctx, Review{
		ManagerID:     b.opts.ManagerID,
		SalespersonID: it.Recipient,
		Text:          it.Text,
	})
	switch {
	case err != nil:
		res.Detail = err.Error()
	default:
		res.Success = out.Success
		res.Detail = out.Detail
	}
	b.record(ctx, res)
	return res
}

func (b *Batch) record(ctx context.Context, res domain.DispatchResult) {
	metrics.RecordDispatch(res.Success)
	if b.log != nil {
		b.log.WithContext(ctx).DispatchResult(res.Recipient, res.Success, res.Detail)
	}
}
