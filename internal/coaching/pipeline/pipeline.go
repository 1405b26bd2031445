// Package pipeline runs the coaching stages in order: normalise, aggregate,
// score, rank and target.
package pipeline

import (
	"context"
	"strings"
	"time"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/kpi"
	"dealer_coach_backend/internal/coaching/normalize"
	"dealer_coach_backend/internal/coaching/scoring"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	StageLoad      = "load"
	StageNormalize = "normalize"
	StageKPI       = "kpi"
	StageRisk      = "risk"
	StageSummary   = "summary"
	StageRank      = "rank"
	StageTarget    = "target"
)

// Source loads raw rows dated on or after since.
type Source interface {
	Batches(ctx context.Context, since time.Time) ([]normalize.Batch, error)
}

// StaticSource serves fixed batches. The console and tests use it.
type StaticSource []normalize.Batch

func (s StaticSource) Batches(context.Context, time.Time) ([]normalize.Batch, error) {
	return s, nil
}

type Ranker interface {
	Rank(ctx context.Context, in agent.RankInput) ([]domain.Recommendation, error)
}

type Selector interface {
	Select(ctx context.Context, preview []domain.KPIRow, policy agent.Policy) agent.Selection
}

type Summarizer interface {
	Summarize(ctx context.Context, prompt domain.ManagerPrompt, preview []domain.KPIRow) (string, error)
}

// Deps are the collaborators of a Pipeline. Summarizer and Bus are optional.
type Deps struct {
	Source     Source
	Ranker     Ranker
	Selector   Selector
	Summarizer Summarizer
	Bus        events.Bus
	Log        *logger.Logger
	Now        func() time.Time
}

// Params configure one run.
type Params struct {
	Prompt       domain.ManagerPrompt
	WindowDays   int
	PreviewLimit int
	Policy       agent.Policy
	Summarize    bool
}

// Analysis is the collaborator-free part of a run.
type Analysis struct {
	Window  kpi.Window         `json:"window"`
	Reports []normalize.Report `json:"reports"`
	Rows    []domain.KPIRow    `json:"-"`
	Preview []domain.KPIRow    `json:"preview"`
}

// Empty reports whether the current window held no activity.
func (a *Analysis) Empty() bool {
	return len(a.Rows) == 0
}

// Result is the output of a full run.
type Result struct {
	RunID  uuid.UUID            `json:"run_id"`
	Prompt domain.ManagerPrompt `json:"prompt"`
	Analysis
	Summary         string                  `json:"summary,omitempty"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Selection       agent.Selection         `json:"selection"`
}

type Pipeline struct {
	source     Source
	normalizer *normalize.Normalizer
	engine     *kpi.Engine
	ranker     Ranker
	selector   Selector
	summarizer Summarizer
	bus        events.Bus
	log        *logger.Logger
	now        func() time.Time
}

func New(d Deps) *Pipeline {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return &Pipeline{
		source:     d.Source,
		normalizer: normalize.New(d.Now),
		engine:     kpi.NewEngine(d.Now),
		ranker:     d.Ranker,
		selector:   d.Selector,
		summarizer: d.Summarizer,
		bus:        d.Bus,
		log:        d.Log,
		now:        d.Now,
	}
}

// Analyze loads, normalises, aggregates and scores. It never calls a text
// generator.
func (p *Pipeline) Analyze(ctx context.Context, params Params) (*Analysis, error) {
	if params.WindowDays < 1 {
		return nil, apperr.Validation("window days must be at least 1")
	}
	window := kpi.Windows(p.now(), params.WindowDays)

	var batches []normalize.Batch
	err := p.stage(ctx, StageLoad, func() error {
		var err error
		batches, err = p.source.Batches(ctx, window.PrevStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		records []domain.ActivityRecord
		reports []normalize.Report
	)
	err = p.stage(ctx, StageNormalize, func() error {
		var err error
		records, reports, err = p.normalizer.NormalizeAll(batches...)
		return err
	})
	if err != nil {
		return nil, err
	}
	records = kpi.FilterRegion(records, params.Prompt.Region())

	var rows []domain.KPIRow
	err = p.stage(ctx, StageKPI, func() error {
		var err error
		rows, err = p.engine.Compute(records, params.WindowDays)
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = p.stage(ctx, StageRisk, func() error {
		rows = scoring.Apply(rows)
		return nil
	})

	return &Analysis{
		Window:  window,
		Reports: reports,
		Rows:    rows,
		Preview: kpi.Preview(rows, params.PreviewLimit),
	}, nil
}

// Run executes every stage. An empty current window ends the run early with
// empty outputs and no collaborator calls.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Result, error) {
	start := p.now()
	if strings.TrimSpace(params.Prompt.Goal) == "" {
		metrics.RecordPipelineRun("error")
		return nil, apperr.Validation("goal is required")
	}

	analysis, err := p.Analyze(ctx, params)
	if err != nil {
		metrics.RecordPipelineRun("error")
		return nil, err
	}
	res := &Result{
		RunID:           uuid.New(),
		Prompt:          params.Prompt,
		Analysis:        *analysis,
		Recommendations: []domain.Recommendation{},
		Selection:       agent.Selection{Targets: []domain.TargetDecision{}, Source: agent.SourceDeterministic},
	}
	if analysis.Empty() {
		p.log.WithContext(ctx).Info("empty activity window", "window_days", params.WindowDays, "region", params.Prompt.Region())
		metrics.RecordPipelineRun("empty")
		return res, nil
	}

	if params.Summarize && p.summarizer != nil {
		_ = p.stage(ctx, StageSummary, func() error {
			summary, err := p.summarizer.Summarize(ctx, params.Prompt, res.Preview)
			if err != nil {
				p.log.WithContext(ctx).Warn("continuing without analytic summary", "error", err)
				return err
			}
			res.Summary = summary
			return nil
		})
	}

	err = p.stage(ctx, StageRank, func() error {
		var err error
		res.Recommendations, err = p.ranker.Rank(ctx, agent.RankInput{
			Preview: res.Preview,
			Prompt:  params.Prompt,
			Summary: res.Summary,
		})
		return err
	})
	if err != nil {
		metrics.RecordPipelineRun("error")
		return nil, err
	}

	_ = p.stage(ctx, StageTarget, func() error {
		res.Selection = p.selector.Select(ctx, res.Preview, params.Policy)
		return nil
	})

	metrics.RecordPipelineRun("ok")
	if p.bus != nil {
		p.bus.Publish(ctx, events.PipelineCompleted{
			BaseEvent:       events.NewBaseEventAt(p.now()),
			RunID:           res.RunID,
			Goal:            params.Prompt.Goal,
			Rows:            len(res.Rows),
			Recommendations: len(res.Recommendations),
			Targets:         len(res.Selection.Targets),
			TargetingSource: string(res.Selection.Source),
			Elapsed:         p.now().Sub(start),
		})
	}
	return res, nil
}

// Champions ranks agents by points over the window.
func (p *Pipeline) Champions(ctx context.Context, windowDays, limit int) ([]scoring.Champion, error) {
	analysis, err := p.Analyze(ctx, Params{WindowDays: windowDays})
	if err != nil {
		return nil, err
	}
	return scoring.Champions(analysis.Rows, limit), nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)
	metrics.ObserveStage(name, elapsed)
	p.log.WithContext(ctx).PipelineStage(name, elapsed, err)
	return err
}
