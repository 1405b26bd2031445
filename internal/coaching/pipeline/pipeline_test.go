package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/normalize"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/events"
	"dealer_coach_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC) }

type fakeRanker struct {
	calls int
	got   agent.RankInput
	err   error
}

func (f *fakeRanker) Rank(_ context.Context, in agent.RankInput) ([]domain.Recommendation, error) {
	f.calls++
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Recommendation{{ID: 1, Title: "Follow up open leads", Score: 1}}, nil
}

type fakeSelector struct {
	calls int
}

func (f *fakeSelector) Select(_ context.Context, preview []domain.KPIRow, p agent.Policy) agent.Selection {
	f.calls++
	return agent.Selection{Targets: agent.Deterministic(preview, p.TopN, p.MinRisk), Source: agent.SourceDeterministic}
}

type fakeSummarizer struct {
	err error
}

func (f fakeSummarizer) Summarize(context.Context, domain.ManagerPrompt, []domain.KPIRow) (string, error) {
	return "A is slipping", f.err
}

type failingSource struct{}

func (failingSource) Batches(context.Context, time.Time) ([]normalize.Batch, error) {
	return nil, errors.New("db down")
}

func activity(rows ...map[string]any) StaticSource {
	return StaticSource{{Source: normalize.SourceActivity, Rows: rows}}
}

func row(id, date string, leads, deals, revenue float64) map[string]any {
	return map[string]any{
		"dealer_id": id,
		"date":      date,
		"region":    "DE",
		"tier":      "Gold",
		"leads":     leads,
		"deals":     deals,
		"revenue":   revenue,
		"points":    10,
	}
}

func abSource() StaticSource {
	return activity(
		row("A", "2026-03-20", 10, 1, 500),
		row("B", "2026-03-20", 10, 5, 1000),
		row("A", "2026-02-15", 10, 3, 1000),
		row("B", "2026-02-15", 10, 5, 1000),
	)
}

func params() Params {
	return Params{
		Prompt:     domain.ManagerPrompt{Goal: "Increase conversion by 10% in 30 days", HorizonDays: 30},
		WindowDays: 30,
		Policy:     agent.Policy{Mode: agent.ModeDeterministic, TopN: 1},
	}
}

func newPipeline(src Source, r *fakeRanker, s *fakeSelector, bus events.Bus) *Pipeline {
	return New(Deps{
		Source:   src,
		Ranker:   r,
		Selector: s,
		Bus:      bus,
		Log:      logger.Discard(),
		Now:      fixedNow,
	})
}

func TestRunScoresTheWeakerAgentHighest(t *testing.T) {
	ranker, selector := &fakeRanker{}, &fakeSelector{}
	p := newPipeline(abSource(), ranker, selector, nil)

	res, err := p.Run(context.Background(), params())
	require.NoError(t, err)

	require.Len(t, res.Preview, 2)
	assert.Equal(t, "A", res.Preview[0].AgentID)
	assert.InDelta(t, 1.0, res.Preview[0].Risk, 1e-9)
	assert.InDelta(t, 0.0, res.Preview[1].Risk, 1e-9)
	assert.InDelta(t, -0.5, res.Preview[0].TrendRevenue, 1e-9)

	require.Len(t, res.Selection.Targets, 1)
	assert.Equal(t, "A", res.Selection.Targets[0].AgentID)
	assert.Len(t, res.Recommendations, 1)
	assert.Equal(t, 1, ranker.calls)
	assert.Equal(t, res.Preview, ranker.got.Preview)
}

func TestRunEmptyWindowMakesNoCollaboratorCalls(t *testing.T) {
	ranker, selector := &fakeRanker{}, &fakeSelector{}
	p := newPipeline(activity(row("A", "2025-01-01", 10, 1, 100)), ranker, selector, nil)

	res, err := p.Run(context.Background(), params())
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Preview)
	assert.Empty(t, res.Recommendations)
	assert.Empty(t, res.Selection.Targets)
	assert.Zero(t, ranker.calls)
	assert.Zero(t, selector.calls)
}

func TestRunRankerFailureIsFatal(t *testing.T) {
	ranker := &fakeRanker{err: apperr.GenerationFormat("ranking: no JSON array", nil)}
	selector := &fakeSelector{}
	p := newPipeline(abSource(), ranker, selector, nil)

	_, err := p.Run(context.Background(), params())
	assert.True(t, apperr.Is(err, apperr.KindGenerationFormat))
	assert.Zero(t, selector.calls)
}

func TestRunRejectsBlankGoalAndBadWindow(t *testing.T) {
	p := newPipeline(abSource(), &fakeRanker{}, &fakeSelector{}, nil)

	pr := params()
	pr.Prompt.Goal = "  "
	_, err := p.Run(context.Background(), pr)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	pr = params()
	pr.WindowDays = 0
	_, err = p.Run(context.Background(), pr)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRunMissingDateColumnIsConfigurationError(t *testing.T) {
	src := activity(map[string]any{"dealer_id": "A", "leads": 3})
	_, err := newPipeline(src, &fakeRanker{}, &fakeSelector{}, nil).Run(context.Background(), params())
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestRunSourceErrorPropagates(t *testing.T) {
	_, err := newPipeline(failingSource{}, &fakeRanker{}, &fakeSelector{}, nil).Run(context.Background(), params())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRunRegionFilter(t *testing.T) {
	src := activity(
		row("A", "2026-03-20", 10, 1, 500),
		map[string]any{"dealer_id": "C", "date": "2026-03-20", "region": "FR", "leads": 4, "deals": 1},
	)
	pr := params()
	pr.Prompt.Filters = map[string]string{"region": "fr"}

	res, err := newPipeline(src, &fakeRanker{}, &fakeSelector{}, nil).Run(context.Background(), pr)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "C", res.Rows[0].AgentID)
}

func TestRunSummaryIsPassedToRankerAndOptional(t *testing.T) {
	ranker := &fakeRanker{}
	p := New(Deps{Source: abSource(), Ranker: ranker, Selector: &fakeSelector{}, Summarizer: fakeSummarizer{}, Now: fixedNow})
	pr := params()
	pr.Summarize = true

	res, err := p.Run(context.Background(), pr)
	require.NoError(t, err)
	assert.Equal(t, "A is slipping", res.Summary)
	assert.Equal(t, "A is slipping", ranker.got.Summary)

	ranker = &fakeRanker{}
	p = New(Deps{Source: abSource(), Ranker: ranker, Selector: &fakeSelector{}, Summarizer: fakeSummarizer{err: errors.New("timeout")}, Now: fixedNow})
	res, err = p.Run(context.Background(), pr)
	require.NoError(t, err)
	assert.Empty(t, res.Summary)
	assert.Equal(t, 1, ranker.calls)
}

func TestRunPublishesCompletion(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Discard())
	var got []events.Event
	bus.Subscribe("coaching.pipeline.completed", events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	}))

	_, err := newPipeline(abSource(), &fakeRanker{}, &fakeSelector{}, bus).Run(context.Background(), params())
	require.NoError(t, err)
	bus.Wait()
	assert.Len(t, got, 1)
}

func TestChampions(t *testing.T) {
	p := newPipeline(abSource(), &fakeRanker{}, &fakeSelector{}, nil)
	champs, err := p.Champions(context.Background(), 30, 10)
	require.NoError(t, err)
	require.Len(t, champs, 2)
	assert.Equal(t, "B", champs[0].AgentID)
}
