package agent

import (
	"context"
	"fmt"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
)

// Groups maps each performance level to its members in target order.
type Groups map[domain.PerformanceLevel][]domain.TargetDecision

// Members returns the group for level, or nil.
func (g Groups) Members(level domain.PerformanceLevel) []domain.TargetDecision {
	return g[level]
}

// ClassifyInput carries the targets and the KPI rows they were chosen from.
type ClassifyInput struct {
	Goal        string
	HorizonDays int
	Targets     []domain.TargetDecision
	Rows        []domain.KPIRow
}

// Classifier splits targets into performance levels.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Groups, error)
}

// RiskBandClassifier groups by risk: risk ≥ Low is the low group, risk ≥
// Medium the medium group, everything else high. Agents without a row are
// treated as medium.
type RiskBandClassifier struct {
	Low    float64
	Medium float64
}

// Classify never fails.
func (c RiskBandClassifier) Classify(_ context.Context, in ClassifyInput) (Groups, error) {
	risk := riskByAgent(in.Rows)
	groups := Groups{}
	for _, t := range in.Targets {
		level := domain.LevelMedium
		if r, ok := risk[t.AgentID]; ok {
			level = c.level(r)
		}
		groups[level] = append(groups[level], t)
	}
	return groups, nil
}

func (c RiskBandClassifier) level(risk float64) domain.PerformanceLevel {
	switch {
	case risk >= c.Low:
		return domain.LevelLow
	case risk >= c.Medium:
		return domain.LevelMedium
	default:
		return domain.LevelHigh
	}
}

func riskByAgent(rows []domain.KPIRow) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		if cur, ok := out[r.AgentID]; !ok || r.Risk > cur {
			out[r.AgentID] = r.Risk
		}
	}
	return out
}

// PerformanceClassifier asks the model to group targets. It fails fast on
// any collaborator or format problem. Targets the model does not mention
// land in the medium group.
type PerformanceClassifier struct {
	gen TextGenerator
	log *logger.Logger
}

// NewPerformanceClassifier creates a model-backed classifier.
func NewPerformanceClassifier(gen TextGenerator, log *logger.Logger) *PerformanceClassifier {
	return &PerformanceClassifier{gen: gen, log: log}
}

type classifiedEmployee struct {
	ID       flexString `json:"id"`
	DealerID flexString `json:"dealer_id"`
	Reason   string     `json:"reason"`
}

type classification struct {
	Underperformers []classifiedEmployee `json:"underperformers"`
	Average         []classifiedEmployee `json:"average"`
	Overperformers  []classifiedEmployee `json:"overperformers"`
}

type classifyPayload struct {
	Goal       string          `json:"goal,omitempty"`
	PeriodDays int             `json:"period_days"`
	Agents     []domain.KPIRow `json:"agents"`
}

const classifySystem = `You are a business analyst for a car dealership group.
Classify every agent in the data into three groups: underperformers (below target), average and overperformers (above target).
Estimate the target from the data itself, for example the average or median.
For each agent give id and a short reason such as "sales 30% below average".
Respond ONLY with a JSON object with keys underperformers, average and overperformers. Each is a list of {"id", "reason"}. No prose.`

// Classify implements Classifier.
func (c *PerformanceClassifier) Classify(ctx context.Context, in ClassifyInput) (Groups, error) {
	if len(in.Targets) == 0 {
		return Groups{}, nil
	}
	wanted := make(map[string]struct{}, len(in.Targets))
	for _, t := range in.Targets {
		wanted[t.AgentID] = struct{}{}
	}
	agents := make([]domain.KPIRow, 0, len(in.Targets))
	for _, r := range in.Rows {
		if _, ok := wanted[r.AgentID]; ok {
			agents = append(agents, r)
		}
	}

	raw, err := call(ctx, c.gen, c.log, Prompt{
		Stage:  StageClassification,
		System: classifySystem,
		Payload: classifyPayload{
			Goal:       sanitizeUserInput(in.Goal, maxGoalLength),
			PeriodDays: in.HorizonDays,
			Agents:     agents,
		},
	})
	if err != nil {
		return nil, err
	}
	parsed, err := decodeObject[classification](StageClassification, raw)
	if err != nil {
		return nil, err
	}

	assigned := make(map[string]domain.PerformanceLevel, len(in.Targets))
	mark := func(list []classifiedEmployee, level domain.PerformanceLevel) {
		for _, e := range list {
			id := string(e.ID)
			if id == "" {
				id = string(e.DealerID)
			}
			if _, ok := wanted[id]; !ok {
				continue
			}
			if _, done := assigned[id]; !done {
				assigned[id] = level
			}
		}
	}
	mark(parsed.Underperformers, domain.LevelLow)
	mark(parsed.Average, domain.LevelMedium)
	mark(parsed.Overperformers, domain.LevelHigh)
	if len(assigned) == 0 {
		return nil, apperr.GenerationFormat("classification: response names none of the targets", nil)
	}

	groups := Groups{}
	for _, t := range in.Targets {
		level, ok := assigned[t.AgentID]
		if !ok {
			level = domain.LevelMedium
		}
		groups[level] = append(groups[level], t)
	}
	return groups, nil
}

// FallbackClassifier uses Secondary when Primary fails.
type FallbackClassifier struct {
	Primary   Classifier
	Secondary Classifier
	Log       *logger.Logger
}

// Classify implements Classifier.
func (f FallbackClassifier) Classify(ctx context.Context, in ClassifyInput) (Groups, error) {
	groups, err := f.Primary.Classify(ctx, in)
	if err == nil {
		return groups, nil
	}
	if f.Log != nil {
		f.Log.WithContext(ctx).Warn("performance classification fell back to risk bands", "error", err)
	}
	groups, ferr := f.Secondary.Classify(ctx, in)
	if ferr != nil {
		return nil, fmt.Errorf("classify: %w", ferr)
	}
	return groups, nil
}
