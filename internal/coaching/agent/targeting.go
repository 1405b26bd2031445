package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/metrics"
)

// Mode picks how targets are chosen.
type Mode string

const (
	ModeDeterministic Mode = "deterministic"
	ModeDelegated     Mode = "delegated"
)

// ParseMode accepts a mode name case-insensitively. Empty means deterministic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDeterministic:
		return ModeDeterministic, nil
	case ModeDelegated:
		return ModeDelegated, nil
	default:
		return "", fmt.Errorf("unknown targeting mode %q", s)
	}
}

// Source records which path produced a selection.
type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceDelegated     Source = "delegated"
	SourceFallback      Source = "fallback"
)

// Policy configures the selector.
type Policy struct {
	Mode    Mode
	TopN    int
	MinRisk float64
}

// Selection is the outcome of a targeting run.
type Selection struct {
	Targets        []domain.TargetDecision `json:"targets"`
	Source         Source                  `json:"source"`
	FallbackReason string                  `json:"fallback_reason,omitempty"`
}

// Selector chooses which agents receive an intervention. It only returns
// decisions and never sends anything.
type Selector struct {
	gen     TextGenerator
	wording Wording
	log     *logger.Logger
}

// NewSelector creates a selector. gen may be nil when only deterministic
// targeting is used.
func NewSelector(gen TextGenerator, wording Wording, log *logger.Logger) *Selector {
	return &Selector{gen: gen, wording: wording, log: log}
}

// Select applies the policy to a risk-ordered preview. The delegated path
// falls back to the deterministic one on any collaborator failure or when
// the model names no known agent.
func (s *Selector) Select(ctx context.Context, preview []domain.KPIRow, policy Policy) Selection {
	if policy.TopN <= 0 {
		policy.TopN = 3
	}
	if len(preview) == 0 {
		return Selection{Targets: []domain.TargetDecision{}, Source: SourceDeterministic}
	}
	if policy.Mode != ModeDelegated {
		return Selection{Targets: Deterministic(preview, policy.TopN, policy.MinRisk), Source: SourceDeterministic}
	}

	targets, err := s.delegated(ctx, preview, policy.TopN)
	if err == nil && len(targets) > 0 {
		return Selection{Targets: targets, Source: SourceDelegated}
	}

	reason := "model selected no known agent"
	if err != nil {
		reason = err.Error()
	}
	metrics.RecordTargetingFallback()
	if s.log != nil {
		s.log.WithContext(ctx).Warn("targeting fell back to deterministic selection", "reason", reason)
	}
	return Selection{
		Targets:        Deterministic(preview, policy.TopN, policy.MinRisk),
		Source:         SourceFallback,
		FallbackReason: reason,
	}
}

// Deterministic picks the topN highest-risk agents with risk ≥ minRisk. An
// agent that appears in several rows is picked once, for its riskiest row.
func Deterministic(rows []domain.KPIRow, topN int, minRisk float64) []domain.TargetDecision {
	ranked := make([]domain.KPIRow, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Risk > ranked[j].Risk
	})

	seen := make(map[string]struct{}, topN)
	out := make([]domain.TargetDecision, 0, topN)
	for _, r := range ranked {
		if len(out) >= topN {
			break
		}
		if r.Risk < minRisk {
			continue
		}
		if _, dup := seen[r.AgentID]; dup {
			continue
		}
		seen[r.AgentID] = struct{}{}
		out = append(out, domain.TargetDecision{AgentID: r.AgentID, Reason: FallbackReason(r)})
	}
	return out
}

// FallbackReason formats the metrics that explain a deterministic pick.
func FallbackReason(r domain.KPIRow) string {
	return fmt.Sprintf("risk=%.2f, conv=%.3f, trend_rev=%.2f", r.Risk, r.Conversion, r.TrendRevenue)
}

type targetItem struct {
	AgentID  flexString `json:"agent_id"`
	DealerID flexString `json:"dealer_id"`
	Reason   string     `json:"reason"`
}

type targetPayload struct {
	TopN        int             `json:"top_n"`
	KPIsPreview []domain.KPIRow `json:"kpis_preview"`
}

func (s *Selector) delegated(ctx context.Context, preview []domain.KPIRow, topN int) ([]domain.TargetDecision, error) {
	raw, err := call(ctx, s.gen, s.log, Prompt{
		Stage:   StageTargeting,
		System:  bulletList(s.wording.TargetingRules) + fmt.Sprintf("\n- Choose at most %d agents.", topN),
		Payload: targetPayload{TopN: topN, KPIsPreview: preview},
	})
	if err != nil {
		return nil, err
	}
	items, err := decodeArray[targetItem](StageTargeting, raw)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]domain.KPIRow, len(preview))
	for _, r := range preview {
		if _, ok := rows[r.AgentID]; !ok {
			rows[r.AgentID] = r
		}
	}

	seen := make(map[string]struct{}, topN)
	out := make([]domain.TargetDecision, 0, topN)
	for _, it := range items {
		if len(out) >= topN {
			break
		}
		id := string(it.AgentID)
		if id == "" {
			id = string(it.DealerID)
		}
		row, known := rows[id]
		if !known {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		reason := sanitizeUserInput(it.Reason, maxConstraintLength)
		if reason == "" {
			reason = FallbackReason(row)
		}
		out = append(out, domain.TargetDecision{AgentID: id, Reason: reason})
	}
	return out, nil
}
