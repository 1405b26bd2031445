package agent

import (
	"context"
	"sort"
	"strings"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
)

// Defaults for scores the model leaves out.
const (
	DefaultImpact      = 0.6
	DefaultEffort      = 0.4
	DefaultFeasibility = 0.7
)

// Score is impact*feasibility/(0.2+effort).
func Score(impact, effort, feasibility float64) float64 {
	return impact * feasibility / (0.2 + effort)
}

// RankInput is what the ranker sends to the model.
type RankInput struct {
	Preview []domain.KPIRow
	Prompt  domain.ManagerPrompt
	Summary string
}

// Ranker asks the model for corrective actions and orders them by score.
type Ranker struct {
	gen     TextGenerator
	wording Wording
	log     *logger.Logger
}

// NewRanker creates a ranker.
func NewRanker(gen TextGenerator, wording Wording, log *logger.Logger) *Ranker {
	return &Ranker{gen: gen, wording: wording, log: log}
}

type rankedItem struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Explanation string     `json:"explanation"`
	Description string     `json:"description"`
	Impact      flexFloat  `json:"impact"`
	Effort      flexFloat  `json:"effort"`
	Feasibility flexFloat  `json:"feasibility"`
}

type rankPayload struct {
	Goal        string            `json:"goal"`
	HorizonDays int               `json:"horizon_days"`
	Constraints []string          `json:"constraints"`
	Filters     map[string]string `json:"filters"`
	KPIsPreview []domain.KPIRow   `json:"kpis_preview"`
}

// Rank returns at most MaxRecommendations items ordered by descending score.
// Any collaborator failure, unparseable output or a result without a usable
// item is a generation format error.
func (r *Ranker) Rank(ctx context.Context, in RankInput) ([]domain.Recommendation, error) {
	preview := in.Preview
	if len(preview) > domain.PreviewLimit {
		preview = preview[:domain.PreviewLimit]
	}
	filters := in.Prompt.Filters
	if filters == nil {
		filters = map[string]string{}
	}

	raw, err := call(ctx, r.gen, r.log, Prompt{
		Stage:  StageRanking,
		System: r.systemPrompt(in.Summary),
		Payload: rankPayload{
			Goal:        sanitizeUserInput(in.Prompt.Goal, maxGoalLength),
			HorizonDays: in.Prompt.HorizonDays,
			Constraints: sanitizeAll(in.Prompt.Constraints, maxConstraintLength),
			Filters:     filters,
			KPIsPreview: preview,
		},
	})
	if err != nil {
		return nil, err
	}

	items, err := decodeArray[rankedItem](StageRanking, raw)
	if err != nil {
		return nil, err
	}
	recs := rankItems(items)
	if len(recs) == 0 {
		return nil, apperr.GenerationFormat("ranking: response has no usable recommendation", nil)
	}
	return recs, nil
}

// rankItems scores, orders and truncates raw model items. Items without a
// title are dropped.
func rankItems(items []rankedItem) []domain.Recommendation {
	recs := make([]domain.Recommendation, 0, len(items))
	for _, it := range items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		explanation := strings.TrimSpace(it.Explanation)
		if explanation == "" {
			explanation = strings.TrimSpace(it.Description)
		}
		impact := it.Impact.or(DefaultImpact)
		effort := it.Effort.or(DefaultEffort)
		feasibility := it.Feasibility.or(DefaultFeasibility)
		recs = append(recs, domain.Recommendation{
			ID:          it.ID.positiveInt(),
			Title:       title,
			Explanation: explanation,
			Impact:      impact,
			Effort:      effort,
			Feasibility: feasibility,
			Score:       Score(impact, effort, feasibility),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
	if len(recs) > domain.MaxRecommendations {
		recs = recs[:domain.MaxRecommendations]
	}
	numberGaps(recs)
	return recs
}

// numberGaps keeps ids the model supplied and gives every item without one,
// or with a repeated one, the lowest unused positive id.
func numberGaps(recs []domain.Recommendation) {
	used := make(map[int]bool, len(recs))
	for i := range recs {
		if recs[i].ID > 0 && !used[recs[i].ID] {
			used[recs[i].ID] = true
			continue
		}
		recs[i].ID = 0
	}
	next := 1
	for i := range recs {
		if recs[i].ID > 0 {
			continue
		}
		for used[next] {
			next++
		}
		recs[i].ID = next
		used[next] = true
	}
}

func (r *Ranker) systemPrompt(summary string) string {
	var b strings.Builder
	b.WriteString(bulletList(r.wording.RankerRules))
	if s := sanitizeUserInput(summary, maxSummaryLength); s != "" {
		b.WriteString("\n\nAnalytic summary of the data:\n")
		b.WriteString(s)
	}
	return b.String()
}
