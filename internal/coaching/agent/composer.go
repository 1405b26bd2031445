package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/sanitize"
)

const maxIssues = 3

var subjectLine = regexp.MustCompile(`(?i)^\s*subject\s*:[^\n]*\n?`)

// IdentifyIssues describes the three highest-risk rows of the preview.
// Rows without a known agent are skipped after the top three are taken, so
// the result can be shorter than three.
func IdentifyIssues(preview []domain.KPIRow) []string {
	top := make([]domain.KPIRow, len(preview))
	copy(top, preview)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Risk > top[j].Risk
	})
	if len(top) > maxIssues {
		top = top[:maxIssues]
	}

	lines := make([]string, 0, len(top))
	for _, r := range top {
		id := strings.TrimSpace(r.AgentID)
		if id == "" || strings.EqualFold(id, domain.UnknownAgent) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s, %s): conversion %.1f%%, revenue trend %+.0f%%, risk %.0f%%",
			id, r.Region, r.Tier, r.Conversion*100, r.TrendRevenue*100, r.Risk*100))
	}
	return lines
}

// ComposeInput is one message request.
type ComposeInput struct {
	Goal             string
	Recommendations  []domain.Recommendation
	Preview          []domain.KPIRow
	Style            domain.Style
	PerformanceLevel domain.PerformanceLevel
}

type allowedAction struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

type composePayload struct {
	Goal             string          `json:"goal"`
	Style            domain.Style    `json:"style"`
	PerformanceLevel string          `json:"performance_level,omitempty"`
	SpecificIssues   []string        `json:"specific_issues"`
	AllowedActions   []allowedAction `json:"allowed_actions"`
}

// Composer writes the team message for the selected recommendations.
type Composer struct {
	gen     TextGenerator
	wording Wording
	log     *logger.Logger
}

// NewComposer creates a composer.
func NewComposer(gen TextGenerator, wording Wording, log *logger.Logger) *Composer {
	return &Composer{gen: gen, wording: wording, log: log}
}

// Compose returns plain prose. It fails on a collaborator error or an empty
// reply. Only the titles of the given recommendations are offered as actions.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (string, error) {
	style := in.Style
	if style == "" {
		style = domain.StyleProfessional
	}
	styleNote, ok := c.wording.Styles[style]
	if !ok {
		return "", apperr.Validation(fmt.Sprintf("unknown style %q", style))
	}
	var levelNote string
	if in.PerformanceLevel != "" {
		if levelNote, ok = c.wording.Levels[in.PerformanceLevel]; !ok {
			return "", apperr.Validation(fmt.Sprintf("unknown performance level %q", in.PerformanceLevel))
		}
	}

	actions := make([]allowedAction, 0, len(in.Recommendations))
	for _, r := range in.Recommendations {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		actions = append(actions, allowedAction{Title: title, Explanation: strings.TrimSpace(r.Explanation)})
	}

	system := bulletList(c.wording.ComposeRules) + "\n\nTone: " + strings.TrimSpace(styleNote)
	if levelNote != "" {
		system += "\nAudience: " + strings.TrimSpace(levelNote)
	}

	raw, err := call(ctx, c.gen, c.log, Prompt{
		Stage:  StageComposition,
		System: system,
		Payload: composePayload{
			Goal:             sanitizeUserInput(in.Goal, maxGoalLength),
			Style:            style,
			PerformanceLevel: string(in.PerformanceLevel),
			SpecificIssues:   IdentifyIssues(in.Preview),
			AllowedActions:   actions,
		},
	})
	if err != nil {
		return "", err
	}

	text := sanitize.Message(subjectLine.ReplaceAllString(strings.TrimSpace(raw), ""))
	if text == "" {
		return "", apperr.GenerationFormat("composition: empty message", nil)
	}
	return text, nil
}
