package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dealer_coach_backend/platform/logger"
)

// Horizon bounds in days.
const (
	MinHorizonDays     = 7
	MaxHorizonDays     = 120
	DefaultHorizonDays = 30
)

var horizonPattern = regexp.MustCompile(`(?i)(\d{1,3})\s*(zile|days|day|săptămâni|weeks|week|luni|months|month)`)

// HorizonFromGoal extracts a period such as "6 weeks" from free text and
// converts it to days: weeks count 7, months 30. The result is clamped to
// [MinHorizonDays, MaxHorizonDays]. ok is false when no period is found.
func HorizonFromGoal(text string) (days int, ok bool) {
	m := horizonPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "săptămâni", "weeks", "week":
		n *= 7
	case "luni", "months", "month":
		n *= 30
	}
	return ClampHorizon(n), true
}

// ClampHorizon forces days into the accepted range.
func ClampHorizon(days int) int {
	switch {
	case days < MinHorizonDays:
		return MinHorizonDays
	case days > MaxHorizonDays:
		return MaxHorizonDays
	default:
		return days
	}
}

var fallbackDomains = []struct {
	name     string
	keywords []string
}{
	{"vehicle sales", []string{"golf", "tiguan", "passat", "model", "vehicle", "mașină", "masina"}},
	{"service sales", []string{"serviciu", "service", "warranty", "casco", "sunroof", "oil"}},
	{"customer engagement", []string{"client", "customer"}},
}

var fallbackRegions = []string{"NW", "NE", "Cluj-Napoca", "Iasi"}

// ConcreteFallback rewrites a vague goal into a measurable one based on the
// words it contains.
func ConcreteFallback(goal string) string {
	lower := strings.ToLower(goal)
	area := "dealership sales"
	for _, d := range fallbackDomains {
		if containsAny(lower, d.keywords) {
			area = d.name
			break
		}
	}
	scope := "in all regions"
	for _, r := range fallbackRegions {
		if strings.Contains(goal, r) {
			scope = "in region " + r
			break
		}
	}
	return fmt.Sprintf("Increase %s %s by 10%% in the next %d days.", area, scope, DefaultHorizonDays)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// GoalVerdict is the outcome of goal validation.
type GoalVerdict struct {
	IsValid     bool     `json:"is_valid"`
	Why         []string `json:"why"`
	Suggestion  string   `json:"suggestion"`
	HorizonDays int      `json:"horizon_days"`
}

// GoalValidator checks that a goal is actionable.
type GoalValidator struct {
	gen TextGenerator
	log *logger.Logger
}

// NewGoalValidator creates a validator.
func NewGoalValidator(gen TextGenerator, log *logger.Logger) *GoalValidator {
	return &GoalValidator{gen: gen, log: log}
}

const goalSystem = `You validate business goals for a car dealership group.
A valid goal names an action (increase, reduce, improve, grow and similar), a target (sales, revenue, conversion, leads and similar), a scope (a model, a service, a region or the whole network) and a time window.
Be permissive with synonyms and informal wording. If period_days is given the time window is satisfied.
Respond ONLY with a JSON object {"is_valid": bool, "why": [missing parts only], "suggested": "a concrete rewrite or empty"}.`

type goalPayload struct {
	Goal       string `json:"goal"`
	PeriodDays int    `json:"period_days,omitempty"`
}

type goalReply struct {
	IsValid   bool       `json:"is_valid"`
	Why       flexReason `json:"why"`
	Suggested string     `json:"suggested"`
}

// flexReason accepts a string or a list of strings.
type flexReason []string

func (r *flexReason) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*r = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	if one = strings.TrimSpace(one); one != "" {
		*r = []string{one}
	}
	return nil
}

// Validate asks the model whether goal is actionable. A blank goal is
// rejected without a call. When no period is given the horizon is read from
// the goal text, defaulting to 30 days. An invalid verdict always carries a
// suggestion, falling back to ConcreteFallback.
func (v *GoalValidator) Validate(ctx context.Context, goal string, periodDays int) (GoalVerdict, error) {
	goal = sanitizeUserInput(goal, maxGoalLength)
	horizon := periodDays
	if horizon > 0 {
		horizon = ClampHorizon(horizon)
	} else if d, ok := HorizonFromGoal(goal); ok {
		horizon = d
	} else {
		horizon = DefaultHorizonDays
	}

	if goal == "" {
		return GoalVerdict{
			Why:         []string{"Input is not a business goal."},
			Suggestion:  ConcreteFallback(goal),
			HorizonDays: horizon,
		}, nil
	}

	raw, err := call(ctx, v.gen, v.log, Prompt{
		Stage:   StageGoalValidation,
		System:  goalSystem,
		Payload: goalPayload{Goal: goal, PeriodDays: periodDays},
	})
	if err != nil {
		return GoalVerdict{}, err
	}
	reply, err := decodeObject[goalReply](StageGoalValidation, raw)
	if err != nil {
		return GoalVerdict{}, err
	}

	verdict := GoalVerdict{
		IsValid:     reply.IsValid,
		Why:         []string(reply.Why),
		Suggestion:  strings.TrimSpace(reply.Suggested),
		HorizonDays: horizon,
	}
	if verdict.Why == nil {
		verdict.Why = []string{}
	}
	if !verdict.IsValid {
		if len(verdict.Why) == 0 {
			verdict.Why = []string{"Input is not a business goal."}
		}
		if verdict.Suggestion == "" {
			verdict.Suggestion = ConcreteFallback(goal)
		}
	}
	return verdict, nil
}
