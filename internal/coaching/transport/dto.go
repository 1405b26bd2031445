// Package transport holds the request and response shapes of the coaching API.
package transport

import (
	"strings"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/validator"
)

// Validation tags registered by RegisterValidations.
const (
	TagStyle = "coachstyle"
	TagLevel = "perflevel"
)

// RegisterValidations adds the coaching tags to v.
func RegisterValidations(v *validator.Validator) error {
	styles := make([]string, 0, len(domain.Styles))
	for _, s := range domain.Styles {
		styles = append(styles, string(s))
	}
	levels := make([]string, 0, len(domain.Levels))
	for _, l := range domain.Levels {
		levels = append(levels, string(l))
	}
	if err := v.RegisterValidation(TagStyle, validator.OneOfFold(styles...)); err != nil {
		return err
	}
	return v.RegisterValidation(TagLevel, validator.OneOfFold(levels...))
}

type ValidateGoalRequest struct {
	Goal       string `json:"goal" validate:"required,max=600"`
	PeriodDays int    `json:"period_days" validate:"omitempty,min=1,max=365"`
}

type ValidateGoalResponse struct {
	IsValid     bool     `json:"is_valid"`
	Why         []string `json:"why"`
	Suggestion  string   `json:"suggestion,omitempty"`
	HorizonDays int      `json:"horizon_days"`
}

// RunRequest carries the manager prompt and per-run overrides. Zero values
// fall back to configured defaults.
type RunRequest struct {
	Goal          string   `json:"goal" validate:"required,max=600"`
	HorizonDays   int      `json:"horizon_days" validate:"omitempty,min=7,max=120"`
	Constraints   []string `json:"constraints" validate:"omitempty,max=10,dive,max=200"`
	Region        string   `json:"region" validate:"omitempty,max=64"`
	WindowDays    int      `json:"window_days" validate:"omitempty,min=1,max=365"`
	TargetingMode string   `json:"targeting_mode" validate:"omitempty,oneof=deterministic delegated"`
	TopN          int      `json:"top_n" validate:"omitempty,min=1,max=15"`
	MinRisk       *float64 `json:"min_risk" validate:"omitempty,min=0,max=1"`
	Summarize     *bool    `json:"summarize"`
}

// Prompt builds the manager prompt. horizon is the resolved horizon.
func (r RunRequest) Prompt(horizon int) domain.ManagerPrompt {
	p := domain.ManagerPrompt{
		Goal:        strings.TrimSpace(r.Goal),
		HorizonDays: horizon,
		Constraints: r.Constraints,
	}
	if region := strings.TrimSpace(r.Region); region != "" {
		p.Filters = map[string]string{"region": region}
	}
	return p
}

type PreviewRequest struct {
	Region     string `form:"region" validate:"omitempty,max=64"`
	WindowDays int    `form:"window_days" validate:"omitempty,min=1,max=365"`
	Limit      int    `form:"limit" validate:"omitempty,min=1,max=15"`
}

// StartSessionRequest opens a review on a fresh run. Selected narrows the
// ranked recommendations to the given ids; empty keeps all of them.
type StartSessionRequest struct {
	RunRequest
	Style    string `json:"style" validate:"omitempty,coachstyle"`
	Selected []int  `json:"selected" validate:"omitempty,max=10,dive,min=1"`
}

// ActionRequest is one operator action on a review session.
type ActionRequest struct {
	Type   string   `json:"type" validate:"required"`
	Style  string   `json:"style" validate:"omitempty,coachstyle"`
	Text   string   `json:"text" validate:"max=4000"`
	Levels []string `json:"levels" validate:"omitempty,dive,perflevel"`
}

type NotificationsRequest struct {
	Goal        string   `json:"goal" validate:"required,max=600"`
	HorizonDays int      `json:"horizon_days" validate:"omitempty,min=7,max=120"`
	Region      string   `json:"region" validate:"omitempty,max=64"`
	WindowDays  int      `json:"window_days" validate:"omitempty,min=1,max=365"`
	TopN        int      `json:"top_n" validate:"omitempty,min=1,max=15"`
	MinRisk     *float64 `json:"min_risk" validate:"omitempty,min=0,max=1"`
}

type NotificationsResponse struct {
	Items []domain.Notification `json:"items"`
}

type ChampionsRequest struct {
	WindowDays int `form:"window_days" validate:"omitempty,min=1,max=365"`
	Limit      int `form:"limit" validate:"omitempty,min=1,max=100"`
}
