// Package domain holds the value types shared by the coaching pipeline stages.
package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxRecommendations caps the ranked recommendation list.
	MaxRecommendations = 4
	// PreviewLimit caps the risk-ordered KPI preview handed to collaborators.
	PreviewLimit = 15
	// UnknownAgent marks records whose agent could not be resolved.
	UnknownAgent = "UNKNOWN"
	// Unspecified fills missing region and tier values.
	Unspecified = "-"
)

// ActivityRecord is one normalised activity observation for an agent on a day.
type ActivityRecord struct {
	AgentID string    `json:"agent_id"`
	Date    time.Time `json:"date"`
	Region  string    `json:"region"`
	Tier    string    `json:"tier"`
	Leads   float64   `json:"leads"`
	Deals   float64   `json:"deals"`
	Revenue float64   `json:"revenue"`
	Points  float64   `json:"points"`
}

// KPIRow aggregates one (agent, region, tier) over the current window and
// carries the agent's previous-window totals.
type KPIRow struct {
	AgentID         string  `json:"agent_id"`
	Region          string  `json:"region"`
	Tier            string  `json:"tier"`
	Leads           float64 `json:"leads"`
	Deals           float64 `json:"deals"`
	Revenue         float64 `json:"revenue"`
	Points          float64 `json:"points"`
	Conversion      float64 `json:"conversion"`
	LeadsPrev       float64 `json:"leads_prev"`
	DealsPrev       float64 `json:"deals_prev"`
	RevenuePrev     float64 `json:"revenue_prev"`
	PointsPrev      float64 `json:"points_prev"`
	ConversionPrev  float64 `json:"conversion_prev"`
	TrendRevenue    float64 `json:"trend_revenue"`
	TrendConversion float64 `json:"trend_conversion"`
	Risk            float64 `json:"risk"`
}

// ManagerPrompt is the manager's objective for one pipeline run.
type ManagerPrompt struct {
	Goal        string            `json:"goal"`
	HorizonDays int               `json:"horizon_days"`
	Constraints []string          `json:"constraints"`
	Filters     map[string]string `json:"filters"`
}

// Region returns the region filter, if any.
func (p ManagerPrompt) Region() string {
	if p.Filters == nil {
		return ""
	}
	return strings.TrimSpace(p.Filters["region"])
}

// Recommendation is a ranked corrective action.
type Recommendation struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Explanation string  `json:"explanation"`
	Impact      float64 `json:"impact"`
	Effort      float64 `json:"effort"`
	Feasibility float64 `json:"feasibility"`
	Score       float64 `json:"score"`
}

// TargetDecision selects one agent for an intervention.
type TargetDecision struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// Style is the tone of a composed message.
type Style string

const (
	StyleProfessional Style = "professional"
	StyleMotivational Style = "motivational"
	StyleFriendly     Style = "friendly"
)

// Styles lists every accepted style.
var Styles = []Style{StyleProfessional, StyleMotivational, StyleFriendly}

// ParseStyle accepts a style name case-insensitively. Empty input yields
// the professional style.
func ParseStyle(s string) (Style, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StyleProfessional, nil
	}
	for _, st := range Styles {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown style %q", s)
}

// PerformanceLevel groups agents for tier-conditioned messages.
type PerformanceLevel string

const (
	LevelHigh   PerformanceLevel = "high"
	LevelMedium PerformanceLevel = "medium"
	LevelLow    PerformanceLevel = "low"
)

// Levels lists every performance level.
var Levels = []PerformanceLevel{LevelHigh, LevelMedium, LevelLow}

// ParseLevel accepts a level name case-insensitively. Empty input yields "".
func ParseLevel(s string) (PerformanceLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown performance level %q", s)
}

// Action is an entry of a notification's action menu.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// MetricsSnapshot copies the KPIRow values a notification was built from.
type MetricsSnapshot struct {
	Conversion         float64 `json:"conversion"`
	Revenue            float64 `json:"revenue"`
	Points             float64 `json:"points"`
	RiskOfUnderperform float64 `json:"risk_of_underperform"`
	TrendRevenue       float64 `json:"trend_revenue_30d"`
}

// Notification is a structured nudge for one agent.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Audience  string          `json:"audience"`
	AgentID   string          `json:"dealer_id"`
	Region    string          `json:"region"`
	Tier      string          `json:"tier"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Reason    string          `json:"reason"`
	Metrics   MetricsSnapshot `json:"metrics"`
	Actions   []Action        `json:"actions"`
	CreatedAt time.Time       `json:"created_at"`
}

// DispatchResult is the outcome of sending to one recipient.
type DispatchResult struct {
	Recipient string           `json:"recipient"`
	Level     PerformanceLevel `json:"level,omitempty"`
	Success   bool             `json:"success"`
	Detail    string           `json:"detail,omitempty"`
}
