package scoring

import (
	"sort"

	"dealer_coach_backend/internal/coaching/domain"
)

// Grade thresholds on accumulated points.
const (
	GradeGold   = "GOLD"
	GradeSilver = "SILVER"
	GradeBronze = "BRONZE"
	GradeNone   = "-"
)

var gradeSteps = []struct {
	min   float64
	grade string
}{
	{300, GradeGold},
	{150, GradeSilver},
	{100, GradeBronze},
}

// Grade maps points to a champion grade.
func Grade(points float64) string {
	for _, step := range gradeSteps {
		if points >= step.min {
			return step.grade
		}
	}
	return GradeNone
}

// Champion is one leaderboard entry.
type Champion struct {
	AgentID string  `json:"agent_id"`
	Region  string  `json:"region"`
	Tier    string  `json:"tier"`
	Points  float64 `json:"points"`
	Revenue float64 `json:"revenue"`
	Grade   string  `json:"grade"`
}

// Champions sums points per agent across rows and ranks them by points, then
// revenue, then agent id.
func Champions(rows []domain.KPIRow, limit int) []Champion {
	byAgent := make(map[string]*Champion)
	order := make([]string, 0)
	for _, r := range rows {
		c, ok := byAgent[r.AgentID]
		if !ok {
			c = &Champion{AgentID: r.AgentID, Region: r.Region, Tier: r.Tier}
			byAgent[r.AgentID] = c
			order = append(order, r.AgentID)
		}
		c.Points += r.Points
		c.Revenue += r.Revenue
	}

	out := make([]Champion, 0, len(order))
	for _, id := range order {
		c := byAgent[id]
		c.Grade = Grade(c.Points)
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].AgentID < out[j].AgentID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
