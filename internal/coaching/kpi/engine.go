// Package kpi aggregates activity records into comparable per-agent KPIs over
// a current and a previous window.
package kpi

import (
	"sort"
	"strings"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
)

// Window holds the inclusive bounds of the current and previous periods.
type Window struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	PrevStart time.Time `json:"prev_start"`
	PrevEnd   time.Time `json:"prev_end"`
}

// Windows derives the windows for sinceDays ending on today.
func Windows(today time.Time, sinceDays int) Window {
	end := truncateDay(today)
	start := end.AddDate(0, 0, -sinceDays)
	return Window{
		Start:     start,
		End:       end,
		PrevStart: start.AddDate(0, 0, -sinceDays),
		PrevEnd:   start.AddDate(0, 0, -1),
	}
}

func (w Window) inCurrent(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) inPrevious(d time.Time) bool {
	return !d.Before(w.PrevStart) && !d.After(w.PrevEnd)
}

// Engine computes KPI rows. Now is injectable so results only depend on the
// records and the configured day.
type Engine struct {
	Now func() time.Time
}

// NewEngine creates an engine. A nil clock means time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{Now: now}
}

type groupKey struct {
	agent, region, tier string
}

type totals struct {
	leads, deals, revenue, points float64
}

func (t *totals) add(r domain.ActivityRecord) {
	t.leads += r.Leads
	t.deals += r.Deals
	t.revenue += r.Revenue
	t.points += r.Points
}

// Compute aggregates records over the window ending today. An empty current
// window yields an empty result and no error. Risk is left at zero; see the
// scoring package.
func (e *Engine) Compute(records []domain.ActivityRecord, sinceDays int) ([]domain.KPIRow, error) {
	if sinceDays < 1 {
		return nil, apperr.Validation("since_days must be at least 1").WithOp("kpi.Compute")
	}
	w := Windows(e.Now(), sinceDays)

	current := make(map[groupKey]*totals)
	previous := make(map[string]*totals)
	for _, r := range records {
		d := truncateDay(r.Date)
		switch {
		case w.inCurrent(d):
			k := groupKey{r.AgentID, r.Region, r.Tier}
			if current[k] == nil {
				current[k] = &totals{}
			}
			current[k].add(r)
		case w.inPrevious(d):
			if previous[r.AgentID] == nil {
				previous[r.AgentID] = &totals{}
			}
			previous[r.AgentID].add(r)
		}
	}

	if len(current) == 0 {
		return []domain.KPIRow{}, nil
	}

	rows := make([]domain.KPIRow, 0, len(current))
	for k, cur := range current {
		prev := previous[k.agent]
		if prev == nil {
			prev = &totals{}
		}
		conv := Conversion(cur.deals, cur.leads)
		convPrev := Conversion(prev.deals, prev.leads)
		rows = append(rows, domain.KPIRow{
			AgentID:         k.agent,
			Region:          k.region,
			Tier:            k.tier,
			Leads:           cur.leads,
			Deals:           cur.deals,
			Revenue:         cur.revenue,
			Points:          cur.points,
			Conversion:      conv,
			LeadsPrev:       prev.leads,
			DealsPrev:       prev.deals,
			RevenuePrev:     prev.revenue,
			PointsPrev:      prev.points,
			ConversionPrev:  convPrev,
			TrendRevenue:    Trend(cur.revenue, prev.revenue),
			TrendConversion: Trend(conv, convPrev),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.Tier < b.Tier
	})
	return rows, nil
}

// Conversion is deals/leads, 0 without leads. Deals beyond leads cap at 1.
func Conversion(deals, leads float64) float64 {
	if leads <= 0 {
		return 0
	}
	c := deals / leads
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

// Trend is the relative change from prev to curr. Activity appearing from
// nothing counts as +100%.
func Trend(curr, prev float64) float64 {
	if prev == 0 {
		if curr == 0 {
			return 0
		}
		return 1.0
	}
	if prev < 0 {
		return (curr - prev) / -prev
	}
	return (curr - prev) / prev
}

// Preview returns up to limit rows ordered by descending risk. Ties keep the
// input order. The input slice is not modified.
func Preview(rows []domain.KPIRow, limit int) []domain.KPIRow {
	if limit <= 0 || limit > domain.PreviewLimit {
		limit = domain.PreviewLimit
	}
	out := make([]domain.KPIRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Risk > out[j].Risk
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FilterRegion keeps records for region, compared case-insensitively. An
// empty region keeps everything.
func FilterRegion(records []domain.ActivityRecord, region string) []domain.ActivityRecord {
	if region == "" {
		return records
	}
	out := make([]domain.ActivityRecord, 0, len(records))
	for _, r := range records {
		if strings.EqualFold(r.Region, region) {
			out = append(out, r)
		}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
