// Package normalize turns heterogeneous sales rows into ActivityRecords.
// Every accepted source-field alias is listed here; downstream stages never
// look at raw keys again.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"
)

// Source names the table a batch of rows came from.
type Source string

const (
	SourceActivity     Source = "activity"
	SourceCarSales     Source = "car_sales"
	SourceServiceSales Source = "service_sales"
	SourceOrders       Source = "orders"
)

// lineItem reports whether one row stands for a single lead that closed.
func (s Source) lineItem() bool {
	return s != SourceActivity
}

// Batch is one source table worth of raw rows.
type Batch struct {
	Source Source           `json:"source"`
	Rows   []map[string]any `json:"rows"`
}

// DateCandidates are matched case-insensitively, in priority order.
var DateCandidates = []string{"date", "order_date", "created_at", "data", "timestamp"}

var (
	agentAliases   = []string{"agent_id", "dealer_id", "salesperson_id", "dealership_id", "employee_id"}
	regionAliases  = []string{"region"}
	tierAliases    = []string{"tier"}
	revenueAliases = []string{"revenue", "amount", "total_amount"}
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006",
	"2006/01/02",
}

// Skip describes a row that was dropped.
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarises one Normalize call.
type Report struct {
	Source   Source `json:"source"`
	Accepted int    `json:"accepted"`
	Skipped  []Skip `json:"skipped,omitempty"`
}

// Normalizer is stateless apart from its clock.
type Normalizer struct {
	Now func() time.Time
}

// New creates a normalizer. A nil clock means time.Now.
func New(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{Now: now}
}

// Normalize converts one batch. It fails with a configuration error when the
// batch has rows but none of them carries any of the DateCandidates.
func (n *Normalizer) Normalize(batch Batch) ([]domain.ActivityRecord, Report, error) {
	report := Report{Source: batch.Source}
	if len(batch.Rows) == 0 {
		return nil, report, nil
	}

	rows := make([]map[string]any, len(batch.Rows))
	hasDateColumn := false
	for i, raw := range batch.Rows {
		rows[i] = foldKeys(raw)
		if !hasDateColumn && hasAnyKey(rows[i], DateCandidates) {
			hasDateColumn = true
		}
	}
	if !hasDateColumn {
		return nil, report, apperr.Configuration(fmt.Sprintf(
			"source %q has no date column (expected one of %s)",
			batch.Source, strings.Join(DateCandidates, ", "),
		)).WithOp("normalize")
	}

	today := truncateDay(n.Now())
	out := make([]domain.ActivityRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := n.record(batch.Source, row, today)
		if err != nil {
			report.Skipped = append(report.Skipped, Skip{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, rec)
	}
	report.Accepted = len(out)
	return out, report, nil
}

// NormalizeAll converts several batches and concatenates the results. The
// first configuration error aborts the run.
func (n *Normalizer) NormalizeAll(batches ...Batch) ([]domain.ActivityRecord, []Report, error) {
	var all []domain.ActivityRecord
	reports := make([]Report, 0, len(batches))
	for _, b := range batches {
		recs, rep, err := n.Normalize(b)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, recs...)
		reports = append(reports, rep)
	}
	return all, reports, nil
}

func (n *Normalizer) record(src Source, row map[string]any, today time.Time) (domain.ActivityRecord, error) {
	date, err := resolveDate(row, today)
	if err != nil {
		return domain.ActivityRecord{}, err
	}

	unitDefault := 0.0
	if src.lineItem() {
		unitDefault = 1
	}

	rec := domain.ActivityRecord{
		AgentID: firstString(row, agentAliases, domain.UnknownAgent),
		Date:    date,
		Region:  firstString(row, regionAliases, domain.Unspecified),
		Tier:    firstString(row, tierAliases, domain.Unspecified),
		Leads:   number(row, "leads", unitDefault),
		Deals:   number(row, "deals", unitDefault),
		Points:  number(row, "points", 0),
		Revenue: revenue(row),
	}
	return rec, nil
}

func resolveDate(row map[string]any, today time.Time) (time.Time, error) {
	for _, key := range DateCandidates {
		v, ok := row[key]
		if !ok || isBlank(v) {
			continue
		}
		d, err := parseDate(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	return today, nil
}

func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return truncateDay(t), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return truncateDay(*t), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return truncateDay(parsed), nil
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return truncateDay(time.Unix(secs, 0).UTC()), nil
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	default:
		if f, ok := toFloat(v); ok {
			return truncateDay(time.Unix(int64(f), 0).UTC()), nil
		}
		return time.Time{}, fmt.Errorf("unsupported date value %T", v)
	}
}

func revenue(row map[string]any) float64 {
	for _, key := range revenueAliases {
		if v, ok := row[key]; ok && !isBlank(v) {
			if f, ok := toFloat(v); ok {
				return clamp(f)
			}
		}
	}
	if price, ok := row["unit_price"]; ok {
		if f, ok := toFloat(price); ok {
			return clamp(f * number(row, "qty", 1))
		}
	}
	return 0
}

func number(row map[string]any, key string, fallback float64) float64 {
	v, ok := row[key]
	if !ok || isBlank(v) {
		return fallback
	}
	f, ok := toFloat(v)
	if !ok {
		return fallback
	}
	return clamp(f)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func firstString(row map[string]any, keys []string, fallback string) string {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || isBlank(v) {
			continue
		}
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t)
		default:
			if f, ok := toFloat(v); ok {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return fallback
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// foldKeys lower-cases keys. When two keys fold to the same name the one
// already in lower case wins, then the lexically smallest.
func foldKeys(raw map[string]any) map[string]any {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(raw))
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if lk == k {
			out[lk] = raw[k]
		}
	}
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, exists := out[lk]; !exists {
			out[lk] = raw[k]
		}
	}
	return out
}

func hasAnyKey(row map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := row[k]; ok {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
