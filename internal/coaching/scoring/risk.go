// Package scoring turns aggregated KPIs into bounded underperformance risk
// and grades agents for the champions board.
package scoring

import (
	"math"

	"dealer_coach_backend/internal/coaching/domain"
)

const (
	// benchmarkFloor keeps the conversion benchmark away from zero when the
	// whole population converts poorly.
	benchmarkFloor = 0.05
	// maxRawFloor guards the normalisation divisor.
	maxRawFloor = 1e-9
)

// Benchmark is the mean conversion of rows, floored at 0.05.
func Benchmark(rows []domain.KPIRow) float64 {
	if len(rows) == 0 {
		return benchmarkFloor
	}
	var sum float64
	n := 0
	for _, r := range rows {
		if finite(r.Conversion) {
			sum += r.Conversion
			n++
		}
	}
	if n == 0 {
		return benchmarkFloor
	}
	return math.Max(benchmarkFloor, sum/float64(n))
}

// RawScore is the unnormalised risk of one row against benchmark.
func RawScore(row domain.KPIRow, benchmark float64) float64 {
	gap := math.Max(0, (benchmark-row.Conversion)/benchmark)
	decline := math.Max(0, -row.TrendRevenue)
	raw := gap + decline
	if !finite(raw) {
		return 0
	}
	return raw
}

// Apply sets Risk on every row in place and returns rows.
//
// Risk is relative to the batch: the worst row scores 1 and the others are
// scaled against it, so adding or removing agents changes every score. When
// every raw score is 0 all risks are 0.
func Apply(rows []domain.KPIRow) []domain.KPIRow {
	if len(rows) == 0 {
		return rows
	}
	b := Benchmark(rows)
	raws := make([]float64, len(rows))
	maxRaw := 0.0
	for i, r := range rows {
		raws[i] = RawScore(r, b)
		if raws[i] > maxRaw {
			maxRaw = raws[i]
		}
	}
	div := math.Max(maxRaw, maxRawFloor)
	for i := range rows {
		rows[i].Risk = clip01(raws[i] / div)
	}
	return rows
}

func clip01(v float64) float64 {
	if !finite(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
