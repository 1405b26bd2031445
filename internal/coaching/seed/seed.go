// Package seed generates synthetic dealer activity for demos and local
// development.
package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/normalize"
)

const (
	DefaultSeed    = 7
	DefaultDealers = 6
	DefaultDays    = 60
	DefaultRegion  = "DE"
)

type Options struct {
	Seed    uint64
	Dealers int
	Days    int
	Region  string
	// End is the day after the last generated date. Defaults to today (UTC).
	End time.Time
}

func (o Options) withDefaults() Options {
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Dealers <= 0 {
		o.Dealers = DefaultDealers
	}
	if o.Days <= 0 {
		o.Days = DefaultDays
	}
	if o.Region == "" {
		o.Region = DefaultRegion
	}
	if o.End.IsZero() {
		o.End = time.Now().UTC()
	}
	o.End = time.Date(o.End.Year(), o.End.Month(), o.End.Day(), 0, 0, 0, 0, time.UTC)
	return o
}

// Generate returns one record per dealer per day. Dealers are named D100,
// D101 and so on. The same options always produce the same records.
func Generate(opts Options) []domain.ActivityRecord {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	out := make([]domain.ActivityRecord, 0, opts.Dealers*opts.Days)
	for d := 0; d < opts.Dealers; d++ {
		dealer := fmt.Sprintf("D%d", 100+d)
		tier := pickTier(rng)
		base := 9000 + rng.Float64()*13000
		if tier == "Gold" {
			base *= 1.2
		}
		for i := 0; i < opts.Days; i++ {
			leads := max(1, poisson(rng, 12))
			conv := clamp(0.09+rng.NormFloat64()*0.03, 0.02, 0.25)
			deals := math.Floor(float64(leads) * conv)
			revenue := math.Max(0, base+rng.NormFloat64()*base*0.25)
			perDeal := 10.0
			if tier == "Gold" {
				perDeal = 20
			}
			out = append(out, domain.ActivityRecord{
				AgentID: dealer,
				Date:    opts.End.AddDate(0, 0, -(opts.Days - i)),
				Region:  opts.Region,
				Tier:    tier,
				Leads:   float64(leads),
				Deals:   deals,
				Revenue: math.Round(revenue*100) / 100,
				Points:  deals * perDeal,
			})
		}
	}
	return out
}

// Batch wraps records as an activity batch for the normaliser.
func Batch(records []domain.ActivityRecord) normalize.Batch {
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]any{
			"dealer_id": r.AgentID,
			"date":      r.Date,
			"region":    r.Region,
			"tier":      r.Tier,
			"leads":     r.Leads,
			"deals":     r.Deals,
			"revenue":   r.Revenue,
			"points":    r.Points,
		})
	}
	return normalize.Batch{Source: normalize.SourceActivity, Rows: rows}
}

// pickTier draws Bronze and Silver with 40% each, Gold with 20%.
func pickTier(rng *rand.Rand) string {
	switch p := rng.Float64(); {
	case p < 0.4:
		return "Bronze"
	case p < 0.8:
		return "Silver"
	default:
		return "Gold"
	}
}

// poisson uses Knuth's multiplication method, fine for small lambda.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
