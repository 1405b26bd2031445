package seed

import (
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var end = time.Date(2026, 3, 31, 15, 4, 0, 0, time.UTC)

func TestGenerateShape(t *testing.T) {
	records := Generate(Options{End: end})
	require.Len(t, records, DefaultDealers*DefaultDays)

	first, last := records[0], records[len(records)-1]
	assert.Equal(t, "D100", first.AgentID)
	assert.Equal(t, "D105", last.AgentID)
	assert.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), last.Date)

	tiers := map[string]string{}
	for _, r := range records {
		assert.Equal(t, DefaultRegion, r.Region)
		assert.Contains(t, []string{"Bronze", "Silver", "Gold"}, r.Tier)
		assert.GreaterOrEqual(t, r.Leads, 1.0)
		assert.LessOrEqual(t, r.Deals, r.Leads)
		assert.GreaterOrEqual(t, r.Revenue, 0.0)
		if prev, ok := tiers[r.AgentID]; ok {
			assert.Equal(t, prev, r.Tier, "tier is fixed per dealer")
		}
		tiers[r.AgentID] = r.Tier
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(Options{End: end})
	b := Generate(Options{End: end})
	assert.Equal(t, a, b)

	c := Generate(Options{End: end, Seed: 8})
	assert.NotEqual(t, a, c)
}

func TestBatchNormalises(t *testing.T) {
	records := Generate(Options{End: end, Dealers: 2, Days: 3})
	batch := Batch(records)
	assert.Equal(t, normalize.SourceActivity, batch.Source)
	require.Len(t, batch.Rows, 6)
	assert.Equal(t, "D100", batch.Rows[0]["dealer_id"])
}
