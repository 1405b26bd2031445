package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(func() time.Time { return fixedNow })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeRecognisesDateColumnsCaseInsensitively(t *testing.T) {
	n := newTestNormalizer()
	recs, rep, err := n.Normalize(Batch{Source: SourceActivity, Rows: []map[string]any{
		{"Dealer_ID": "D1", "ORDER_DATE": "2026-03-01", "Leads": 10, "deals": 2},
	}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, "D1", recs[0].AgentID)
	assert.Equal(t, day(2026, 3, 1), recs[0].Date)
	assert.Equal(t, 10.0, recs[0].Leads)
	assert.Equal(t, 2.0, recs[0].Deals)
}

func TestNormalizeWithoutDateColumnIsConfigurationError(t *testing.T) {
	n := newTestNormalizer()
	_, _, err := n.Normalize(Batch{Source: SourceOrders, Rows: []map[string]any{
		{"dealer_id": "D1", "amount": 100},
		{"dealer_id": "D2"},
	}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestNormalizeEmptyBatchIsNotAnError(t *testing.T) {
	recs, _, err := newTestNormalizer().Normalize(Batch{Source: SourceOrders})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNormalizeDateFallbackOrder(t *testing.T) {
	n := newTestNormalizer()
	recs, _, err := n.Normalize(Batch{Source: SourceOrders, Rows: []map[string]any{
		{"dealer_id": "A", "date": "", "order_date": "2026-02-01", "created_at": "2026-01-01"},
		{"dealer_id": "B", "created_at": "2026-01-05T10:00:00Z"},
		{"dealer_id": "C", "date": nil},
		{"dealer_id": "D", "timestamp": int64(1767225600)},
		{"dealer_id": "E", "Data": "02.03.2026"},
	}})
	require.NoError(t, err)
	require.Len(t, recs, 5)

	assert.Equal(t, day(2026, 2, 1), recs[0].Date)
	assert.Equal(t, day(2026, 1, 5), recs[1].Date)
	assert.Equal(t, day(2026, 3, 15), recs[2].Date, "missing date falls back to today")
	assert.Equal(t, day(2026, 1, 1), recs[3].Date)
	assert.Equal(t, day(2026, 3, 2), recs[4].Date)
}

func TestNormalizeSkipsUnparseableDates(t *testing.T) {
	recs, rep, err := newTestNormalizer().Normalize(Batch{Source: SourceActivity, Rows: []map[string]any{
		{"agent_id": "A", "date": "yesterday-ish"},
		{"agent_id": "B", "date": "2026-03-10"},
	}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B", recs[0].AgentID)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, 0, rep.Skipped[0].Index)
}

func TestNormalizeLineItemDefaults(t *testing.T) {
	recs, _, err := newTestNormalizer().Normalize(Batch{Source: SourceServiceSales, Rows: []map[string]any{
		{"dealership_id": 42, "order_date": "2026-03-03", "unit_price": "50.5", "qty": 2},
		{"order_date": "2026-03-03", "amount": json.Number("120")},
	}})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, "42", first.AgentID)
	assert.Equal(t, domain.Unspecified, first.Region)
	assert.Equal(t, domain.Unspecified, first.Tier)
	assert.Equal(t, 1.0, first.Leads)
	assert.Equal(t, 1.0, first.Deals)
	assert.Equal(t, 0.0, first.Points)
	assert.Equal(t, 101.0, first.Revenue)

	assert.Equal(t, domain.UnknownAgent, recs[1].AgentID)
	assert.Equal(t, 120.0, recs[1].Revenue)
}

func TestNormalizeSnapshotDefaultsAndClamping(t *testing.T) {
	recs, _, err := newTestNormalizer().Normalize(Batch{Source: SourceActivity, Rows: []map[string]any{
		{"dealer_id": "D9", "date": "2026-03-01", "region": "DE", "tier": "Gold", "revenue": -10, "points": "bad"},
	}})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, 0.0, r.Leads)
	assert.Equal(t, 0.0, r.Deals)
	assert.Equal(t, 0.0, r.Revenue, "negative revenue clamps to zero")
	assert.Equal(t, 0.0, r.Points, "unparseable numbers use the default")
	assert.Equal(t, "DE", r.Region)
	assert.Equal(t, "Gold", r.Tier)
}

func TestNormalizeAllStopsOnConfigurationError(t *testing.T) {
	_, _, err := newTestNormalizer().NormalizeAll(
		Batch{Source: SourceActivity, Rows: []map[string]any{{"agent_id": "A", "date": "2026-03-01"}}},
		Batch{Source: SourceCarSales, Rows: []map[string]any{{"agent_id": "A"}}},
	)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestFoldKeysPrefersLowerCaseKey(t *testing.T) {
	folded := foldKeys(map[string]any{"Date": "x", "date": "y"})
	assert.Equal(t, "y", folded["date"])
}
