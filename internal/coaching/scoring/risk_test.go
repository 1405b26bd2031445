package scoring

import (
	"math"
	"testing"

	"dealer_coach_backend/internal/coaching/domain"
)

func TestUnderperformingAgentScoresHigherRisk(t *testing.T) {
	rows := Apply([]domain.KPIRow{
		{AgentID: "A", Leads: 20, Deals: 2, Conversion: 0.10, TrendRevenue: -0.3},
		{AgentID: "B", Leads: 20, Deals: 10, Conversion: 0.50, TrendRevenue: 0.2},
	})
	if rows[0].Risk <= rows[1].Risk {
		t.Fatalf("expected A risk > B risk, got %v <= %v", rows[0].Risk, rows[1].Risk)
	}
	if rows[0].Risk != 1.0 {
		t.Fatalf("worst row must score 1.0, got %v", rows[0].Risk)
	}
	if rows[1].Risk != 0 {
		t.Fatalf("B has no raw risk, got %v", rows[1].Risk)
	}
}

func TestRiskBoundsAndMaximum(t *testing.T) {
	rows := Apply([]domain.KPIRow{
		{AgentID: "A", Conversion: 0.05, TrendRevenue: -0.9},
		{AgentID: "B", Conversion: 0.2, TrendRevenue: 1.0},
		{AgentID: "C", Conversion: 0.0, TrendRevenue: 0},
		{AgentID: "D", Conversion: 0.4, TrendRevenue: -0.1},
	})
	sawOne := false
	for _, r := range rows {
		if r.Risk < 0 || r.Risk > 1 {
			t.Fatalf("risk out of range: %+v", r)
		}
		if r.Risk == 1.0 {
			sawOne = true
		}
	}
	if !sawOne {
		t.Fatal("expected at least one row with risk 1.0")
	}
}

func TestAllZeroRawScoresGiveZeroRisk(t *testing.T) {
	rows := Apply([]domain.KPIRow{
		{AgentID: "A", Conversion: 0.3, TrendRevenue: 0.1},
		{AgentID: "B", Conversion: 0.3, TrendRevenue: 0},
	})
	for _, r := range rows {
		if r.Risk != 0 {
			t.Fatalf("expected zero risk, got %+v", r)
		}
	}
}

func TestBenchmarkFloorAndNaNSafety(t *testing.T) {
	rows := []domain.KPIRow{
		{AgentID: "A", Conversion: 0.01},
		{AgentID: "B", Conversion: math.NaN(), TrendRevenue: math.Inf(-1)},
	}
	if b := Benchmark(rows); b != 0.05 {
		t.Fatalf("expected floored benchmark 0.05, got %v", b)
	}
	Apply(rows)
	for _, r := range rows {
		if math.IsNaN(r.Risk) || r.Risk < 0 || r.Risk > 1 {
			t.Fatalf("risk must be finite and bounded: %+v", r)
		}
	}
}

func TestApplyEmpty(t *testing.T) {
	if got := Apply(nil); len(got) != 0 {
		t.Fatalf("expected no rows, got %d", len(got))
	}
}
