package app

import (
	"math"
	"testing"
	"time"

	"pattern-ledger/database/models"
)

func closedTrade(entry, exit time.Time, pnl float64) models.PatternTrade {
	return models.PatternTrade{
		EntryDate:  entry,
		ExitDate:   &exit,
		PnlPercent: &pnl,
	}
}

func TestPearsonCorrelation(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1.0},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1.0},
		{"constant series", []float64{1, 1, 1}, []float64{2, 5, 9}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pearsonCorrelation(tt.x, tt.y)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("pearsonCorrelation() = %f, want %f", got, tt.want)
			}
		})
	}

	if got := pearsonCorrelation([]float64{1}, []float64{2}); !math.IsNaN(got) {
		t.Errorf("single sample = %f, want NaN", got)
	}
}

func TestRelationshipFor(t *testing.T) {
	tests := []struct {
		coef float64
		want string
	}{
		{0.9, "strongly_positive"},
		{0.7, "strongly_positive"},
		{0.5, "positive"},
		{0.3, "positive"},
		{0.0, "neutral"},
		{-0.29, "neutral"},
		{-0.5, "negative"},
		{-0.7, "strongly_negative"},
		{-0.95, "strongly_negative"},
	}

	for _, tt := range tests {
		if got := relationshipFor(tt.coef); got != tt.want {
			t.Errorf("relationshipFor(%f) = %s, want %s", tt.coef, got, tt.want)
		}
	}
}

func TestAlignCoTrades(t *testing.T) {
	// A holds day 0-5 and day 10-15, B holds day 3-8 and day 20-25.
	// Only the first windows overlap.
	a := []models.PatternTrade{
		closedTrade(day(0), day(5), 2.0),
		closedTrade(day(10), day(15), 1.0),
	}
	b := []models.PatternTrade{
		closedTrade(day(3), day(8), -1.0),
		closedTrade(day(20), day(25), 3.0),
	}

	pnlA, pnlB := alignCoTrades(a, b)
	if len(pnlA) != 1 || len(pnlB) != 1 {
		t.Fatalf("aligned %d/%d pairs, want 1/1", len(pnlA), len(pnlB))
	}
	if pnlA[0] != 2.0 || pnlB[0] != -1.0 {
		t.Errorf("aligned pair = (%f, %f), want (2.0, -1.0)", pnlA[0], pnlB[0])
	}
}

func TestAlignCoTradesSkipsOpenPositions(t *testing.T) {
	open := models.PatternTrade{EntryDate: day(0)}
	a := []models.PatternTrade{open, closedTrade(day(1), day(4), 1.0)}
	b := []models.PatternTrade{closedTrade(day(2), day(6), 2.0)}

	pnlA, _ := alignCoTrades(a, b)
	if len(pnlA) != 1 {
		t.Errorf("aligned %d pairs, want 1 (open position excluded)", len(pnlA))
	}
}

func TestWinRateTogether(t *testing.T) {
	pnlA := []float64{1, 2, -1, 3}
	pnlB := []float64{2, -1, -2, 4}
	// Pairs 0 and 3 are joint wins.
	if got := winRateTogether(pnlA, pnlB); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("winRateTogether = %f, want 0.5", got)
	}
	if got := winRateTogether(nil, nil); got != 0 {
		t.Errorf("empty winRateTogether = %f, want 0", got)
	}
}

func TestBuildCorrelationEntryBelowMinSample(t *testing.T) {
	pnlA := []float64{1, 2, 3}
	pnlB := []float64{2, 4, 6}

	entry := buildCorrelationEntry("p1", "p2", pnlA, pnlB, 5)

	if entry.TradesTogether != 3 {
		t.Errorf("TradesTogether = %d, want 3", entry.TradesTogether)
	}
	if entry.CorrelationCoefficient != nil {
		t.Errorf("CorrelationCoefficient = %v, want nil below min sample", *entry.CorrelationCoefficient)
	}
	if entry.RelationshipType != nil {
		t.Errorf("RelationshipType = %v, want nil below min sample", *entry.RelationshipType)
	}
}

func TestBuildCorrelationEntryAtMinSample(t *testing.T) {
	pnlA := []float64{1, 2, 3, 4, 5}
	pnlB := []float64{2, 4, 6, 8, 10}

	entry := buildCorrelationEntry("p1", "p2", pnlA, pnlB, 5)

	if entry.CorrelationCoefficient == nil {
		t.Fatal("CorrelationCoefficient is nil, want value at min sample")
	}
	if math.Abs(*entry.CorrelationCoefficient-1.0) > 1e-9 {
		t.Errorf("coefficient = %f, want 1.0", *entry.CorrelationCoefficient)
	}
	if entry.RelationshipType == nil || *entry.RelationshipType != "strongly_positive" {
		t.Errorf("RelationshipType = %v, want strongly_positive", entry.RelationshipType)
	}
}
