package app

import (
	"math"
	"reflect"
	"testing"

	"pattern-ledger/database/models"
)

func TestWellPerforming(t *testing.T) {
	all := []models.TradePattern{
		{PatternID: "p1", Expectancy: 1.2, ConfidenceLevel: "medium"},
		{PatternID: "p2", Expectancy: 0.4, ConfidenceLevel: "high"},
		{PatternID: "p3", Expectancy: -0.5, ConfidenceLevel: "high"},
		{PatternID: "p4", Expectancy: 2.0, ConfidenceLevel: "low"},
	}

	set := wellPerforming(all)

	if !set["p1"] || !set["p2"] {
		t.Errorf("expected p1 and p2 in the well-performing set, got %v", set)
	}
	if set["p3"] {
		t.Error("p3 has negative expectancy, should be excluded")
	}
	if set["p4"] {
		t.Error("p4 is low confidence, should be excluded")
	}
}

func TestSetDiff(t *testing.T) {
	before := map[string]bool{"P1": true, "P2": true}
	after := map[string]bool{"P2": true, "P3": true}

	broken := setDiff(before, after)
	emerged := setDiff(after, before)

	if !reflect.DeepEqual(broken, []string{"P1"}) {
		t.Errorf("broken = %v, want [P1]", broken)
	}
	if !reflect.DeepEqual(emerged, []string{"P3"}) {
		t.Errorf("emerged = %v, want [P3]", emerged)
	}

	if got := setDiff(nil, after); len(got) != 0 {
		t.Errorf("empty-before diff = %v, want empty", got)
	}
}

func TestAvgExpectancy(t *testing.T) {
	all := []models.TradePattern{
		{Expectancy: 1.0},
		{Expectancy: 2.0},
		{Expectancy: -0.6},
	}

	if got := avgExpectancy(all); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("avgExpectancy = %f, want 0.8", got)
	}
	if got := avgExpectancy(nil); got != 0 {
		t.Errorf("empty avgExpectancy = %f, want 0", got)
	}
}
