package app

import (
	"math"
	"testing"
	"time"

	"pattern-ledger/database/models"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func day(n int) time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func applyN(p *models.TradePattern, pnls []float64) {
	for i, pnl := range pnls {
		applyOutcome(p, pnl, day(i), day(i+1), 20, 0.25)
	}
}

func TestApplyOutcomeFirstWin(t *testing.T) {
	p := &models.TradePattern{}
	applyOutcome(p, 5.0, day(0), day(1), 20, 0.25)

	if p.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", p.TotalTrades)
	}
	if p.WinningTrades != 1 {
		t.Errorf("WinningTrades = %d, want 1", p.WinningTrades)
	}
	if !almostEqual(p.WinRate, 1.0) {
		t.Errorf("WinRate = %f, want 1.0", p.WinRate)
	}
	if !almostEqual(p.Expectancy, 5.0) {
		t.Errorf("Expectancy = %f, want 5.0", p.Expectancy)
	}
	if p.LastTradedDate == nil || !p.LastTradedDate.Equal(day(1)) {
		t.Errorf("LastTradedDate = %v, want %v", p.LastTradedDate, day(1))
	}
}

func TestApplyOutcomeWinThenLoss(t *testing.T) {
	p := &models.TradePattern{}
	applyN(p, []float64{5.0, -2.0})

	if p.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", p.TotalTrades)
	}
	if !almostEqual(p.WinRate, 0.5) {
		t.Errorf("WinRate = %f, want 0.5", p.WinRate)
	}
	if !almostEqual(p.AvgWinPercent, 5.0) {
		t.Errorf("AvgWinPercent = %f, want 5.0", p.AvgWinPercent)
	}
	if !almostEqual(p.AvgLossPercent, -2.0) {
		t.Errorf("AvgLossPercent = %f, want -2.0", p.AvgLossPercent)
	}
	// 0.5*5.0 + 0.5*(-2.0)
	if !almostEqual(p.Expectancy, 1.5) {
		t.Errorf("Expectancy = %f, want 1.5", p.Expectancy)
	}
	if !almostEqual(p.ProfitFactor, 2.5) {
		t.Errorf("ProfitFactor = %f, want 2.5", p.ProfitFactor)
	}
}

func TestApplyOutcomeZeroPnl(t *testing.T) {
	p := &models.TradePattern{}
	applyN(p, []float64{5.0, 0.0})

	if p.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", p.TotalTrades)
	}
	if p.ZeroPnlTrades != 1 {
		t.Errorf("ZeroPnlTrades = %d, want 1", p.ZeroPnlTrades)
	}
	if p.WinningTrades != 1 || p.LosingTrades != 0 {
		t.Errorf("win/loss counters = %d/%d, want 1/0", p.WinningTrades, p.LosingTrades)
	}
	// Zero-pnl trades stay in the denominator but out of the averages.
	if !almostEqual(p.WinRate, 0.5) {
		t.Errorf("WinRate = %f, want 0.5", p.WinRate)
	}
	if !almostEqual(p.AvgWinPercent, 5.0) {
		t.Errorf("AvgWinPercent = %f, want 5.0", p.AvgWinPercent)
	}
	if !almostEqual(p.AvgLossPercent, 0.0) {
		t.Errorf("AvgLossPercent = %f, want 0.0", p.AvgLossPercent)
	}
}

func TestCountersStayConsistent(t *testing.T) {
	p := &models.TradePattern{}
	pnls := []float64{1.5, -0.5, 0, 2.0, -3.0, 0, 4.2, -1.1, 0.9, 0}
	applyN(p, pnls)

	if p.TotalTrades != int64(len(pnls)) {
		t.Fatalf("TotalTrades = %d, want %d", p.TotalTrades, len(pnls))
	}
	if p.WinningTrades+p.LosingTrades+p.ZeroPnlTrades != p.TotalTrades {
		t.Errorf("counter sum %d+%d+%d != total %d",
			p.WinningTrades, p.LosingTrades, p.ZeroPnlTrades, p.TotalTrades)
	}
}

func TestApplyOutcomeReactivatesPattern(t *testing.T) {
	p := &models.TradePattern{IsActive: false}
	applyOutcome(p, 1.0, day(1), day(2), 20, 0.25)

	if !p.IsActive {
		t.Error("deactivated pattern not revived by a new trade")
	}
}

func TestRollingWindowBound(t *testing.T) {
	p := &models.TradePattern{}
	for i := 0; i < 25; i++ {
		applyOutcome(p, float64(i), day(i), day(i+1), 20, 0.25)
	}

	if len(p.RecentTrades) != 20 {
		t.Fatalf("window size = %d, want 20", len(p.RecentTrades))
	}
	// Oldest five samples dropped, FIFO by entry date.
	if !p.RecentTrades[0].EntryDate.Equal(day(5)) {
		t.Errorf("oldest sample entry date = %v, want %v", p.RecentTrades[0].EntryDate, day(5))
	}
	if !p.RecentTrades[19].EntryDate.Equal(day(24)) {
		t.Errorf("newest sample entry date = %v, want %v", p.RecentTrades[19].EntryDate, day(24))
	}
	if p.TotalTrades != 25 {
		t.Errorf("TotalTrades = %d, want 25", p.TotalTrades)
	}
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	p := &models.TradePattern{}
	applyN(p, []float64{3.0, 1.0})

	if !almostEqual(p.ProfitFactor, ProfitFactorNoLosses) {
		t.Errorf("ProfitFactor = %f, want sentinel %f", p.ProfitFactor, ProfitFactorNoLosses)
	}
}

func TestProfitFactorAllZeroTrades(t *testing.T) {
	p := &models.TradePattern{}
	applyN(p, []float64{0, 0})

	if !almostEqual(p.ProfitFactor, 0) {
		t.Errorf("ProfitFactor = %f, want 0", p.ProfitFactor)
	}
}

func TestMomentumScoreClamped(t *testing.T) {
	p := &models.TradePattern{}
	// 30 losses push the all-time win rate down, then 20 straight wins fill
	// the window: raw momentum would be 1.0 - 0.4 = 0.6.
	for i := 0; i < 30; i++ {
		applyOutcome(p, -1.0, day(i), day(i+1), 20, 0.25)
	}
	for i := 30; i < 50; i++ {
		applyOutcome(p, 1.0, day(i), day(i+1), 20, 0.25)
	}

	if !almostEqual(p.MomentumScore, 0.25) {
		t.Errorf("MomentumScore = %f, want clamp bound 0.25", p.MomentumScore)
	}
}

func TestClampValue(t *testing.T) {
	tests := []struct {
		v, bound, want float64
	}{
		{0.1, 0.25, 0.1},
		{0.6, 0.25, 0.25},
		{-0.6, 0.25, -0.25},
		{-0.2, 0.25, -0.2},
		{0, 0.25, 0},
	}

	for _, tt := range tests {
		if got := clampValue(tt.v, tt.bound); !almostEqual(got, tt.want) {
			t.Errorf("clampValue(%f, %f) = %f, want %f", tt.v, tt.bound, got, tt.want)
		}
	}
}

func TestSharpeRatio(t *testing.T) {
	if got := sharpeRatio([]models.TradeSample{{PnlPercent: 1}}); got != 0 {
		t.Errorf("single sample sharpe = %f, want 0", got)
	}
	if got := sharpeRatio([]models.TradeSample{{PnlPercent: 2}, {PnlPercent: 2}}); got != 0 {
		t.Errorf("zero-variance sharpe = %f, want 0", got)
	}

	// mean 1.0, sample std 1.0
	window := []models.TradeSample{{PnlPercent: 0}, {PnlPercent: 1}, {PnlPercent: 2}}
	if got := sharpeRatio(window); !almostEqual(got, 1.0) {
		t.Errorf("sharpe = %f, want 1.0", got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name string
		pnls []float64
		want float64
	}{
		{"monotone gains", []float64{1, 2, 3}, 0},
		{"single dip", []float64{5, -3, 2}, 3},
		{"deep trough", []float64{4, -2, -4, 1}, 6},
		{"all losses", []float64{-1, -2}, 3},
	}

	for _, tt := range tests {
		window := make([]models.TradeSample, len(tt.pnls))
		for i, pnl := range tt.pnls {
			window[i] = models.TradeSample{PnlPercent: pnl, EntryDate: day(i)}
		}
		if got := maxDrawdown(window); !almostEqual(got, tt.want) {
			t.Errorf("%s: maxDrawdown = %f, want %f", tt.name, got, tt.want)
		}
	}
}
