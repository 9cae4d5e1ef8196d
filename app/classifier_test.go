package app

import (
	"testing"

	"pattern-ledger/database/models"
	"pattern-ledger/database/types"
)

func testClassifier() *Classifier {
	return NewClassifier(20, 0.25, 20, 50, 20)
}

func TestClassifyEntry(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name  string
		entry EntryContext
		want  types.PatternKey
	}{
		{
			name: "oversold mean reversion in fear",
			entry: EntryContext{
				RSI:          25,
				VolumeRatio:  0.5,
				PriceVsSMA20: 0.95,
				FearGreed:    30,
			},
			want: types.PatternKey{
				Strategy: types.StrategyMeanReversion,
				Regime:   types.RegimeFear,
				Volume:   types.VolumeLow,
				Setup:    types.SetupOversold,
			},
		},
		{
			name: "overbought momentum on heavy volume in greed",
			entry: EntryContext{
				RSI:          75,
				VolumeRatio:  2.0,
				PriceVsSMA20: 1.05,
				FearGreed:    70,
			},
			want: types.PatternKey{
				Strategy: types.StrategyMomentum,
				Regime:   types.RegimeGreed,
				Volume:   types.VolumeHigh,
				Setup:    types.SetupOverbought,
			},
		},
		{
			name: "breakout crossing the average on explosive volume",
			entry: EntryContext{
				RSI:          55,
				VolumeRatio:  3.5,
				PriceVsSMA20: 1.01,
				FearGreed:    80,
			},
			want: types.PatternKey{
				Strategy: types.StrategyBreakout,
				Regime:   types.RegimeExtremeGreed,
				Volume:   types.VolumeExplosive,
				Setup:    types.SetupNeutral,
			},
		},
		{
			name: "bounce recovering from oversold",
			entry: EntryContext{
				RSI:          42,
				RSIChange:    8,
				VolumeRatio:  1.0,
				PriceVsSMA20: 1.0,
				FearGreed:    20,
			},
			want: types.PatternKey{
				Strategy: types.StrategyBounce,
				Regime:   types.RegimeExtremeFear,
				Volume:   types.VolumeNormal,
				Setup:    types.SetupNeutral,
			},
		},
		{
			name: "explicit regime label wins over fear/greed",
			entry: EntryContext{
				RSI:          25,
				VolumeRatio:  0.5,
				PriceVsSMA20: 0.95,
				FearGreed:    80,
				RegimeLabel:  "extreme_fear",
			},
			want: types.PatternKey{
				Strategy: types.StrategyMeanReversion,
				Regime:   types.RegimeExtremeFear,
				Volume:   types.VolumeLow,
				Setup:    types.SetupOversold,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyEntry(tt.entry)
			if got != tt.want {
				t.Errorf("ClassifyEntry() = %+v, want %+v", got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("derived key invalid: %v", err)
			}
		})
	}
}

func TestClassifyConfidence(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name    string
		pattern models.TradePattern
		want    types.ConfidenceLevel
	}{
		{
			name:    "below medium threshold",
			pattern: models.TradePattern{TotalTrades: 19, WinRate: 0.6, RecentWinRate: 0.6},
			want:    types.ConfidenceLow,
		},
		{
			name:    "at medium threshold and stable",
			pattern: models.TradePattern{TotalTrades: 20, WinRate: 0.6, RecentWinRate: 0.6},
			want:    types.ConfidenceMedium,
		},
		{
			name:    "medium-tier sample never skips to high",
			pattern: models.TradePattern{TotalTrades: 49, WinRate: 0.6, RecentWinRate: 0.6},
			want:    types.ConfidenceMedium,
		},
		{
			name:    "unstable pattern falls back to low",
			pattern: models.TradePattern{TotalTrades: 30, WinRate: 0.7, RecentWinRate: 0.3},
			want:    types.ConfidenceLow,
		},
		{
			name:    "high at the sample threshold",
			pattern: models.TradePattern{TotalTrades: 50, WinRate: 0.6, RecentWinRate: 0.6},
			want:    types.ConfidenceHigh,
		},
		{
			name:    "established pattern demoted when the recent window collapses",
			pattern: models.TradePattern{TotalTrades: 60, WinRate: 0.7, RecentWinRate: 0.3},
			want:    types.ConfidenceLow,
		},
		{
			name: "recent downgrade holds high back",
			pattern: models.TradePattern{
				TotalTrades:      50,
				WinRate:          0.6,
				RecentWinRate:    0.6,
				DowngradeAtTrade: 40,
			},
			want: types.ConfidenceMedium,
		},
		{
			name: "downgrade aged out restores high",
			pattern: models.TradePattern{
				TotalTrades:      65,
				WinRate:          0.6,
				RecentWinRate:    0.6,
				DowngradeAtTrade: 40,
			},
			want: types.ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ClassifyConfidence(&tt.pattern); got != tt.want {
				t.Errorf("ClassifyConfidence() = %s, want %s", got, tt.want)
			}
		})
	}
}
