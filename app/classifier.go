package app

import (
	"math"

	"pattern-ledger/database/models"
	"pattern-ledger/database/types"
)

// Classification thresholds for deriving the pattern key from entry context.
const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0

	volumeLowRatio       = 0.7
	volumeHighRatio      = 1.5
	volumeExplosiveRatio = 3.0

	fearGreedExtremeFear = 25
	fearGreedFear        = 45
	fearGreedNeutral     = 55
	fearGreedGreed       = 75
)

// EntryContext is the slice of a trade's entry data the classifier needs to
// derive the pattern key.
type EntryContext struct {
	RSI          float64
	VolumeRatio  float64
	PriceVsSMA20 float64 // price / 20-day SMA
	RSIChange    float64 // RSI delta vs previous reading
	RegimeLabel  string  // free-form label from the regime detector, may be empty
	FearGreed    int     // fallback when no label is available
}

// Classifier derives pattern keys from entry context and confidence tiers
// from aggregate statistics. Both derivations are pure functions of their
// inputs.
type Classifier struct {
	windowSize    int
	momentumClamp float64
	mediumTrades  int64
	highTrades    int64
	downgradeHold int64
}

// NewClassifier creates a classifier with the configured tier thresholds.
func NewClassifier(windowSize int, momentumClamp float64, mediumTrades, highTrades, downgradeHold int) *Classifier {
	return &Classifier{
		windowSize:    windowSize,
		momentumClamp: momentumClamp,
		mediumTrades:  int64(mediumTrades),
		highTrades:    int64(highTrades),
		downgradeHold: int64(downgradeHold),
	}
}

// ClassifyEntry maps a trade's entry context onto its pattern key tuple.
func (c *Classifier) ClassifyEntry(entry EntryContext) types.PatternKey {
	return types.PatternKey{
		Strategy: classifyStrategy(entry),
		Regime:   classifyRegime(entry),
		Volume:   classifyVolume(entry.VolumeRatio),
		Setup:    classifyTechnical(entry.RSI),
	}
}

// classifyStrategy determines the strategy family from the indicator mix.
func classifyStrategy(entry EntryContext) types.StrategyType {
	switch {
	// Oversold with price below its average
	case entry.RSI < rsiOversold && entry.PriceVsSMA20 < 0.98:
		return types.StrategyMeanReversion
	// Overbought with heavy volume
	case entry.RSI > rsiOverbought && entry.VolumeRatio > volumeHighRatio:
		return types.StrategyMomentum
	// Price crossing its average on heavy volume
	case entry.PriceVsSMA20 > 0.99 && entry.PriceVsSMA20 < 1.02 && entry.VolumeRatio > volumeHighRatio:
		return types.StrategyBreakout
	// Recovering from oversold
	case entry.RSI > 30 && entry.RSI < 50 && entry.RSIChange > 5:
		return types.StrategyBounce
	default:
		return types.StrategyMeanReversion
	}
}

// classifyRegime prefers the detector's label, falling back to the raw
// fear/greed value.
func classifyRegime(entry EntryContext) types.MarketRegimeClass {
	if entry.RegimeLabel != "" {
		if regime, err := types.ParseRegime(entry.RegimeLabel); err == nil {
			return regime
		}
	}

	fg := entry.FearGreed
	switch {
	case fg <= fearGreedExtremeFear:
		return types.RegimeExtremeFear
	case fg <= fearGreedFear:
		return types.RegimeFear
	case fg <= fearGreedNeutral:
		return types.RegimeNeutral
	case fg <= fearGreedGreed:
		return types.RegimeGreed
	default:
		return types.RegimeExtremeGreed
	}
}

func classifyVolume(volumeRatio float64) types.VolumeProfile {
	switch {
	case volumeRatio < volumeLowRatio:
		return types.VolumeLow
	case volumeRatio < volumeHighRatio:
		return types.VolumeNormal
	case volumeRatio < volumeExplosiveRatio:
		return types.VolumeHigh
	default:
		return types.VolumeExplosive
	}
}

func classifyTechnical(rsi float64) types.TechnicalSetup {
	switch {
	case rsi < rsiOversold:
		return types.SetupOversold
	case rsi > rsiOverbought:
		return types.SetupOverbought
	default:
		return types.SetupNeutral
	}
}

// ClassifyConfidence derives the confidence tier from sample size and
// win-rate stability:
//
//   - low below the medium-trade threshold, or whenever the recent win rate
//     drifts outside the momentum clamp bound of the all-time win rate; the
//     stability gate applies to every tier, so a collapsing recent window
//     demotes even a long-established pattern
//   - high at the high-trade threshold, provided the pattern has not been
//     reclassified downward within its last 20 trades
//   - medium otherwise
//
// Deterministic and side-effect free; the aggregator stores the result.
func (c *Classifier) ClassifyConfidence(p *models.TradePattern) types.ConfidenceLevel {
	if p.TotalTrades < c.mediumTrades {
		return types.ConfidenceLow
	}

	if math.Abs(p.RecentWinRate-p.WinRate) > c.momentumClamp {
		return types.ConfidenceLow
	}

	if p.TotalTrades >= c.highTrades && p.TotalTrades-p.DowngradeAtTrade >= c.downgradeHold {
		return types.ConfidenceHigh
	}

	return types.ConfidenceMedium
}
