package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"pattern-ledger/cache"
	"pattern-ledger/config"
	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/patterns"
	"pattern-ledger/database/transitions"
	"pattern-ledger/database/types"
	"pattern-ledger/realtime"
)

// ProfitFactorNoLosses is the sentinel stored while a pattern has gains but
// no losing trades yet, standing in for an infinite profit factor.
const ProfitFactorNoLosses = 9999.0

// PatternAggregator is the sole mutator of pattern aggregate rows. It folds
// each newly closed trade outcome into the pattern's rolling and all-time
// statistics, re-derives the confidence tier, and publishes the update.
//
// Mutations are serialized per pattern_id through a keyed mutex; trades for
// distinct patterns aggregate in parallel. Every update is a single
// optimistic write, so a cancelled or conflicting operation leaves the
// stored aggregates untouched.
type PatternAggregator struct {
	patterns   *patterns.Repository
	lessons    *transitions.Repository
	classifier *Classifier
	cache      *cache.RedisClient
	broker     *realtime.Broker
	cfg        config.PatternConfig
	locks      *keyedMutex
}

// NewPatternAggregator creates a new pattern aggregator
func NewPatternAggregator(
	patternRepo *patterns.Repository,
	lessonRepo *transitions.Repository,
	classifier *Classifier,
	redis *cache.RedisClient,
	broker *realtime.Broker,
	cfg config.PatternConfig,
) *PatternAggregator {
	return &PatternAggregator{
		patterns:   patternRepo,
		lessons:    lessonRepo,
		classifier: classifier,
		cache:      redis,
		broker:     broker,
		cfg:        cfg,
		locks:      newKeyedMutex(),
	}
}

// ApplyTrade folds one closed trade outcome into its pattern's aggregates.
// The pattern row is created on first sight of the key tuple. The aggregate
// write stamps the ledger row aggregated_at in the same transaction, so an
// outcome is counted exactly once even across reconciler re-applies. Returns
// the updated pattern.
func (a *PatternAggregator) ApplyTrade(ctx context.Context, key types.PatternKey, outcome *models.PatternTrade) (*models.TradePattern, error) {
	if outcome == nil || !outcome.Closed() {
		return nil, database.NewValidationError("outcome", "trade must be closed before aggregation")
	}
	if err := key.Validate(); err != nil {
		return nil, database.NewValidationErrorWithValue("pattern_key", err.Error(), key)
	}
	patternID := key.ID()
	if outcome.PatternID != "" && outcome.PatternID != patternID {
		return nil, database.NewValidationErrorWithValue("pattern_id", "does not match derived pattern key", outcome.PatternID)
	}

	a.locks.Lock(patternID)
	defer a.locks.Unlock(patternID)

	p, err := a.patterns.GetByID(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p, err = a.patterns.EnsureExists(ctx, key, outcome.EntryDate)
		if err != nil {
			return nil, err
		}
	}

	expectedTotal := p.TotalTrades
	prevLevel := types.ConfidenceLevel(p.ConfidenceLevel)

	applyOutcome(p, *outcome.PnlPercent, outcome.EntryDate, *outcome.ExitDate, a.cfg.RollingWindowSize, a.cfg.MomentumClamp)

	newLevel := a.classifier.ClassifyConfidence(p)
	if newLevel.Rank() < prevLevel.Rank() {
		p.DowngradeAtTrade = p.TotalTrades
		// A downgrade caps the tier until the pattern re-earns it.
		newLevel = a.classifier.ClassifyConfidence(p)
	}
	p.ConfidenceLevel = string(newLevel)

	if err := a.patterns.UpdateAggregates(ctx, p, expectedTotal, outcome.ID); err != nil {
		return nil, err
	}

	a.recordMomentumLesson(ctx, p)
	a.invalidateCache(ctx, patternID)

	if a.broker != nil {
		a.broker.Broadcast("pattern_updated", p)
	}

	return p, nil
}

// applyOutcome folds one pnl observation into the pattern statistics.
// Zero-pnl trades count toward total_trades only: they are neither wins nor
// losses and are excluded from the win/loss averages.
func applyOutcome(p *models.TradePattern, pnlPercent float64, entryDate, exitDate time.Time, windowSize int, clamp float64) {
	p.TotalTrades++
	switch {
	case pnlPercent > 0:
		p.WinningTrades++
		p.GrossGainPercent += pnlPercent
	case pnlPercent < 0:
		p.LosingTrades++
		p.GrossLossPercent += -pnlPercent
	default:
		p.ZeroPnlTrades++
	}

	if p.WinningTrades > 0 {
		p.AvgWinPercent = p.GrossGainPercent / float64(p.WinningTrades)
	}
	if p.LosingTrades > 0 {
		p.AvgLossPercent = -p.GrossLossPercent / float64(p.LosingTrades)
	}

	p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
	p.Expectancy = p.WinRate*p.AvgWinPercent + (1-p.WinRate)*p.AvgLossPercent

	switch {
	case p.GrossLossPercent > 0:
		p.ProfitFactor = p.GrossGainPercent / p.GrossLossPercent
	case p.GrossGainPercent > 0:
		p.ProfitFactor = ProfitFactorNoLosses
	default:
		p.ProfitFactor = 0
	}

	// Rolling window, FIFO by entry date
	p.RecentTrades = append(p.RecentTrades, models.TradeSample{PnlPercent: pnlPercent, EntryDate: entryDate})
	sort.SliceStable(p.RecentTrades, func(i, j int) bool {
		return p.RecentTrades[i].EntryDate.Before(p.RecentTrades[j].EntryDate)
	})
	if len(p.RecentTrades) > windowSize {
		p.RecentTrades = p.RecentTrades[len(p.RecentTrades)-windowSize:]
	}

	recentWins := 0
	recentSum := 0.0
	for _, s := range p.RecentTrades {
		if s.PnlPercent > 0 {
			recentWins++
		}
		recentSum += s.PnlPercent
	}
	n := float64(len(p.RecentTrades))
	p.RecentWinRate = float64(recentWins) / n
	p.RecentAvgReturn = recentSum / n

	p.MomentumScore = clampValue(p.RecentWinRate-p.WinRate, clamp)
	p.SharpeRatio = sharpeRatio(p.RecentTrades)
	p.MaxDrawdownPercent = maxDrawdown(p.RecentTrades)

	traded := exitDate
	p.LastTradedDate = &traded
	// A fresh trade revives a pattern the pruner deactivated.
	p.IsActive = true
}

// clampValue bounds v to [-bound, +bound], keeping the sign.
func clampValue(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// sharpeRatio is the mean per-trade return over its sample standard
// deviation across the rolling window; 0 while the window has fewer than
// two samples or no variance.
func sharpeRatio(window []models.TradeSample) float64 {
	if len(window) < 2 {
		return 0
	}

	mean := 0.0
	for _, s := range window {
		mean += s.PnlPercent
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, s := range window {
		d := s.PnlPercent - mean
		variance += d * d
	}
	variance /= float64(len(window) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative pnl
// sequence over the rolling window, as a positive percentage.
func maxDrawdown(window []models.TradeSample) float64 {
	equity := 0.0
	peak := 0.0
	drawdown := 0.0
	for _, s := range window {
		equity += s.PnlPercent
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > drawdown {
			drawdown = dd
		}
	}
	return drawdown
}

// recordMomentumLesson appends a learning event when a pattern shows a
// significant momentum shift. Best effort: a logging failure never fails
// the aggregation.
func (a *PatternAggregator) recordMomentumLesson(ctx context.Context, p *models.TradePattern) {
	if a.lessons == nil || math.Abs(p.MomentumScore) < a.cfg.LessonThreshold {
		return
	}

	direction := "improving"
	if p.MomentumScore < 0 {
		direction = "declining"
	}

	event := &models.LearningEvent{
		LearningDate: time.Now(),
		LessonType:   "momentum_shift",
		PatternIDs:   []string{p.PatternID},
		Situation: fmt.Sprintf("pattern %s is %s: recent win rate %.2f vs all-time %.2f over %d trades",
			p.PatternID, direction, p.RecentWinRate, p.WinRate, p.TotalTrades),
		Recommendation: fmt.Sprintf("review position sizing for %s setups", direction),
	}
	if err := a.lessons.RecordLesson(ctx, event); err != nil {
		log.Printf("⚠️  Failed to record momentum lesson for %s: %v", p.PatternID, err)
	}
}

// invalidateCache drops the cached listings that include this pattern.
func (a *PatternAggregator) invalidateCache(ctx context.Context, patternID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, cache.PatternKey(patternID), cache.TopPatternsKey, cache.SummaryKey); err != nil {
		log.Printf("⚠️  Failed to invalidate pattern cache for %s: %v", patternID, err)
	}
}
