package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for pattern aggregate rows.
// The pattern aggregator is the only writer; everything else reads.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new pattern repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a pattern by its encoded id. An unknown pattern returns
// (nil, nil) so callers can surface an empty result instead of an error.
func (r *Repository) GetByID(ctx context.Context, patternID string) (*models.TradePattern, error) {
	var p models.TradePattern
	err := r.db.WithContext(ctx).Where("pattern_id = ?", patternID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetByID", err)
	}
	return &p, nil
}

// GetByKey fetches a pattern by its key tuple.
func (r *Repository) GetByKey(ctx context.Context, key types.PatternKey) (*models.TradePattern, error) {
	if err := key.Validate(); err != nil {
		return nil, database.NewValidationErrorWithValue("pattern_key", err.Error(), key)
	}
	return r.GetByID(ctx, key.ID())
}

// EnsureExists creates the pattern row for a key tuple if absent. The insert
// ignores conflicts so concurrent first trades for the same key race safely;
// either way the returned row reflects the stored state.
func (r *Repository) EnsureExists(ctx context.Context, key types.PatternKey, firstSeen time.Time) (*models.TradePattern, error) {
	if err := key.Validate(); err != nil {
		return nil, database.NewValidationErrorWithValue("pattern_key", err.Error(), key)
	}

	p := &models.TradePattern{
		PatternID:       key.ID(),
		StrategyType:    string(key.Strategy),
		MarketRegime:    string(key.Regime),
		VolumeProfile:   string(key.Volume),
		TechnicalSetup:  string(key.Setup),
		ConfidenceLevel: string(types.ConfidenceLow),
		FirstSeenDate:   firstSeen,
		IsActive:        true,
		RecentTrades:    []models.TradeSample{},
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return nil, database.WrapDBError("EnsureExists", err)
	}

	return r.GetByID(ctx, key.ID())
}

// UpdateAggregates persists a recomputed pattern row and, in the same
// transaction, stamps the ledger row it absorbed as aggregated. Committing
// the two together is what makes the reconciler exact: a closed trade is
// re-applied if and only if its stamp never landed. The write carries an
// optimistic check on the trade count the computation started from; a
// mismatch means another writer slipped past the per-pattern lock, which is
// a concurrency-control bug surfaced as ConflictError with no state change.
func (r *Repository) UpdateAggregates(ctx context.Context, p *models.TradePattern, expectedTotal int64, tradeID int64) error {
	// Map-based updates bypass the model's json serializer, so the rolling
	// window is marshalled here before it reaches the driver.
	recentTrades, err := json.Marshal(p.RecentTrades)
	if err != nil {
		return database.WrapDBError("UpdateAggregates", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TradePattern{}).
			Where("pattern_id = ? AND total_trades = ?", p.PatternID, expectedTotal).
			Updates(map[string]interface{}{
				"total_trades":         p.TotalTrades,
				"winning_trades":       p.WinningTrades,
				"losing_trades":        p.LosingTrades,
				"zero_pnl_trades":      p.ZeroPnlTrades,
				"win_rate":             p.WinRate,
				"avg_win_percent":      p.AvgWinPercent,
				"avg_loss_percent":     p.AvgLossPercent,
				"expectancy":           p.Expectancy,
				"profit_factor":        p.ProfitFactor,
				"gross_gain_percent":   p.GrossGainPercent,
				"gross_loss_percent":   p.GrossLossPercent,
				"recent_trades":        string(recentTrades),
				"recent_win_rate":      p.RecentWinRate,
				"recent_avg_return":    p.RecentAvgReturn,
				"momentum_score":       p.MomentumScore,
				"sharpe_ratio":         p.SharpeRatio,
				"max_drawdown_percent": p.MaxDrawdownPercent,
				"confidence_level":     p.ConfidenceLevel,
				"downgrade_at_trade":   p.DowngradeAtTrade,
				"is_active":            p.IsActive,
				"last_traded_date":     p.LastTradedDate,
				"last_updated":         time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &database.ConflictError{PatternID: p.PatternID, ExpectedTotal: expectedTotal}
		}

		if tradeID > 0 {
			stamp := tx.Model(&models.PatternTrade{}).
				Where("id = ? AND aggregated_at IS NULL", tradeID).
				Update("aggregated_at", time.Now())
			if stamp.Error != nil {
				return stamp.Error
			}
			// Another writer already absorbed this outcome; roll the
			// whole aggregate update back instead of counting it twice.
			if stamp.RowsAffected == 0 {
				return &database.ConflictError{PatternID: p.PatternID, ExpectedTotal: expectedTotal}
			}
		}
		return nil
	})
	if err != nil {
		var conflict *database.ConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return database.WrapDBError("UpdateAggregates", err)
	}
	return nil
}

// ListByExpectancy returns active patterns ordered by expectancy descending.
func (r *Repository) ListByExpectancy(ctx context.Context, limit, minTrades int) ([]models.TradePattern, error) {
	var patterns []models.TradePattern
	query := r.db.WithContext(ctx).
		Where("is_active = TRUE AND total_trades >= ?", minTrades).
		Order("expectancy DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&patterns).Error; err != nil {
		return nil, database.WrapDBError("ListByExpectancy", err)
	}
	return patterns, nil
}

// ListByRegime returns active patterns conditioned on one regime, best first.
func (r *Repository) ListByRegime(ctx context.Context, regime types.MarketRegimeClass) ([]models.TradePattern, error) {
	var patterns []models.TradePattern
	err := r.db.WithContext(ctx).
		Where("market_regime = ? AND is_active = TRUE", string(regime)).
		Order("expectancy DESC").
		Find(&patterns).Error
	if err != nil {
		return nil, database.WrapDBError("ListByRegime", err)
	}
	return patterns, nil
}

// GetBreaking returns patterns whose recent win rate has dropped below the
// threshold despite a strong all-time record, worst deterioration first.
func (r *Repository) GetBreaking(ctx context.Context, threshold float64, minTrades int) ([]models.TradePattern, error) {
	var patterns []models.TradePattern
	err := r.db.WithContext(ctx).
		Where("total_trades >= ? AND recent_win_rate < ? AND win_rate > 0.50 AND is_active = TRUE", minTrades, threshold).
		Order("recent_win_rate - win_rate ASC").
		Find(&patterns).Error
	if err != nil {
		return nil, database.WrapDBError("GetBreaking", err)
	}
	return patterns, nil
}

// GetHot returns patterns showing strong recent improvement.
func (r *Repository) GetHot(ctx context.Context, minImprovement float64) ([]models.TradePattern, error) {
	var patterns []models.TradePattern
	err := r.db.WithContext(ctx).
		Where("total_trades >= 10 AND recent_win_rate > win_rate + ? AND is_active = TRUE", minImprovement).
		Order("recent_win_rate - win_rate DESC").
		Find(&patterns).Error
	if err != nil {
		return nil, database.WrapDBError("GetHot", err)
	}
	return patterns, nil
}

// DeactivateStale flips is_active off for patterns not traded within the
// given number of days. Rows are never deleted.
func (r *Repository) DeactivateStale(ctx context.Context, daysInactive int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysInactive)
	res := r.db.WithContext(ctx).Model(&models.TradePattern{}).
		Where("last_traded_date < ? AND is_active = TRUE", cutoff).
		Update("is_active", false)
	if res.Error != nil {
		return 0, database.WrapDBError("DeactivateStale", res.Error)
	}
	return res.RowsAffected, nil
}

// PerformanceView reads the v_pattern_performance monitoring view.
func (r *Repository) PerformanceView(ctx context.Context, limit int) ([]models.PatternPerformance, error) {
	var rows []models.PatternPerformance
	query := r.db.WithContext(ctx).Order("expectancy DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("PerformanceView", err)
	}
	return rows, nil
}

// RegimeStatsView reads the v_regime_pattern_stats monitoring view.
func (r *Repository) RegimeStatsView(ctx context.Context) ([]models.RegimePatternStats, error) {
	var rows []models.RegimePatternStats
	err := r.db.WithContext(ctx).
		Order("market_regime ASC, strategy_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapDBError("RegimeStatsView", err)
	}
	return rows, nil
}
