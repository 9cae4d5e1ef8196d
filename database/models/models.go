// Package models defines the persisted data models for the pattern ledger.
//
// The ledger stores five relations plus the schema-version table:
//   - trade_patterns: one aggregate row per pattern key tuple, owned
//     exclusively by the pattern aggregator
//   - pattern_trade_history: the append-only trade outcome ledger
//   - pattern_correlations: canonically-ordered pairwise pattern statistics
//   - pattern_regime_transitions: append-only regime boundary records
//   - pattern_learning_log: append-only record of learning events
//
// Models live in their own package to avoid circular imports between the
// database root package and the per-relation repositories.
package models

import "time"

// TradeSample is one entry of a pattern's rolling window, persisted as JSON
// on the pattern row. The entry date keeps the FIFO ordering stable when
// trades arrive out of order.
type TradeSample struct {
	PnlPercent float64   `json:"pnl_percent"`
	EntryDate  time.Time `json:"entry_date"`
}

// TradePattern is the aggregate performance row for one pattern key tuple.
//
// Invariants maintained by the aggregator:
//   - TotalTrades = WinningTrades + LosingTrades + ZeroPnlTrades
//   - WinRate = WinningTrades / TotalTrades (0 while TotalTrades == 0)
//   - RecentTrades holds at most the window size of most recent samples,
//     ordered by entry date ascending
//
// Rows are created on first trade for a key tuple and never deleted, only
// deactivated.
type TradePattern struct {
	PatternID      string `gorm:"primaryKey;size:120" json:"pattern_id"`
	StrategyType   string `gorm:"type:text;not null;index:idx_patterns_regime_strategy,priority:2" json:"strategy_type"`
	MarketRegime   string `gorm:"type:text;not null;index:idx_patterns_regime_strategy,priority:1" json:"market_regime"`
	VolumeProfile  string `gorm:"type:text;not null" json:"volume_profile"`
	TechnicalSetup string `gorm:"type:text;not null" json:"technical_setup"`

	// Cumulative counters
	TotalTrades   int64 `gorm:"not null;default:0" json:"total_trades"`
	WinningTrades int64 `gorm:"not null;default:0" json:"winning_trades"`
	LosingTrades  int64 `gorm:"not null;default:0" json:"losing_trades"`
	ZeroPnlTrades int64 `gorm:"not null;default:0" json:"zero_pnl_trades"`

	// Derived ratios
	WinRate        float64 `gorm:"type:decimal(10,6);not null;default:0" json:"win_rate"`
	AvgWinPercent  float64 `gorm:"type:decimal(10,4);not null;default:0" json:"avg_win_percent"`
	AvgLossPercent float64 `gorm:"type:decimal(10,4);not null;default:0" json:"avg_loss_percent"` // negative
	Expectancy     float64 `gorm:"type:decimal(10,4);not null;default:0;index:idx_patterns_expectancy,sort:desc" json:"expectancy"`
	ProfitFactor   float64 `gorm:"type:decimal(12,4);not null;default:0" json:"profit_factor"`

	// Running sums backing ProfitFactor and the average recomputation
	GrossGainPercent float64 `gorm:"type:decimal(14,4);not null;default:0" json:"gross_gain_percent"`
	GrossLossPercent float64 `gorm:"type:decimal(14,4);not null;default:0" json:"gross_loss_percent"` // absolute value

	// Rolling window of the most recent trade outcomes
	RecentTrades    []TradeSample `gorm:"serializer:json;type:jsonb" json:"recent_trades"`
	RecentWinRate   float64       `gorm:"type:decimal(10,6);not null;default:0" json:"recent_win_rate"`
	RecentAvgReturn float64       `gorm:"type:decimal(10,4);not null;default:0" json:"recent_avg_return"`
	MomentumScore   float64       `gorm:"type:decimal(10,6);not null;default:0" json:"momentum_score"`

	// Risk metrics over the rolling window
	SharpeRatio        float64 `gorm:"type:decimal(10,4);not null;default:0" json:"sharpe_ratio"`
	MaxDrawdownPercent float64 `gorm:"type:decimal(10,4);not null;default:0" json:"max_drawdown_percent"`

	ConfidenceLevel string `gorm:"type:text;not null;default:'low'" json:"confidence_level"`
	// Total trade count at the moment of the last downward reclassification.
	// A pattern cannot reach high confidence until 20 trades past this point.
	DowngradeAtTrade int64 `gorm:"not null;default:0" json:"downgrade_at_trade"`

	FirstSeenDate  time.Time  `gorm:"not null" json:"first_seen_date"`
	LastTradedDate *time.Time `gorm:"index" json:"last_traded_date,omitempty"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastUpdated    time.Time  `gorm:"not null;autoUpdateTime" json:"last_updated"`
}

// TableName specifies the table name for TradePattern
func (TradePattern) TableName() string {
	return "trade_patterns"
}

// Key reconstructs the pattern key components as stored.
func (p *TradePattern) Key() (strategy, regime, volume, setup string) {
	return p.StrategyType, p.MarketRegime, p.VolumeProfile, p.TechnicalSetup
}

// PatternTrade is one row of the append-only trade ledger. A row is created
// when a position opens with the entry context populated; the exit fields are
// filled exactly once when the position closes. After that the row is
// immutable: corrections are modeled as a compensating reversal row, never as
// an in-place update.
type PatternTrade struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PatternID string `gorm:"type:text;index:idx_trade_history_pattern,priority:1;not null" json:"pattern_id"`
	BatchID   string `gorm:"type:text;index" json:"batch_id"`
	Symbol    string `gorm:"size:12;uniqueIndex:idx_trade_symbol_entry,priority:1;not null" json:"symbol"`

	// Entry context
	EntryDate        time.Time `gorm:"uniqueIndex:idx_trade_symbol_entry,priority:2;index:idx_trade_history_pattern,priority:2;not null" json:"entry_date"`
	EntryPrice       float64   `gorm:"type:decimal(15,4);not null" json:"entry_price"`
	EntryRSI         *float64  `gorm:"type:decimal(10,4)" json:"entry_rsi,omitempty"`
	EntryVolumeRatio *float64  `gorm:"type:decimal(10,4)" json:"entry_volume_ratio,omitempty"`
	EntryATR         *float64  `gorm:"type:decimal(10,4)" json:"entry_atr,omitempty"`
	EntryVIX         *float64  `gorm:"type:decimal(10,4)" json:"entry_vix,omitempty"`
	EntryFearGreed   *int      `json:"entry_fear_greed,omitempty"`

	// Exit context, nil while the position is open
	ExitDate   *time.Time `gorm:"index" json:"exit_date,omitempty"`
	ExitPrice  *float64   `gorm:"type:decimal(15,4)" json:"exit_price,omitempty"`
	ExitReason *string    `gorm:"type:text" json:"exit_reason,omitempty"` // target, stop_loss, time_limit, regime_change

	// Derived performance
	HoldingDays        *int     `json:"holding_days,omitempty"`
	PnlPercent         *float64 `gorm:"type:decimal(10,4)" json:"pnl_percent,omitempty"`
	MaxGainPercent     *float64 `gorm:"type:decimal(10,4)" json:"max_gain_percent,omitempty"`
	MaxDrawdownPercent *float64 `gorm:"type:decimal(10,4)" json:"max_drawdown_percent,omitempty"`

	// Decision provenance from the upstream pipeline
	Decision        string  `gorm:"type:text;not null;default:'BUY'" json:"decision"`
	ConvictionScore float64 `gorm:"type:decimal(10,4);not null;default:0" json:"conviction_score"`
	PositionSizePct float64 `gorm:"type:decimal(10,4);not null;default:0" json:"position_size_pct"`
	// Set by the portfolio-selection process; read-only input to this core.
	Selected bool `gorm:"not null;default:true" json:"selected"`

	// Reversal bookkeeping: a compensating record points at the trade it
	// reverses instead of mutating it.
	IsReversal      bool   `gorm:"not null;default:false" json:"is_reversal"`
	ReversedTradeID *int64 `gorm:"index" json:"reversed_trade_id,omitempty"`

	// Set once the close has been folded into the pattern aggregates. A
	// closed row with this still nil is pending aggregation and gets picked
	// up by the reconciler.
	AggregatedAt *time.Time `json:"aggregated_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for PatternTrade
func (PatternTrade) TableName() string {
	return "pattern_trade_history"
}

// Closed reports whether the trade has exit data recorded.
func (t *PatternTrade) Closed() bool {
	return t.ExitDate != nil && t.PnlPercent != nil
}

// TradeExit carries the exit context applied to an open ledger row.
type TradeExit struct {
	ExitDate           time.Time `json:"exit_date"`
	ExitPrice          float64   `json:"exit_price"`
	ExitReason         string    `json:"exit_reason"`
	PnlPercent         float64   `json:"pnl_percent"`
	MaxGainPercent     float64   `json:"max_gain_percent"`
	MaxDrawdownPercent float64   `json:"max_drawdown_percent"`
}

// PatternCorrelation is the pairwise co-occurrence row for two patterns.
// PatternA < PatternB lexicographically; the canonical ordering is enforced
// at the repository boundary so (A,B) and (B,A) are one row.
//
// CorrelationCoefficient stays nil until the minimum co-trade sample is
// reached, so callers can distinguish "zero correlation" from "not yet
// computable".
type PatternCorrelation struct {
	ID                     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PatternA               string    `gorm:"type:text;uniqueIndex:idx_correlation_pair,priority:1;not null" json:"pattern_a"`
	PatternB               string    `gorm:"type:text;uniqueIndex:idx_correlation_pair,priority:2;not null" json:"pattern_b"`
	CorrelationCoefficient *float64  `gorm:"type:decimal(10,6)" json:"correlation_coefficient,omitempty"`
	TradesTogether         int64     `gorm:"not null;default:0" json:"trades_together"`
	WinRateTogether        float64   `gorm:"type:decimal(10,6);not null;default:0" json:"win_rate_together"`
	RelationshipType       *string   `gorm:"type:text" json:"relationship_type,omitempty"`
	LastCalculated         time.Time `gorm:"not null" json:"last_calculated"`
}

// TableName specifies the table name for PatternCorrelation
func (PatternCorrelation) TableName() string {
	return "pattern_correlations"
}

// RegimeTransition records one market regime boundary and the pattern
// population change around it. Append-only, ordered by transition date.
type RegimeTransition struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransitionDate  time.Time `gorm:"index;not null" json:"transition_date"`
	FromRegime      string    `gorm:"type:text;not null" json:"from_regime"`
	ToRegime        string    `gorm:"type:text;not null" json:"to_regime"`
	PatternsBroken  []string  `gorm:"serializer:json;type:jsonb" json:"patterns_broken"`
	PatternsEmerged []string  `gorm:"serializer:json;type:jsonb" json:"patterns_emerged"`
	// Average expectancy of well-performing patterns on each side
	AvgExpectancyBefore float64   `gorm:"type:decimal(10,4);not null;default:0" json:"avg_expectancy_before"`
	AvgExpectancyAfter  float64   `gorm:"type:decimal(10,4);not null;default:0" json:"avg_expectancy_after"`
	PatternsAffected    int       `gorm:"not null;default:0" json:"patterns_affected"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for RegimeTransition
func (RegimeTransition) TableName() string {
	return "pattern_regime_transitions"
}

// LearningEvent is one row of the pattern learning log: a lesson extracted
// from the ledger (significant momentum shift, regime break, ...) for
// downstream reporting. Never mutated after insert.
type LearningEvent struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LearningDate   time.Time `gorm:"index;not null" json:"learning_date"`
	LessonType     string    `gorm:"type:text;not null" json:"lesson_type"`
	PatternIDs     []string  `gorm:"serializer:json;type:jsonb" json:"pattern_ids"`
	Situation      string    `gorm:"type:text" json:"situation"`
	Recommendation string    `gorm:"type:text" json:"recommendation"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for LearningEvent
func (LearningEvent) TableName() string {
	return "pattern_learning_log"
}

// PatternPerformance is a read-only row of the v_pattern_performance view.
// Trend compares the recent win rate against the all-time win rate with a
// ±10% band.
type PatternPerformance struct {
	PatternID       string     `json:"pattern_id"`
	StrategyType    string     `json:"strategy_type"`
	MarketRegime    string     `json:"market_regime"`
	VolumeProfile   string     `json:"volume_profile"`
	TechnicalSetup  string     `json:"technical_setup"`
	TotalTrades     int64      `json:"total_trades"`
	WinRate         float64    `json:"win_rate"`
	RecentWinRate   float64    `json:"recent_win_rate"`
	Expectancy      float64    `json:"expectancy"`
	ProfitFactor    float64    `json:"profit_factor"`
	MomentumScore   float64    `json:"momentum_score"`
	ConfidenceLevel string     `json:"confidence_level"`
	Trend           string     `json:"trend"` // improving, declining, stable
	LastTradedDate  *time.Time `json:"last_traded_date,omitempty"`
}

// TableName maps PatternPerformance onto the monitoring view
func (PatternPerformance) TableName() string {
	return "v_pattern_performance"
}

// RegimePatternStats is a read-only row of the v_regime_pattern_stats view:
// pattern statistics grouped by regime and strategy type.
type RegimePatternStats struct {
	MarketRegime   string     `json:"market_regime"`
	StrategyType   string     `json:"strategy_type"`
	PatternCount   int64      `json:"pattern_count"`
	TotalTrades    int64      `json:"total_trades"`
	AvgWinRate     float64    `json:"avg_win_rate"`
	AvgExpectancy  float64    `json:"avg_expectancy"`
	LastTradedDate *time.Time `json:"last_traded_date,omitempty"`
}

// TableName maps RegimePatternStats onto the monitoring view
func (RegimePatternStats) TableName() string {
	return "v_regime_pattern_stats"
}

// SchemaMigration is one row of the append-only migration ledger.
type SchemaMigration struct {
	Version   int64     `gorm:"primaryKey" json:"version"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	AppliedAt time.Time `gorm:"not null" json:"applied_at"`
}

// TableName specifies the table name for SchemaMigration
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
