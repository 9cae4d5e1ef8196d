package trades

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/types"

	"gorm.io/gorm"
)

// Repository handles database operations for the append-only trade ledger.
// Rows are inserted when a position opens, closed exactly once, and never
// updated after that; corrections are modeled as reversal rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trade ledger repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordEntry appends a new trade to the ledger. The unique index on
// (symbol, entry_date) resolves concurrent duplicate appends atomically:
// the first writer wins, later writers get a DuplicateKeyError.
func (r *Repository) RecordEntry(ctx context.Context, trade *models.PatternTrade) error {
	if trade.Symbol == "" {
		return database.NewValidationError("symbol", "must not be empty")
	}
	if trade.EntryDate.IsZero() {
		return database.NewValidationError("entry_date", "must be set")
	}
	if trade.ExitReason != nil {
		if _, err := types.ParseExitReason(*trade.ExitReason); err != nil {
			return database.NewValidationErrorWithValue("exit_reason", "not a known exit reason", *trade.ExitReason)
		}
	}

	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		if isUniqueViolation(err) {
			return &database.DuplicateKeyError{Symbol: trade.Symbol, EntryDate: trade.EntryDate}
		}
		return database.WrapDBError("RecordEntry", err)
	}
	return nil
}

// CloseTrade fills the exit context of an open ledger row exactly once.
// Closing a trade that is already closed fails with DuplicateKeyError so
// a retried exit report cannot double-count into the aggregates.
func (r *Repository) CloseTrade(ctx context.Context, symbol string, entryDate time.Time, exit models.TradeExit) (*models.PatternTrade, error) {
	if _, err := types.ParseExitReason(exit.ExitReason); err != nil {
		return nil, database.NewValidationErrorWithValue("exit_reason", "not a known exit reason", exit.ExitReason)
	}

	holdingDays := int(exit.ExitDate.Sub(entryDate).Hours() / 24)

	res := r.db.WithContext(ctx).Model(&models.PatternTrade{}).
		Where("symbol = ? AND entry_date = ? AND exit_date IS NULL", symbol, entryDate).
		Updates(map[string]interface{}{
			"exit_date":            exit.ExitDate,
			"exit_price":           exit.ExitPrice,
			"exit_reason":          exit.ExitReason,
			"holding_days":         holdingDays,
			"pnl_percent":          exit.PnlPercent,
			"max_gain_percent":     exit.MaxGainPercent,
			"max_drawdown_percent": exit.MaxDrawdownPercent,
		})
	if res.Error != nil {
		return nil, database.WrapDBError("CloseTrade", res.Error)
	}

	if res.RowsAffected == 0 {
		// Either the trade is unknown or it was already closed.
		var existing models.PatternTrade
		err := r.db.WithContext(ctx).
			Where("symbol = ? AND entry_date = ?", symbol, entryDate).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.NewNotFoundErrorWithID("trade", fmt.Sprintf("%s@%s", symbol, entryDate.Format("2006-01-02")))
		}
		if err != nil {
			return nil, database.WrapDBError("CloseTrade", err)
		}
		return nil, &database.DuplicateKeyError{Symbol: symbol, EntryDate: entryDate}
	}

	var closed models.PatternTrade
	if err := r.db.WithContext(ctx).
		Where("symbol = ? AND entry_date = ?", symbol, entryDate).
		First(&closed).Error; err != nil {
		return nil, database.WrapDBError("CloseTrade", err)
	}
	return &closed, nil
}

// RecordReversal appends a compensating record for a previously closed
// trade. The original row is left untouched; the reversal carries the
// negated pnl and points back at the row it corrects.
func (r *Repository) RecordReversal(ctx context.Context, original *models.PatternTrade, reason string) (*models.PatternTrade, error) {
	if !original.Closed() {
		return nil, database.NewValidationError("trade", "cannot reverse an open trade")
	}

	now := time.Now()
	negPnl := -*original.PnlPercent
	reversal := &models.PatternTrade{
		PatternID:  original.PatternID,
		BatchID:    original.BatchID,
		Symbol:     original.Symbol,
		EntryDate:  now,
		EntryPrice: *original.ExitPrice,
		ExitDate:   &now,
		ExitPrice:  original.ExitPrice,
		ExitReason: original.ExitReason,
		PnlPercent: &negPnl,
		Decision:   reason,

		IsReversal:      true,
		ReversedTradeID: &original.ID,
	}

	if err := r.db.WithContext(ctx).Create(reversal).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &database.DuplicateKeyError{Symbol: reversal.Symbol, EntryDate: reversal.EntryDate}
		}
		return nil, database.WrapDBError("RecordReversal", err)
	}
	return reversal, nil
}

// UnaggregatedClosed returns closed trades whose outcome has not reached the
// pattern aggregates yet, oldest exit first.
func (r *Repository) UnaggregatedClosed(ctx context.Context, limit int) ([]models.PatternTrade, error) {
	var trades []models.PatternTrade
	query := r.db.WithContext(ctx).
		Where("exit_date IS NOT NULL AND aggregated_at IS NULL").
		Order("exit_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&trades).Error; err != nil {
		return nil, database.WrapDBError("UnaggregatedClosed", err)
	}
	return trades, nil
}

// QueryTrades returns the ledger rows for a pattern ordered by entry date
// ascending. An unknown pattern yields an empty slice, not an error.
func (r *Repository) QueryTrades(ctx context.Context, patternID string, from, to time.Time) ([]models.PatternTrade, error) {
	var trades []models.PatternTrade
	query := r.db.WithContext(ctx).
		Where("pattern_id = ?", patternID).
		Order("entry_date ASC")

	if !from.IsZero() {
		query = query.Where("entry_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("entry_date <= ?", to)
	}

	if err := query.Find(&trades).Error; err != nil {
		return nil, database.WrapDBError("QueryTrades", err)
	}
	return trades, nil
}

// GetBySymbolEntry looks up one ledger row by its natural key.
func (r *Repository) GetBySymbolEntry(ctx context.Context, symbol string, entryDate time.Time) (*models.PatternTrade, error) {
	var trade models.PatternTrade
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND entry_date = ?", symbol, entryDate).
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetBySymbolEntry", err)
	}
	return &trade, nil
}

// ClosedTrades returns closed, non-reversal trades for a pattern ordered by
// entry date ascending, capped at limit when limit > 0.
func (r *Repository) ClosedTrades(ctx context.Context, patternID string, limit int) ([]models.PatternTrade, error) {
	var trades []models.PatternTrade
	query := r.db.WithContext(ctx).
		Where("pattern_id = ? AND exit_date IS NOT NULL AND is_reversal = FALSE", patternID).
		Order("entry_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&trades).Error; err != nil {
		return nil, database.WrapDBError("ClosedTrades", err)
	}
	return trades, nil
}

// ActivePatternIDs returns the distinct pattern ids with closed trades since
// the given time. Used by the correlation loop to bound the pair scan.
func (r *Repository) ActivePatternIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.PatternTrade{}).
		Distinct("pattern_id").
		Where("exit_date IS NOT NULL AND exit_date >= ? AND is_reversal = FALSE", since).
		Order("pattern_id ASC").
		Pluck("pattern_id", &ids).Error
	if err != nil {
		return nil, database.WrapDBError("ActivePatternIDs", err)
	}
	return ids, nil
}

// OpenTrades lists currently open positions, newest first.
func (r *Repository) OpenTrades(ctx context.Context, limit int) ([]models.PatternTrade, error) {
	var trades []models.PatternTrade
	query := r.db.WithContext(ctx).
		Where("exit_date IS NULL").
		Order("entry_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&trades).Error; err != nil {
		return nil, database.WrapDBError("OpenTrades", err)
	}
	return trades, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation. The gorm postgres driver surfaces these as pgx errors, so the
// message text is the stable signal across driver versions.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint") ||
		strings.Contains(err.Error(), "SQLSTATE 23505")
}
