package app

import (
	"context"
	"log"
	"time"

	"pattern-ledger/api"
	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/trades"
	"pattern-ledger/database/types"
)

// LedgerService is the write surface of the core: it classifies entries
// into patterns, appends to the trade ledger, and routes closed outcomes
// through the aggregator. Both the HTTP intake endpoints and the upstream
// feed client go through it.
type LedgerService struct {
	classifier *Classifier
	trades     *trades.Repository
	aggregator *PatternAggregator
}

// NewLedgerService creates a new ledger service
func NewLedgerService(classifier *Classifier, tradeRepo *trades.Repository, aggregator *PatternAggregator) *LedgerService {
	return &LedgerService{
		classifier: classifier,
		trades:     tradeRepo,
		aggregator: aggregator,
	}
}

// OpenTrade classifies the entry into its pattern and appends the open
// position to the ledger. A retried open for the same (symbol, entry date)
// fails with DuplicateKeyError and changes nothing.
func (s *LedgerService) OpenTrade(ctx context.Context, req api.OpenTradeRequest) (*models.PatternTrade, error) {
	if req.EntryPrice <= 0 {
		return nil, database.NewValidationErrorWithValue("entry_price", "must be positive", req.EntryPrice)
	}

	entry := EntryContext{
		PriceVsSMA20: req.PriceVsSMA20,
		RSIChange:    req.RSIChange,
		RegimeLabel:  req.RegimeLabel,
	}
	if req.RSI != nil {
		entry.RSI = *req.RSI
	} else {
		entry.RSI = 50 // neutral default when the pipeline omits it
	}
	if req.VolumeRatio != nil {
		entry.VolumeRatio = *req.VolumeRatio
	} else {
		entry.VolumeRatio = 1.0
	}
	if req.FearGreed != nil {
		entry.FearGreed = *req.FearGreed
	} else {
		entry.FearGreed = 50
	}

	key := s.classifier.ClassifyEntry(entry)

	decision := req.Decision
	if decision == "" {
		decision = "BUY"
	}
	selected := true
	if req.Selected != nil {
		selected = *req.Selected
	}

	trade := &models.PatternTrade{
		PatternID:        key.ID(),
		BatchID:          req.BatchID,
		Symbol:           req.Symbol,
		EntryDate:        req.EntryDate,
		EntryPrice:       req.EntryPrice,
		EntryRSI:         req.RSI,
		EntryVolumeRatio: req.VolumeRatio,
		EntryATR:         req.ATR,
		EntryVIX:         req.VIX,
		EntryFearGreed:   req.FearGreed,
		Decision:         decision,
		ConvictionScore:  req.ConvictionScore,
		PositionSizePct:  req.PositionSizePct,
		Selected:         selected,
	}

	if err := s.trades.RecordEntry(ctx, trade); err != nil {
		return nil, err
	}

	log.Printf("📈 Tracking entry %s for pattern %s", trade.Symbol, trade.PatternID)
	return trade, nil
}

// CloseTrade records the exit context for an open position and folds the
// outcome into its pattern's aggregates. The close and the aggregation are
// each atomic; a failed aggregation leaves the ledger row closed but not yet
// stamped aggregated_at, and the reconciler re-applies it.
func (s *LedgerService) CloseTrade(ctx context.Context, symbol string, entryDate time.Time, exit models.TradeExit) (*models.TradePattern, error) {
	closed, err := s.trades.CloseTrade(ctx, symbol, entryDate, exit)
	if err != nil {
		return nil, err
	}

	pattern, err := s.aggregateClosed(ctx, closed)
	if err != nil {
		return nil, err
	}

	log.Printf("📉 Pattern %s trade closed: %s %.2f%%", closed.PatternID, symbol, exit.PnlPercent)
	return pattern, nil
}

// ReverseTrade appends a compensating record for a previously closed trade
// and folds the negated outcome into the pattern, preserving the ledger's
// audit trail instead of mutating history.
func (s *LedgerService) ReverseTrade(ctx context.Context, symbol string, entryDate time.Time, reason string) (*models.TradePattern, error) {
	original, err := s.trades.GetBySymbolEntry(ctx, symbol, entryDate)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, database.NewNotFoundErrorWithID("trade", symbol)
	}

	reversal, err := s.trades.RecordReversal(ctx, original, reason)
	if err != nil {
		return nil, err
	}

	return s.aggregateClosed(ctx, reversal)
}

// aggregateClosed folds one closed ledger row into its pattern. The
// aggregate write stamps the row's aggregated_at in the same transaction,
// so a failure here leaves the row pending for the reconciler and a success
// can never be applied twice.
func (s *LedgerService) aggregateClosed(ctx context.Context, trade *models.PatternTrade) (*models.TradePattern, error) {
	key, err := types.ParsePatternID(trade.PatternID)
	if err != nil {
		return nil, database.NewValidationErrorWithValue("pattern_id", err.Error(), trade.PatternID)
	}

	return s.aggregator.ApplyTrade(ctx, key, trade)
}

// RecoverUnaggregated re-applies closed trades whose outcome never reached
// the pattern aggregates, in exit order. Returns the number recovered; a
// trade that still fails is left pending for the next sweep.
func (s *LedgerService) RecoverUnaggregated(ctx context.Context, limit int) (int, error) {
	pending, err := s.trades.UnaggregatedClosed(ctx, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range pending {
		if _, err := s.aggregateClosed(ctx, &pending[i]); err != nil {
			log.Printf("⚠️  Failed to recover trade %d (%s): %v", pending[i].ID, pending[i].PatternID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Printf("♻️  Recovered %d closed trades into pattern aggregates", recovered)
	}
	return recovered, nil
}
