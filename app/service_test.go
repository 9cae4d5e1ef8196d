package app

import (
	"context"
	"testing"
	"time"

	"pattern-ledger/config"
	"pattern-ledger/database/models"
	"pattern-ledger/database/patterns"
	"pattern-ledger/database/trades"
	"pattern-ledger/database/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*LedgerService, *trades.Repository, *patterns.Repository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.TradePattern{}, &models.PatternTrade{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	cfg := config.PatternConfig{
		RollingWindowSize:      20,
		MomentumClamp:          0.25,
		LessonThreshold:        0.15,
		MediumConfidenceTrades: 20,
		HighConfidenceTrades:   50,
		DowngradeHoldTrades:    20,
	}

	tradeRepo := trades.NewRepository(db)
	patternRepo := patterns.NewRepository(db)
	classifier := NewClassifier(cfg.RollingWindowSize, cfg.MomentumClamp,
		cfg.MediumConfidenceTrades, cfg.HighConfidenceTrades, cfg.DowngradeHoldTrades)
	aggregator := NewPatternAggregator(patternRepo, nil, classifier, nil, nil, cfg)

	return NewLedgerService(classifier, tradeRepo, aggregator), tradeRepo, patternRepo
}

func seedClosedTrade(t *testing.T, repo *trades.Repository, symbol string, entryDate time.Time, pnl float64) *models.PatternTrade {
	t.Helper()
	ctx := context.Background()

	key := types.PatternKey{
		Strategy: types.StrategyMeanReversion,
		Regime:   types.RegimeFear,
		Volume:   types.VolumeLow,
		Setup:    types.SetupOversold,
	}
	trade := &models.PatternTrade{
		PatternID:  key.ID(),
		Symbol:     symbol,
		EntryDate:  entryDate,
		EntryPrice: 100,
		Decision:   "BUY",
	}
	if err := repo.RecordEntry(ctx, trade); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	closed, err := repo.CloseTrade(ctx, symbol, entryDate, models.TradeExit{
		ExitDate:   entryDate.AddDate(0, 0, 2),
		ExitPrice:  100 + pnl,
		ExitReason: string(types.ExitTarget),
		PnlPercent: pnl,
	})
	if err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	return closed
}

func TestRecoverUnaggregatedAppliesPendingOutcome(t *testing.T) {
	svc, tradeRepo, patternRepo := newTestService(t)
	ctx := context.Background()

	// A close that reached the ledger but never the aggregates, as after an
	// aggregation failure or a crash between the two steps.
	entry := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	closed := seedClosedTrade(t, tradeRepo, "MSFT", entry, 4.0)

	pending, err := tradeRepo.UnaggregatedClosed(ctx, 10)
	if err != nil {
		t.Fatalf("UnaggregatedClosed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending trades = %d, want 1", len(pending))
	}

	recovered, err := svc.RecoverUnaggregated(ctx, 10)
	if err != nil {
		t.Fatalf("RecoverUnaggregated: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	p, err := patternRepo.GetByID(ctx, closed.PatternID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p == nil || p.TotalTrades != 1 || p.WinningTrades != 1 {
		t.Errorf("outcome not aggregated: %+v", p)
	}

	// A second sweep must not double-count the same outcome.
	recovered, err = svc.RecoverUnaggregated(ctx, 10)
	if err != nil {
		t.Fatalf("RecoverUnaggregated second sweep: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("second sweep recovered = %d, want 0", recovered)
	}
	p, err = patternRepo.GetByID(ctx, closed.PatternID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.TotalTrades != 1 {
		t.Errorf("outcome double-counted: total=%d, want 1", p.TotalTrades)
	}
}

func TestCloseTradeStampsAggregation(t *testing.T) {
	svc, tradeRepo, patternRepo := newTestService(t)
	ctx := context.Background()

	key := types.PatternKey{
		Strategy: types.StrategyMeanReversion,
		Regime:   types.RegimeFear,
		Volume:   types.VolumeLow,
		Setup:    types.SetupOversold,
	}
	entry := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	trade := &models.PatternTrade{
		PatternID:  key.ID(),
		Symbol:     "NVDA",
		EntryDate:  entry,
		EntryPrice: 100,
		Decision:   "BUY",
	}
	if err := tradeRepo.RecordEntry(ctx, trade); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	p, err := svc.CloseTrade(ctx, "NVDA", entry, models.TradeExit{
		ExitDate:   entry.AddDate(0, 0, 1),
		ExitPrice:  103,
		ExitReason: string(types.ExitTarget),
		PnlPercent: 3.0,
	})
	if err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	if p.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", p.TotalTrades)
	}

	stored, err := tradeRepo.GetBySymbolEntry(ctx, "NVDA", entry)
	if err != nil {
		t.Fatalf("GetBySymbolEntry: %v", err)
	}
	if stored.AggregatedAt == nil {
		t.Error("closed trade not stamped aggregated")
	}

	pending, err := tradeRepo.UnaggregatedClosed(ctx, 10)
	if err != nil {
		t.Fatalf("UnaggregatedClosed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending trades = %d, want 0", len(pending))
	}

	if stamped, _ := patternRepo.GetByID(ctx, key.ID()); stamped == nil {
		t.Error("pattern row missing after close")
	}
}
