package database

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"
)

// Migration is one schema version: a monotonically increasing version number
// and the statements that bring the schema up to it. Migrations are applied
// in order inside a transaction and recorded in the append-only
// schema_migrations ledger; already-applied versions are skipped, never
// re-run.
type Migration struct {
	Version    int64
	Name       string
	Statements []string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_pattern_tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS trade_patterns (
				pattern_id VARCHAR(120) PRIMARY KEY,
				strategy_type TEXT NOT NULL,
				market_regime TEXT NOT NULL,
				volume_profile TEXT NOT NULL,
				technical_setup TEXT NOT NULL,
				total_trades BIGINT NOT NULL DEFAULT 0,
				winning_trades BIGINT NOT NULL DEFAULT 0,
				losing_trades BIGINT NOT NULL DEFAULT 0,
				zero_pnl_trades BIGINT NOT NULL DEFAULT 0,
				win_rate DECIMAL(10,6) NOT NULL DEFAULT 0,
				avg_win_percent DECIMAL(10,4) NOT NULL DEFAULT 0,
				avg_loss_percent DECIMAL(10,4) NOT NULL DEFAULT 0,
				expectancy DECIMAL(10,4) NOT NULL DEFAULT 0,
				profit_factor DECIMAL(12,4) NOT NULL DEFAULT 0,
				gross_gain_percent DECIMAL(14,4) NOT NULL DEFAULT 0,
				gross_loss_percent DECIMAL(14,4) NOT NULL DEFAULT 0,
				recent_trades JSONB,
				recent_win_rate DECIMAL(10,6) NOT NULL DEFAULT 0,
				recent_avg_return DECIMAL(10,4) NOT NULL DEFAULT 0,
				momentum_score DECIMAL(10,6) NOT NULL DEFAULT 0,
				sharpe_ratio DECIMAL(10,4) NOT NULL DEFAULT 0,
				max_drawdown_percent DECIMAL(10,4) NOT NULL DEFAULT 0,
				confidence_level TEXT NOT NULL DEFAULT 'low',
				downgrade_at_trade BIGINT NOT NULL DEFAULT 0,
				first_seen_date TIMESTAMPTZ NOT NULL,
				last_traded_date TIMESTAMPTZ,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT chk_strategy_type CHECK (strategy_type IN ('mean_reversion', 'momentum', 'breakout', 'bounce')),
				CONSTRAINT chk_market_regime CHECK (market_regime IN ('extreme_fear', 'fear', 'neutral', 'greed', 'extreme_greed')),
				CONSTRAINT chk_volume_profile CHECK (volume_profile IN ('low', 'normal', 'high', 'explosive')),
				CONSTRAINT chk_technical_setup CHECK (technical_setup IN ('oversold', 'neutral', 'overbought')),
				CONSTRAINT chk_confidence_level CHECK (confidence_level IN ('low', 'medium', 'high')),
				CONSTRAINT chk_trade_counters CHECK (total_trades = winning_trades + losing_trades + zero_pnl_trades)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_patterns_expectancy ON trade_patterns (expectancy DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_patterns_regime_strategy ON trade_patterns (market_regime, strategy_type)`,
			`CREATE INDEX IF NOT EXISTS idx_trade_patterns_is_active ON trade_patterns (is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_trade_patterns_last_traded_date ON trade_patterns (last_traded_date)`,
			`CREATE TABLE IF NOT EXISTS pattern_trade_history (
				id BIGSERIAL PRIMARY KEY,
				pattern_id TEXT NOT NULL,
				batch_id TEXT,
				symbol VARCHAR(12) NOT NULL,
				entry_date TIMESTAMPTZ NOT NULL,
				entry_price DECIMAL(15,4) NOT NULL,
				entry_rsi DECIMAL(10,4),
				entry_volume_ratio DECIMAL(10,4),
				entry_atr DECIMAL(10,4),
				entry_vix DECIMAL(10,4),
				entry_fear_greed BIGINT,
				exit_date TIMESTAMPTZ,
				exit_price DECIMAL(15,4),
				exit_reason TEXT,
				holding_days BIGINT,
				pnl_percent DECIMAL(10,4),
				max_gain_percent DECIMAL(10,4),
				max_drawdown_percent DECIMAL(10,4),
				decision TEXT NOT NULL DEFAULT 'BUY',
				conviction_score DECIMAL(10,4) NOT NULL DEFAULT 0,
				position_size_pct DECIMAL(10,4) NOT NULL DEFAULT 0,
				selected BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT chk_exit_reason CHECK (exit_reason IS NULL OR exit_reason IN ('target', 'stop_loss', 'time_limit', 'regime_change'))
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_symbol_entry ON pattern_trade_history (symbol, entry_date)`,
			`CREATE INDEX IF NOT EXISTS idx_trade_history_pattern ON pattern_trade_history (pattern_id, entry_date)`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_trade_history_batch_id ON pattern_trade_history (batch_id)`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_trade_history_exit_date ON pattern_trade_history (exit_date)`,
			`CREATE TABLE IF NOT EXISTS pattern_learning_log (
				id BIGSERIAL PRIMARY KEY,
				learning_date TIMESTAMPTZ NOT NULL,
				lesson_type TEXT NOT NULL,
				pattern_ids JSONB,
				situation TEXT,
				recommendation TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_learning_log_learning_date ON pattern_learning_log (learning_date)`,
		},
	},
	{
		Version: 2,
		Name:    "create_correlations_and_transitions",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS pattern_correlations (
				id BIGSERIAL PRIMARY KEY,
				pattern_a TEXT NOT NULL,
				pattern_b TEXT NOT NULL,
				correlation_coefficient DECIMAL(10,6),
				trades_together BIGINT NOT NULL DEFAULT 0,
				win_rate_together DECIMAL(10,6) NOT NULL DEFAULT 0,
				relationship_type TEXT,
				last_calculated TIMESTAMPTZ NOT NULL,
				CONSTRAINT chk_canonical_pair CHECK (pattern_a < pattern_b),
				CONSTRAINT chk_relationship_type CHECK (relationship_type IS NULL OR relationship_type IN
					('strongly_positive', 'positive', 'neutral', 'negative', 'strongly_negative'))
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_correlation_pair ON pattern_correlations (pattern_a, pattern_b)`,
			`CREATE TABLE IF NOT EXISTS pattern_regime_transitions (
				id BIGSERIAL PRIMARY KEY,
				transition_date TIMESTAMPTZ NOT NULL,
				from_regime TEXT NOT NULL,
				to_regime TEXT NOT NULL,
				patterns_broken JSONB,
				patterns_emerged JSONB,
				avg_expectancy_before DECIMAL(10,4) NOT NULL DEFAULT 0,
				avg_expectancy_after DECIMAL(10,4) NOT NULL DEFAULT 0,
				patterns_affected BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_regime_transitions_transition_date ON pattern_regime_transitions (transition_date)`,
		},
	},
	{
		Version: 3,
		Name:    "create_monitoring_views",
		Statements: []string{
			`CREATE OR REPLACE VIEW v_pattern_performance AS
			SELECT
				pattern_id,
				strategy_type,
				market_regime,
				volume_profile,
				technical_setup,
				total_trades,
				win_rate,
				recent_win_rate,
				expectancy,
				profit_factor,
				momentum_score,
				confidence_level,
				CASE
					WHEN recent_win_rate > win_rate + 0.10 THEN 'improving'
					WHEN recent_win_rate < win_rate - 0.10 THEN 'declining'
					ELSE 'stable'
				END AS trend,
				last_traded_date
			FROM trade_patterns
			WHERE is_active`,
			`CREATE OR REPLACE VIEW v_regime_pattern_stats AS
			SELECT
				market_regime,
				strategy_type,
				COUNT(*) AS pattern_count,
				COALESCE(SUM(total_trades), 0) AS total_trades,
				COALESCE(AVG(win_rate), 0) AS avg_win_rate,
				COALESCE(AVG(expectancy), 0) AS avg_expectancy,
				MAX(last_traded_date) AS last_traded_date
			FROM trade_patterns
			WHERE is_active
			GROUP BY market_regime, strategy_type`,
		},
	},
	{
		Version: 4,
		Name:    "add_reversal_markers",
		Statements: []string{
			`ALTER TABLE pattern_trade_history ADD COLUMN IF NOT EXISTS is_reversal BOOLEAN NOT NULL DEFAULT FALSE`,
			`ALTER TABLE pattern_trade_history ADD COLUMN IF NOT EXISTS reversed_trade_id BIGINT`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_trade_history_reversed_trade_id ON pattern_trade_history (reversed_trade_id)`,
		},
	},
	{
		Version: 5,
		Name:    "add_aggregation_marker",
		Statements: []string{
			`ALTER TABLE pattern_trade_history ADD COLUMN IF NOT EXISTS aggregated_at TIMESTAMPTZ`,
			`CREATE INDEX IF NOT EXISTS idx_pattern_trade_history_unaggregated
				ON pattern_trade_history (exit_date)
				WHERE exit_date IS NOT NULL AND aggregated_at IS NULL`,
		},
	},
}

// Migrate brings the schema up to the latest version. Any failure is fatal
// for the caller: the service must not serve queries against an inconsistent
// schema version.
func Migrate(db *sql.DB) error {
	if err := validateMigrations(migrations); err != nil {
		return fmt.Errorf("invalid migration set: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	todo := pending(migrations, applied)
	if len(todo) == 0 {
		log.Println("✅ Schema up to date")
		return nil
	}

	for _, m := range todo {
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		log.Printf("✅ Applied migration %d: %s", m.Version, m.Name)
	}

	return nil
}

// validateMigrations rejects duplicate or out-of-order version numbers.
func validateMigrations(ms []Migration) error {
	seen := make(map[int64]bool, len(ms))
	last := int64(0)
	for _, m := range ms {
		if m.Version <= 0 {
			return fmt.Errorf("version %d must be positive", m.Version)
		}
		if seen[m.Version] {
			return fmt.Errorf("duplicate version %d", m.Version)
		}
		if m.Version <= last {
			return fmt.Errorf("version %d out of order after %d", m.Version, last)
		}
		seen[m.Version] = true
		last = m.Version
	}
	return nil
}

// pending returns the migrations not yet recorded in the ledger, in version
// order. Already-applied versions are skipped, not re-run.
func pending(ms []Migration, applied map[int64]bool) []Migration {
	var todo []Migration
	for _, m := range ms {
		if !applied[m.Version] {
			todo = append(todo, m)
		}
	}
	sort.Slice(todo, func(i, j int) bool { return todo[i].Version < todo[j].Version })
	return todo
}

func appliedVersions(db *sql.DB) (map[int64]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration runs one migration inside a transaction so a failed
// statement leaves neither a half-applied version nor a ledger entry.
func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
		m.Version, m.Name, time.Now().UTC(),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record version %d: %w", m.Version, err)
	}

	return tx.Commit()
}
