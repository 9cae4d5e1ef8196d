package app

import (
	"context"
	"log"
	"time"

	"pattern-ledger/config"
	"pattern-ledger/database/patterns"
)

// PatternPruner periodically deactivates patterns that have not traded
// within the staleness window. Deactivation only flips is_active; the
// aggregates stay queryable and a new trade reactivates the pattern.
type PatternPruner struct {
	patterns *patterns.Repository
	cfg      config.PatternConfig
	done     chan bool
}

// NewPatternPruner creates a new pattern pruner
func NewPatternPruner(patternRepo *patterns.Repository, cfg config.PatternConfig) *PatternPruner {
	return &PatternPruner{
		patterns: patternRepo,
		cfg:      cfg,
		done:     make(chan bool),
	}
}

// Start begins the pruning loop
func (pp *PatternPruner) Start() {
	log.Println("🧹 Pattern Pruner started")

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	// Initial run
	pp.prune()

	for {
		select {
		case <-ticker.C:
			pp.prune()
		case <-pp.done:
			log.Println("🧹 Pattern Pruner stopped")
			return
		}
	}
}

// Stop stops the pruning loop
func (pp *PatternPruner) Stop() {
	pp.done <- true
}

func (pp *PatternPruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deactivated, err := pp.patterns.DeactivateStale(ctx, pp.cfg.StalePatternDays)
	if err != nil {
		log.Printf("⚠️  Failed to deactivate stale patterns: %v", err)
		return
	}
	if deactivated > 0 {
		log.Printf("🧹 Deactivated %d stale patterns (no trades in %d days)", deactivated, pp.cfg.StalePatternDays)
	}
}
