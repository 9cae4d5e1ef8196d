package app

import (
	"context"
	"log"
	"time"

	"pattern-ledger/config"
)

// recoverBatchSize bounds how many pending trades one sweep picks up.
const recoverBatchSize = 500

// Reconciler periodically re-applies closed trades whose outcome never
// reached the pattern aggregates, closing the gap a failed aggregation
// leaves between the ledger and the pattern rows.
type Reconciler struct {
	ledger *LedgerService
	cfg    config.PatternConfig
	done   chan bool
}

// NewReconciler creates a new aggregate reconciler
func NewReconciler(ledger *LedgerService, cfg config.PatternConfig) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		cfg:    cfg,
		done:   make(chan bool),
	}
}

// Start begins the reconciliation loop
func (rc *Reconciler) Start() {
	log.Println("♻️  Aggregate Reconciler started")

	ticker := time.NewTicker(time.Duration(rc.cfg.ReconcileIntervalMins) * time.Minute)
	defer ticker.Stop()

	// Initial run picks up anything left over from a previous crash
	rc.sweep()

	for {
		select {
		case <-ticker.C:
			rc.sweep()
		case <-rc.done:
			log.Println("♻️  Aggregate Reconciler stopped")
			return
		}
	}
}

// Stop stops the reconciliation loop
func (rc *Reconciler) Stop() {
	rc.done <- true
}

func (rc *Reconciler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := rc.ledger.RecoverUnaggregated(ctx, recoverBatchSize); err != nil {
		log.Printf("⚠️  Aggregate reconciliation sweep failed: %v", err)
	}
}
