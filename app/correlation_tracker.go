package app

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"pattern-ledger/config"
	"pattern-ledger/database/correlations"
	"pattern-ledger/database/models"
	"pattern-ledger/database/trades"
)

// CorrelationTracker periodically recomputes pairwise pattern correlations
// from closed trades whose holding windows overlapped.
type CorrelationTracker struct {
	trades       *trades.Repository
	correlations *correlations.Repository
	cfg          config.PatternConfig
	done         chan bool
}

// NewCorrelationTracker creates a new correlation tracker
func NewCorrelationTracker(tradeRepo *trades.Repository, corrRepo *correlations.Repository, cfg config.PatternConfig) *CorrelationTracker {
	return &CorrelationTracker{
		trades:       tradeRepo,
		correlations: corrRepo,
		cfg:          cfg,
		done:         make(chan bool),
	}
}

// Start begins the analysis loop
func (ct *CorrelationTracker) Start() {
	log.Println("🔗 Correlation Tracker started")

	ticker := time.NewTicker(time.Duration(ct.cfg.CorrelationIntervalMins) * time.Minute)
	defer ticker.Stop()

	// Initial run
	ct.runAnalysis(context.Background())

	for {
		select {
		case <-ticker.C:
			ct.runAnalysis(context.Background())
		case <-ct.done:
			log.Println("🔗 Correlation Tracker stopped")
			return
		}
	}
}

// Stop stops the analysis loop
func (ct *CorrelationTracker) Stop() {
	ct.done <- true
}

// runAnalysis recomputes every pattern pair that traded inside the
// lookback window.
func (ct *CorrelationTracker) runAnalysis(ctx context.Context) {
	log.Println("🔗 Running pattern correlation analysis...")

	since := time.Now().AddDate(0, 0, -ct.cfg.CorrelationLookbackDays)
	patternIDs, err := ct.trades.ActivePatternIDs(ctx, since)
	if err != nil {
		log.Printf("⚠️  Failed to get active patterns for correlation: %v", err)
		return
	}

	if len(patternIDs) < 2 {
		log.Printf("ℹ️  Not enough patterns for correlation analysis (found %d, need at least 2)", len(patternIDs))
		return
	}

	// Limit to 100 patterns to avoid N^2 explosion
	if len(patternIDs) > 100 {
		patternIDs = patternIDs[:100]
	}

	history := make(map[string][]models.PatternTrade)
	for _, id := range patternIDs {
		closed, err := ct.trades.ClosedTrades(ctx, id, 500)
		if err != nil {
			log.Printf("⚠️  Failed to load closed trades for %s: %v", id, err)
			continue
		}
		if len(closed) > 0 {
			history[id] = closed
		}
	}

	if len(history) < 2 {
		log.Printf("ℹ️  Not enough patterns with closed trades for correlation (found %d)", len(history))
		return
	}

	processed := make([]string, 0, len(history))
	for id := range history {
		processed = append(processed, id)
	}
	sort.Strings(processed)

	count := 0
	for i := 0; i < len(processed); i++ {
		for j := i + 1; j < len(processed); j++ {
			a := processed[i]
			b := processed[j]

			pnlA, pnlB := alignCoTrades(history[a], history[b])
			if len(pnlA) == 0 {
				continue
			}

			entry := buildCorrelationEntry(a, b, pnlA, pnlB, ct.cfg.MinCoTrades)

			if err := ct.correlations.Upsert(ctx, entry); err != nil {
				log.Printf("⚠️  Failed to save correlation for %s / %s: %v", a, b, err)
			} else {
				count++
			}
		}
	}

	if count > 0 {
		log.Printf("✅ Correlation analysis complete: %d pairs processed", count)
	} else {
		log.Println("ℹ️  No pattern pairs had overlapping trades")
	}
}

// buildCorrelationEntry assembles the pair row from aligned co-trade pnl
// series. Below minCoTrades the coefficient and relationship stay nil so
// readers can tell "no correlation" from "not yet computable".
func buildCorrelationEntry(a, b string, pnlA, pnlB []float64, minCoTrades int) *models.PatternCorrelation {
	entry := &models.PatternCorrelation{
		PatternA:        a,
		PatternB:        b,
		TradesTogether:  int64(len(pnlA)),
		WinRateTogether: winRateTogether(pnlA, pnlB),
		LastCalculated:  time.Now(),
	}

	if len(pnlA) >= minCoTrades {
		coef := pearsonCorrelation(pnlA, pnlB)
		if !math.IsNaN(coef) {
			rel := relationshipFor(coef)
			entry.CorrelationCoefficient = &coef
			entry.RelationshipType = &rel
		}
	}
	return entry
}

// alignCoTrades pairs closed trades of two patterns whose holding windows
// overlapped, each trade matched at most once. Both input slices must be
// closed trades; rows without an exit date are skipped.
func alignCoTrades(tradesA, tradesB []models.PatternTrade) (pnlA, pnlB []float64) {
	a := closedSorted(tradesA)
	b := closedSorted(tradesB)

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if !a[i].ExitDate.After(b[j].EntryDate) {
			// a[i] exits before b[j] enters
			i++
			continue
		}
		if !b[j].ExitDate.After(a[i].EntryDate) {
			j++
			continue
		}
		pnlA = append(pnlA, derefPnl(a[i]))
		pnlB = append(pnlB, derefPnl(b[j]))
		// Advance whichever exits first so later trades can still match.
		if a[i].ExitDate.Before(*b[j].ExitDate) {
			i++
		} else {
			j++
		}
	}
	return pnlA, pnlB
}

func closedSorted(all []models.PatternTrade) []models.PatternTrade {
	out := make([]models.PatternTrade, 0, len(all))
	for _, t := range all {
		if t.Closed() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntryDate.Before(out[j].EntryDate)
	})
	return out
}

func derefPnl(t models.PatternTrade) float64 {
	if t.PnlPercent != nil {
		return *t.PnlPercent
	}
	return 0
}

// winRateTogether is the fraction of co-trade pairs where both sides won.
func winRateTogether(pnlA, pnlB []float64) float64 {
	if len(pnlA) == 0 {
		return 0
	}
	both := 0
	for i := range pnlA {
		if pnlA[i] > 0 && pnlB[i] > 0 {
			both++
		}
	}
	return float64(both) / float64(len(pnlA))
}

// pearsonCorrelation calculates the Pearson correlation coefficient between two series
func pearsonCorrelation(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return math.NaN()
	}

	sumX, sumY, sumXY, sumX2, sumY2 := 0.0, 0.0, 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	numerator := float64(n)*sumXY - sumX*sumY
	denominator := math.Sqrt((float64(n)*sumX2 - sumX*sumX) * (float64(n)*sumY2 - sumY*sumY))

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

// relationshipFor maps a coefficient to its label.
func relationshipFor(coef float64) string {
	switch {
	case coef >= 0.7:
		return "strongly_positive"
	case coef >= 0.3:
		return "positive"
	case coef > -0.3:
		return "neutral"
	case coef > -0.7:
		return "negative"
	default:
		return "strongly_negative"
	}
}
