package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/patterns"
	"pattern-ledger/database/transitions"
	"pattern-ledger/database/types"
	"pattern-ledger/realtime"
)

// RegimeTracker records market regime boundaries and the pattern
// population change around each one. It holds the last observed regime
// so repeated observations of the same label are no-ops.
type RegimeTracker struct {
	patterns    *patterns.Repository
	transitions *transitions.Repository
	broker      *realtime.Broker

	mu      sync.Mutex
	current types.MarketRegimeClass
}

// NewRegimeTracker creates a new regime tracker
func NewRegimeTracker(patternRepo *patterns.Repository, transitionRepo *transitions.Repository, broker *realtime.Broker) *RegimeTracker {
	return &RegimeTracker{
		patterns:    patternRepo,
		transitions: transitionRepo,
		broker:      broker,
	}
}

// Observe folds one regime reading into the tracker. The first reading
// seeds the current regime without logging a transition; later readings
// that differ from the current one are recorded.
func (rt *RegimeTracker) Observe(ctx context.Context, regime types.MarketRegimeClass) (*models.RegimeTransition, error) {
	if !regime.Valid() {
		return nil, database.NewValidationErrorWithValue("regime", "unknown market regime", string(regime))
	}

	rt.mu.Lock()
	prev := rt.current
	rt.current = regime
	rt.mu.Unlock()

	if prev == "" || prev == regime {
		return nil, nil
	}
	return rt.RecordTransition(ctx, prev, regime, time.Now())
}

// RecordTransition writes one regime boundary with the set difference of
// well-performing patterns between the outgoing and incoming regimes.
func (rt *RegimeTracker) RecordTransition(ctx context.Context, from, to types.MarketRegimeClass, at time.Time) (*models.RegimeTransition, error) {
	if from == to {
		return nil, database.NewValidationErrorWithValue("to_regime", "transition requires distinct regimes", string(to))
	}

	before, err := rt.patterns.ListByRegime(ctx, from)
	if err != nil {
		return nil, err
	}
	after, err := rt.patterns.ListByRegime(ctx, to)
	if err != nil {
		return nil, err
	}

	beforeSet := wellPerforming(before)
	afterSet := wellPerforming(after)

	t := &models.RegimeTransition{
		TransitionDate:      at,
		FromRegime:          string(from),
		ToRegime:            string(to),
		PatternsBroken:      setDiff(beforeSet, afterSet),
		PatternsEmerged:     setDiff(afterSet, beforeSet),
		AvgExpectancyBefore: avgExpectancy(before),
		AvgExpectancyAfter:  avgExpectancy(after),
	}

	if err := rt.transitions.RecordTransition(ctx, t); err != nil {
		return nil, err
	}

	log.Printf("🌊 Regime transition %s -> %s: %d broken, %d emerged",
		from, to, len(t.PatternsBroken), len(t.PatternsEmerged))

	lesson := &models.LearningEvent{
		LearningDate: at,
		LessonType:   "regime_transition",
		PatternIDs:   t.PatternsBroken,
		Situation: fmt.Sprintf("regime shifted %s -> %s; %d patterns broken, %d emerged",
			from, to, len(t.PatternsBroken), len(t.PatternsEmerged)),
		Recommendation: "revalidate broken patterns before sizing into them under the new regime",
	}
	if err := rt.transitions.RecordLesson(ctx, lesson); err != nil {
		log.Printf("⚠️  Failed to record regime lesson: %v", err)
	}

	if rt.broker != nil {
		rt.broker.Broadcast("regime_transition", t)
	}
	return t, nil
}

// wellPerforming filters to patterns with positive expectancy and at
// least medium confidence; the population whose break or emergence is
// worth logging.
func wellPerforming(all []models.TradePattern) map[string]bool {
	set := make(map[string]bool, len(all))
	for _, p := range all {
		level := types.ConfidenceLevel(p.ConfidenceLevel)
		if p.Expectancy > 0 && level.Rank() >= types.ConfidenceMedium.Rank() {
			set[p.PatternID] = true
		}
	}
	return set
}

func setDiff(a, b map[string]bool) []string {
	out := make([]string, 0)
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func avgExpectancy(all []models.TradePattern) float64 {
	if len(all) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range all {
		sum += p.Expectancy
	}
	return sum / float64(len(all))
}
