package api

import (
	"log"
	"net/http"

	"pattern-ledger/cache"
	"pattern-ledger/database/models"
	"pattern-ledger/database/types"
)

// handleGetPatterns returns patterns ordered by expectancy. The default
// listing is cached in Redis; parameterized requests go to the database.
func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 50, intPtr(1), intPtr(500))
	minTrades := getIntParam(r, "min_trades", 0, intPtr(0), nil)

	cacheable := limit == 50 && minTrades == 0
	if cacheable {
		var cached map[string]interface{}
		if err := s.cache.Get(r.Context(), cache.TopPatternsKey, &cached); err == nil {
			w.Header().Set("X-Cache", "HIT")
			respondJSON(w, cached)
			return
		}
	}

	rows, err := s.patterns.ListByExpectancy(r.Context(), limit, minTrades)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query patterns", err)
		return
	}

	payload := map[string]interface{}{
		"patterns": rows,
		"count":    len(rows),
	}

	if cacheable && s.cache != nil {
		if err := s.cache.Set(r.Context(), cache.TopPatternsKey, payload, cache.DefaultTTL); err != nil {
			log.Printf("⚠️  Failed to cache top patterns: %v", err)
		}
	}

	respondJSON(w, payload)
}

// handleGetPattern returns one pattern's aggregates by id
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var cached models.TradePattern
	if err := s.cache.Get(r.Context(), cache.PatternKey(id), &cached); err == nil {
		w.Header().Set("X-Cache", "HIT")
		respondJSON(w, cached)
		return
	}

	p, err := s.patterns.GetByID(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query pattern", err)
		return
	}
	if p == nil {
		respondWithError(w, http.StatusNotFound, "pattern not found", nil)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(r.Context(), cache.PatternKey(id), p, cache.DefaultTTL); err != nil {
			log.Printf("⚠️  Failed to cache pattern %s: %v", id, err)
		}
	}

	respondJSON(w, p)
}

// handleLookupPattern resolves the key tuple to a pattern. An unknown
// combination is an empty result, not an error.
func (s *Server) handleLookupPattern(w http.ResponseWriter, r *http.Request) {
	key := types.PatternKey{
		Strategy: types.StrategyType(r.URL.Query().Get("strategy")),
		Regime:   types.MarketRegimeClass(r.URL.Query().Get("regime")),
		Volume:   types.VolumeProfile(r.URL.Query().Get("volume")),
		Setup:    types.TechnicalSetup(r.URL.Query().Get("setup")),
	}
	if err := key.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	p, err := s.patterns.GetByKey(r.Context(), key)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query pattern", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"pattern_id": key.ID(),
		"pattern":    p,
		"found":      p != nil,
	})
}

// handleGetPerformance returns the trend view rows
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 100, intPtr(1), intPtr(1000))

	rows, err := s.patterns.PerformanceView(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query performance view", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"performance": rows,
		"count":       len(rows),
	})
}

// handleGetRegimeStats returns per-regime strategy aggregates
func (s *Server) handleGetRegimeStats(w http.ResponseWriter, r *http.Request) {
	var cached map[string]interface{}
	if err := s.cache.Get(r.Context(), cache.SummaryKey, &cached); err == nil {
		w.Header().Set("X-Cache", "HIT")
		respondJSON(w, cached)
		return
	}

	rows, err := s.patterns.RegimeStatsView(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query regime stats", err)
		return
	}

	payload := map[string]interface{}{
		"regime_stats": rows,
		"count":        len(rows),
	}

	if s.cache != nil {
		if err := s.cache.Set(r.Context(), cache.SummaryKey, payload, cache.DefaultTTL); err != nil {
			log.Printf("⚠️  Failed to cache regime stats: %v", err)
		}
	}

	respondJSON(w, payload)
}

// handleGetBreakingPatterns returns historically good patterns whose recent
// window collapsed
func (s *Server) handleGetBreakingPatterns(w http.ResponseWriter, r *http.Request) {
	threshold := getFloatParam(r, "threshold", s.cfg.BreakingThreshold)
	minTrades := getIntParam(r, "min_trades", 10, intPtr(1), nil)

	rows, err := s.patterns.GetBreaking(r.Context(), threshold, minTrades)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query breaking patterns", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"patterns": rows,
		"count":    len(rows),
	})
}

// handleGetHotPatterns returns patterns whose recent window beats their
// all-time win rate
func (s *Server) handleGetHotPatterns(w http.ResponseWriter, r *http.Request) {
	minImprovement := getFloatParam(r, "min_improvement", s.cfg.HotImprovement)

	rows, err := s.patterns.GetHot(r.Context(), minImprovement)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query hot patterns", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"patterns": rows,
		"count":    len(rows),
	})
}

// handleGetCorrelations returns the strongest computed pattern pairs
func (s *Server) handleGetCorrelations(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 20, intPtr(1), intPtr(200))

	rows, err := s.correlations.List(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query correlations", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"correlations": rows,
		"count":        len(rows),
	})
}

// handleGetPatternCorrelations returns every pair involving one pattern
func (s *Server) handleGetPatternCorrelations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rows, err := s.correlations.ForPattern(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query correlations", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"pattern_id":   id,
		"correlations": rows,
		"count":        len(rows),
	})
}
