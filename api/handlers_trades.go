package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"pattern-ledger/database"
	"pattern-ledger/database/models"
)

// OpenTradeRequest carries the entry context reported by the upstream
// analysis pipeline when a position opens.
type OpenTradeRequest struct {
	Symbol     string    `json:"symbol"`
	BatchID    string    `json:"batch_id"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`

	RSI          *float64 `json:"rsi,omitempty"`
	VolumeRatio  *float64 `json:"volume_ratio,omitempty"`
	ATR          *float64 `json:"atr,omitempty"`
	VIX          *float64 `json:"vix,omitempty"`
	FearGreed    *int     `json:"fear_greed,omitempty"`
	PriceVsSMA20 float64  `json:"price_vs_sma20"`
	RSIChange    float64  `json:"rsi_change"`
	RegimeLabel  string   `json:"regime,omitempty"`

	Decision        string  `json:"decision"`
	ConvictionScore float64 `json:"conviction_score"`
	PositionSizePct float64 `json:"position_size_pct"`
	Selected        *bool   `json:"selected,omitempty"`
}

// CloseTradeRequest identifies an open position and carries its exit data.
type CloseTradeRequest struct {
	Symbol    string           `json:"symbol"`
	EntryDate time.Time        `json:"entry_date"`
	Exit      models.TradeExit `json:"exit"`
}

// ReverseTradeRequest identifies a closed trade to compensate.
type ReverseTradeRequest struct {
	Symbol    string    `json:"symbol"`
	EntryDate time.Time `json:"entry_date"`
	Reason    string    `json:"reason"`
}

// handleGetTrades returns ledger rows filtered by pattern and date range
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	patternID := r.URL.Query().Get("pattern_id")
	if patternID == "" {
		respondWithError(w, http.StatusBadRequest, "pattern_id query parameter is required", nil)
		return
	}

	from := getTimeParam(r, "from", time.Time{})
	to := getTimeParam(r, "to", time.Now().Add(24*time.Hour))

	rows, err := s.trades.QueryTrades(r.Context(), patternID, from, to)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query trades", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"pattern_id": patternID,
		"trades":     rows,
		"count":      len(rows),
	})
}

// handleOpenTrade appends an open position to the ledger
func (s *Server) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondWithError(w, http.StatusServiceUnavailable, "write surface not configured", nil)
		return
	}

	var req OpenTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Symbol == "" || req.EntryDate.IsZero() {
		respondWithError(w, http.StatusBadRequest, "symbol and entry_date are required", nil)
		return
	}

	trade, err := s.ledger.OpenTrade(r.Context(), req)
	if err != nil {
		s.respondWriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(trade); err != nil {
		log.Printf("API Error: failed to encode response: %v", err)
	}
}

// handleCloseTrade records exit data and folds the outcome into its pattern
func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondWithError(w, http.StatusServiceUnavailable, "write surface not configured", nil)
		return
	}

	var req CloseTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Symbol == "" || req.EntryDate.IsZero() {
		respondWithError(w, http.StatusBadRequest, "symbol and entry_date are required", nil)
		return
	}

	pattern, err := s.ledger.CloseTrade(r.Context(), req.Symbol, req.EntryDate, req.Exit)
	if err != nil {
		s.respondWriteError(w, err)
		return
	}

	respondJSON(w, pattern)
}

// handleReverseTrade appends a compensating record for a closed trade
func (s *Server) handleReverseTrade(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondWithError(w, http.StatusServiceUnavailable, "write surface not configured", nil)
		return
	}

	var req ReverseTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	pattern, err := s.ledger.ReverseTrade(r.Context(), req.Symbol, req.EntryDate, req.Reason)
	if err != nil {
		s.respondWriteError(w, err)
		return
	}

	respondJSON(w, pattern)
}

// handleGetTransitions returns the regime transition log
func (s *Server) handleGetTransitions(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 50, intPtr(1), intPtr(500))

	rows, err := s.transitions.ListTransitions(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query transitions", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"transitions": rows,
		"count":       len(rows),
	})
}

// handleGetLessons returns recent learning log entries
func (s *Server) handleGetLessons(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", 30, intPtr(1), intPtr(365))

	rows, err := s.transitions.RecentLessons(r.Context(), days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to query lessons", err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"lessons":   rows,
		"days_back": days,
		"count":     len(rows),
	})
}

// respondWriteError maps write-side error kinds to HTTP status codes.
func (s *Server) respondWriteError(w http.ResponseWriter, err error) {
	switch {
	case database.IsDuplicateKey(err):
		respondWithError(w, http.StatusConflict, "trade already recorded for this symbol and entry date", err)
	case database.IsConflict(err):
		respondWithError(w, http.StatusConflict, "pattern aggregation conflict, the outcome will be re-applied automatically", err)
	case database.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, "trade not found", err)
	default:
		var verr *database.ValidationError
		if asValidation(err, &verr) {
			respondWithError(w, http.StatusBadRequest, verr.Error(), nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}
