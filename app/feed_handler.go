package app

import (
	"context"
	"encoding/json"
	"time"

	"pattern-ledger/api"
	"pattern-ledger/database"
	"pattern-ledger/database/models"
	"pattern-ledger/database/types"
)

// FeedHandler routes decoded upstream feed events into the write surface.
// Duplicate opens are swallowed so feed replays stay idempotent.
type FeedHandler struct {
	ledger  *LedgerService
	regimes *RegimeTracker
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(ledger *LedgerService, regimes *RegimeTracker) *FeedHandler {
	return &FeedHandler{
		ledger:  ledger,
		regimes: regimes,
	}
}

// HandleTradeOpened appends the opened position to the ledger
func (h *FeedHandler) HandleTradeOpened(ctx context.Context, payload json.RawMessage) error {
	var req api.OpenTradeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	_, err := h.ledger.OpenTrade(ctx, req)
	if database.IsDuplicateKey(err) {
		// Replayed message, already in the ledger.
		return nil
	}
	return err
}

type feedTradeClosed struct {
	Symbol    string           `json:"symbol"`
	EntryDate time.Time        `json:"entry_date"`
	Exit      models.TradeExit `json:"exit"`
}

// HandleTradeClosed records the exit and aggregates the outcome
func (h *FeedHandler) HandleTradeClosed(ctx context.Context, payload json.RawMessage) error {
	var msg feedTradeClosed
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	_, err := h.ledger.CloseTrade(ctx, msg.Symbol, msg.EntryDate, msg.Exit)
	if database.IsDuplicateKey(err) {
		// Replayed close. The row is already closed; if its outcome has
		// not been aggregated yet the reconciler picks it up.
		return nil
	}
	return err
}

type feedTradeReversed struct {
	Symbol    string    `json:"symbol"`
	EntryDate time.Time `json:"entry_date"`
	Reason    string    `json:"reason"`
}

// HandleTradeReversed appends a compensating record for a closed trade
func (h *FeedHandler) HandleTradeReversed(ctx context.Context, payload json.RawMessage) error {
	var msg feedTradeReversed
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	_, err := h.ledger.ReverseTrade(ctx, msg.Symbol, msg.EntryDate, msg.Reason)
	return err
}

type feedRegimeChange struct {
	Regime string `json:"regime"`
}

// HandleRegimeChange folds a regime reading into the transition tracker
func (h *FeedHandler) HandleRegimeChange(ctx context.Context, payload json.RawMessage) error {
	var msg feedRegimeChange
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	_, err := h.regimes.Observe(ctx, types.MarketRegimeClass(msg.Regime))
	return err
}
