package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"pattern-ledger/cache"
	"pattern-ledger/config"
	"pattern-ledger/database/correlations"
	"pattern-ledger/database/models"
	"pattern-ledger/database/patterns"
	"pattern-ledger/database/trades"
	"pattern-ledger/database/transitions"
	"pattern-ledger/realtime"
)

// Server handles HTTP API requests
type Server struct {
	patterns     *patterns.Repository
	trades       *trades.Repository
	correlations *correlations.Repository
	transitions  *transitions.Repository
	cache        *cache.RedisClient
	broker       *realtime.Broker
	cfg          config.PatternConfig
	ledger       LedgerInterface
}

// LedgerInterface is the write surface the intake endpoints delegate to.
// Implemented by the application layer.
type LedgerInterface interface {
	OpenTrade(ctx context.Context, req OpenTradeRequest) (*models.PatternTrade, error)
	CloseTrade(ctx context.Context, symbol string, entryDate time.Time, exit models.TradeExit) (*models.TradePattern, error)
	ReverseTrade(ctx context.Context, symbol string, entryDate time.Time, reason string) (*models.TradePattern, error)
}

// NewServer creates a new API server instance
func NewServer(patternRepo *patterns.Repository, tradeRepo *trades.Repository, corrRepo *correlations.Repository, transitionRepo *transitions.Repository, cacheClient *cache.RedisClient, broker *realtime.Broker, cfg config.PatternConfig) *Server {
	return &Server{
		patterns:     patternRepo,
		trades:       tradeRepo,
		correlations: corrRepo,
		transitions:  transitionRepo,
		cache:        cacheClient,
		broker:       broker,
		cfg:          cfg,
	}
}

// SetLedger sets the write-side use case
func (s *Server) SetLedger(ledger LedgerInterface) {
	s.ledger = ledger
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/stream", s.broker) // SSE Endpoint

	// Pattern read surface
	mux.HandleFunc("GET /api/patterns", s.handleGetPatterns)
	mux.HandleFunc("GET /api/patterns/lookup", s.handleLookupPattern)
	mux.HandleFunc("GET /api/patterns/performance", s.handleGetPerformance)
	mux.HandleFunc("GET /api/patterns/regime-stats", s.handleGetRegimeStats)
	mux.HandleFunc("GET /api/patterns/breaking", s.handleGetBreakingPatterns)
	mux.HandleFunc("GET /api/patterns/hot", s.handleGetHotPatterns)
	mux.HandleFunc("GET /api/patterns/{id}", s.handleGetPattern)
	mux.HandleFunc("GET /api/patterns/{id}/correlations", s.handleGetPatternCorrelations)

	// Trade ledger
	mux.HandleFunc("GET /api/trades", s.handleGetTrades)
	mux.HandleFunc("POST /api/trades", s.handleOpenTrade)
	mux.HandleFunc("POST /api/trades/close", s.handleCloseTrade)
	mux.HandleFunc("POST /api/trades/reverse", s.handleReverseTrade)

	// Learning log
	mux.HandleFunc("GET /api/transitions", s.handleGetTransitions)
	mux.HandleFunc("GET /api/lessons", s.handleGetLessons)
	mux.HandleFunc("GET /api/correlations", s.handleGetCorrelations)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// Handlers are distributed across multiple files:
// - handlers_patterns.go: Pattern aggregates, views, correlations
// - handlers_trades.go: Trade ledger reads and the producer append surface
