package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"pattern-ledger/api"
	"pattern-ledger/cache"
	"pattern-ledger/config"
	"pattern-ledger/database"
	"pattern-ledger/database/correlations"
	"pattern-ledger/database/patterns"
	"pattern-ledger/database/trades"
	"pattern-ledger/database/transitions"
	"pattern-ledger/ingest"
	"pattern-ledger/realtime"
)

// App represents the main application
type App struct {
	config *config.Config

	db    *database.Database
	redis *cache.RedisClient

	tradeRepo       *trades.Repository
	patternRepo     *patterns.Repository
	correlationRepo *correlations.Repository
	transitionRepo  *transitions.Repository

	broker  *realtime.Broker
	ledger  *LedgerService
	regimes *RegimeTracker

	correlationTracker *CorrelationTracker
	pruner             *PatternPruner
	reconciler         *Reconciler
	feed               *ingest.Feed
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	}

	// 1. Run migrations on a raw connection before GORM comes up
	fmt.Println("🗄️  Running database migrations...")
	sqlDB, err := database.OpenSQL(dbCfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(sqlDB); err != nil {
		sqlDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	sqlDB.Close()

	// 2. GORM connection for the repositories
	db, err := database.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	a.tradeRepo = trades.NewRepository(db.DB())
	a.patternRepo = patterns.NewRepository(db.DB())
	a.correlationRepo = correlations.NewRepository(db.DB())
	a.transitionRepo = transitions.NewRepository(db.DB())

	// 3. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// 4. Realtime Broker
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 5. Core write path
	classifier := NewClassifier(
		a.config.Pattern.RollingWindowSize,
		a.config.Pattern.MomentumClamp,
		a.config.Pattern.MediumConfidenceTrades,
		a.config.Pattern.HighConfidenceTrades,
		a.config.Pattern.DowngradeHoldTrades,
	)
	aggregator := NewPatternAggregator(a.patternRepo, a.transitionRepo, classifier, a.redis, a.broker, a.config.Pattern)
	a.ledger = NewLedgerService(classifier, a.tradeRepo, aggregator)
	a.regimes = NewRegimeTracker(a.patternRepo, a.transitionRepo, a.broker)

	// 6. Background loops
	a.correlationTracker = NewCorrelationTracker(a.tradeRepo, a.correlationRepo, a.config.Pattern)
	go a.correlationTracker.Start()

	a.pruner = NewPatternPruner(a.patternRepo, a.config.Pattern)
	go a.pruner.Start()

	a.reconciler = NewReconciler(a.ledger, a.config.Pattern)
	go a.reconciler.Start()

	// 7. API Server
	apiServer := api.NewServer(a.patternRepo, a.tradeRepo, a.correlationRepo, a.transitionRepo, a.redis, a.broker, a.config.Pattern)
	apiServer.SetLedger(a.ledger)

	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 8. Upstream feed intake, optional
	var wg sync.WaitGroup
	if a.config.FeedURL != "" {
		a.feed = ingest.NewFeed(a.config.FeedURL, NewFeedHandler(a.ledger, a.regimes))
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.feed.Run(ctx)
		}()
	} else {
		log.Println("ℹ️  No feed URL configured, intake runs over HTTP only")
	}

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown blocks until an interrupt, then stops the background
// loops and closes connections.
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop the feed reader
	cancel()

	if a.correlationTracker != nil {
		fmt.Println("🔗 Stopping correlation tracker...")
		a.correlationTracker.Stop()
	}
	if a.pruner != nil {
		fmt.Println("🧹 Stopping pattern pruner...")
		a.pruner.Stop()
	}
	if a.reconciler != nil {
		fmt.Println("♻️  Stopping aggregate reconciler...")
		a.reconciler.Stop()
	}
	if a.broker != nil {
		a.broker.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("⚠️  Redis close failed: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("⚠️  Database close failed: %v", err)
		}
	}

	fmt.Println("✅ Shutdown complete")
	return nil
}
