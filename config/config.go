package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Upstream analysis pipeline feed (optional; intake disabled when empty)
	FeedURL string

	// HTTP API
	APIPort int

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Pattern engine tunables
	Pattern PatternConfig
}

// PatternConfig holds the pattern engine thresholds and windows
type PatternConfig struct {
	// Aggregation
	RollingWindowSize int     // trades kept in the per-pattern rolling window
	MomentumClamp     float64 // momentum_score clamped to ±this bound
	LessonThreshold   float64 // |momentum| at which a learning event is logged

	// Confidence tiers
	MediumConfidenceTrades int // minimum trades for medium confidence
	HighConfidenceTrades   int // minimum trades for high confidence
	DowngradeHoldTrades    int // trades a pattern must hold past a downgrade before high

	// Correlation
	MinCoTrades             int     // co-trade sample below which the coefficient stays undefined
	CorrelationIntervalMins int     // correlation loop period
	CorrelationLookbackDays int     // trade history window fed to the loop
	HotImprovement          float64 // recent-vs-alltime delta for "hot" listings
	BreakingThreshold       float64 // recent win rate below which a strong pattern is "breaking"

	// Lifecycle
	StalePatternDays      int // days without trades before deactivation
	ReconcileIntervalMins int // sweep period for closed-but-unaggregated trades
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		FeedURL: os.Getenv("PATTERN_FEED_URL"),
		APIPort: getEnvInt("API_PORT", 8090),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "pattern_ledger"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "pattern"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "pattern123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Pattern: PatternConfig{
			RollingWindowSize: getEnvInt("PATTERN_ROLLING_WINDOW", 20),
			MomentumClamp:     getEnvFloat("PATTERN_MOMENTUM_CLAMP", 0.25),
			LessonThreshold:   getEnvFloat("PATTERN_LESSON_THRESHOLD", 0.15),

			MediumConfidenceTrades: getEnvInt("PATTERN_MEDIUM_CONFIDENCE_TRADES", 20),
			HighConfidenceTrades:   getEnvInt("PATTERN_HIGH_CONFIDENCE_TRADES", 50),
			DowngradeHoldTrades:    getEnvInt("PATTERN_DOWNGRADE_HOLD_TRADES", 20),

			MinCoTrades:             getEnvInt("PATTERN_MIN_CO_TRADES", 5),
			CorrelationIntervalMins: getEnvInt("PATTERN_CORRELATION_INTERVAL_MINS", 60),
			CorrelationLookbackDays: getEnvInt("PATTERN_CORRELATION_LOOKBACK_DAYS", 90),
			HotImprovement:          getEnvFloat("PATTERN_HOT_IMPROVEMENT", 0.10),
			BreakingThreshold:       getEnvFloat("PATTERN_BREAKING_THRESHOLD", 0.40),

			StalePatternDays:      getEnvInt("PATTERN_STALE_DAYS", 30),
			ReconcileIntervalMins: getEnvInt("PATTERN_RECONCILE_INTERVAL_MINS", 15),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
