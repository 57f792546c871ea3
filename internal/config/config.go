// Package config loads engine settings from the environment, with .env
// support for local development.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds everything the engine reads from the environment.
type Config struct {
	Port        string
	DatabaseURL string // empty means in-memory stores
	RedisURL    string // empty means no unlock cache

	ExecutionFee       decimal.Decimal // flat per-trade fee in USDC
	ProfitSharePercent decimal.Decimal // platform cut of gross profit

	OpportunityTTL    time.Duration
	KeepaliveInterval time.Duration
	ExecutionLatency  time.Duration // simulated venue latency
}

// Load reads the environment (after best-effort .env loading) and applies
// defaults. It never fails: bad values fall back to defaults with a warning.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	return Config{
		Port:               envString("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ExecutionFee:       envDecimal("EXECUTION_FEE", decimal.NewFromInt(2)),
		ProfitSharePercent: envDecimal("PROFIT_SHARE_PERCENT", decimal.NewFromInt(5)),
		OpportunityTTL:     envDuration("OPPORTUNITY_TTL", 30*time.Minute),
		KeepaliveInterval:  envDuration("KEEPALIVE_INTERVAL", 30*time.Second),
		ExecutionLatency:   envDuration("EXECUTION_LATENCY", 2*time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid decimal in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
