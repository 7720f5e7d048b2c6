package config

import (
	"os"
	"strconv"
	"strings"
)

// global configuration instance
var global *Config

// Config global configuration (loaded from .env)
// Only truly global settings live here; grid/strategy parameters are
// configured per position.
type Config struct {
	// Evaluation loop
	TickIntervalSec int

	// Exchange credentials (Binance spot)
	BinanceAPIKey    string
	BinanceAPISecret string

	// DryRun routes all order flow to the in-memory paper exchange
	DryRun bool

	LogLevel string
}

// Init initializes global configuration from environment variables
func Init() {
	cfg := &Config{
		TickIntervalSec: 15,
		DryRun:          true,
		LogLevel:        "info",
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.BinanceAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.BinanceAPISecret = strings.TrimSpace(v)
	}

	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.DryRun = strings.ToLower(v) != "false"
	}

	if v := os.Getenv("TICK_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.TickIntervalSec = sec
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	global = cfg
}

// Get returns the global configuration
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
