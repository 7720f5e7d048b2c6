package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"gridbot/bot"
	"gridbot/config"
	"gridbot/exchange"
	"gridbot/grid"
	"gridbot/logger"
	"gridbot/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof("No .env file found, using process environment")
	}

	config.Init()
	cfg := config.Get()
	logger.Init(&logger.Config{Level: cfg.LogLevel})

	st, err := store.NewFromEnv()
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	live := exchange.NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, 2, 5)

	var client exchange.Client = live
	var market exchange.MarketData = live
	if cfg.DryRun {
		logger.Warnf("DRY_RUN enabled: orders go to the paper exchange, market data stays live")
		client = &dryRunClient{
			PaperExchange: exchange.NewPaperExchange(0),
			live:          live,
		}
	}

	engine := grid.NewEngine(client, market, st.Order(), st.Grid())
	manager := bot.NewManager(engine, client, st, time.Duration(cfg.TickIntervalSec)*time.Second)

	pos := positionFromEnv()
	if err := manager.Add(pos); err != nil {
		logger.Fatalf("Failed to start position %s: %v", pos.ID, err)
	}
	logger.Infof("🚀 Grid bot started: %s, %d levels, $%.2f investment",
		pos.Config.Symbol, pos.Config.LevelCount, pos.Config.TotalInvestment)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.Shutdown(ctx)
}

// positionFromEnv builds the single position this process trades.
// GRID_LOWER/GRID_UPPER switch the range source to manual when both are set.
func positionFromEnv() *bot.Position {
	gc := &grid.Config{
		Symbol:               envOr("GRID_SYMBOL", "BTCUSDT"),
		SpacingMode:          grid.SpacingMode(envOr("GRID_SPACING", string(grid.SpacingArithmetic))),
		TradingMode:          grid.TradingMode(envOr("GRID_MODE", string(grid.ModeNeutral))),
		RangeSource:          grid.RangeAutoVolatility,
		LevelCount:           envInt("GRID_LEVELS", 10),
		TotalInvestment:      envFloat("GRID_INVESTMENT", 1000),
		BreakoutThreshold:    envFloat("GRID_BREAKOUT_THRESHOLD", 0.01),
		RangeExpansionFactor: envFloat("GRID_EXPANSION_FACTOR", grid.DefaultExpansionFactor),
		VolatilityBufferPct:  envFloat("GRID_VOLATILITY_BUFFER_PCT", 10),
	}

	lower := envFloat("GRID_LOWER", 0)
	upper := envFloat("GRID_UPPER", 0)
	if lower > 0 && upper > 0 {
		gc.RangeSource = grid.RangeManual
		gc.LowerPrice = lower
		gc.UpperPrice = upper
	}

	if strings.EqualFold(os.Getenv("GRID_VOLUME_WEIGHTED"), "true") {
		gc.UseVolumeWeighting = true
		gc.VolumeLookbackHours = envInt("GRID_VOLUME_LOOKBACK_HOURS", 24)
		gc.ClusteringStrength = envFloat("GRID_CLUSTERING_STRENGTH", 2.0)
	}

	id := os.Getenv("GRID_POSITION_ID")
	if id == "" {
		id = uuid.New().String()
	}
	return &bot.Position{ID: id, Config: gc}
}

// dryRunClient routes order flow to the paper exchange while prices come
// from the live venue, so dry-run ladders anchor on real markets
type dryRunClient struct {
	*exchange.PaperExchange
	live *exchange.BinanceClient
}

func (d *dryRunClient) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	return d.live.GetMarketPrice(ctx, symbol)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
