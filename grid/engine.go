package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridbot/exchange"
	"gridbot/logger"
)

// Lifecycle errors
var (
	ErrGridActive = errors.New("grid already active for position")
	ErrNoGrid     = errors.New("no grid state for position")
)

// Engine owns every GridState transition: it initializes ladders, tears
// them down, rebalances after breakouts, and reacts to fills. All entry
// points serialize per position; different positions run fully in parallel.
type Engine struct {
	client exchange.Client
	market exchange.MarketData
	orders OrderRepository
	states StateRepository

	locks sync.Map // position id -> *sync.Mutex
}

// NewEngine creates a grid engine over the given collaborators
func NewEngine(client exchange.Client, market exchange.MarketData, orders OrderRepository, states StateRepository) *Engine {
	return &Engine{
		client: client,
		market: market,
		orders: orders,
		states: states,
	}
}

// positionLock returns the mutex serializing all operations on one position.
// Rebalance runs a cancel-recompute-reinitialize sequence that must never
// interleave with a fill reaction on the same position.
func (e *Engine) positionLock(positionID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(positionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ============================================================
// Initialize
// ============================================================

// Initialize builds a fresh ladder for the position: resolves the price
// range, generates levels, and places the resting orders. A placement
// failure on one level is logged and skipped; a partially placed ladder is
// preferred over no ladder at all. The returned state reflects how many
// orders actually landed, not how many were intended.
func (e *Engine) Initialize(ctx context.Context, positionID string, cfg *Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu := e.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := e.states.Load(positionID)
	if err != nil {
		return nil, fmt.Errorf("load grid state for %s: %w", positionID, err)
	}
	if existing != nil && hasLiveOrders(existing) {
		return nil, fmt.Errorf("%w: %s", ErrGridActive, positionID)
	}

	return e.initializeLocked(ctx, positionID, cfg)
}

func (e *Engine) initializeLocked(ctx context.Context, positionID string, cfg *Config) (*State, error) {
	price, err := e.client.GetMarketPrice(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("get market price for %s: %w", cfg.Symbol, err)
	}

	lower, upper := e.resolveRange(ctx, cfg, price)
	prices, err := e.generateLevels(ctx, cfg, lower, upper)
	if err != nil {
		return nil, err
	}

	if price <= lower || price >= upper {
		logger.Warnf("[Grid] Price $%.2f is outside range $%.2f - $%.2f for %s, ladder will be one-sided",
			price, lower, upper, cfg.Symbol)
	}

	state := &State{
		PositionID:    positionID,
		Symbol:        cfg.Symbol,
		UpperPrice:    upper,
		LowerPrice:    lower,
		Levels:        buildPlan(cfg, prices, price),
		InitializedAt: time.Now(),
	}

	fundable := fundableBuyLevels(state.Levels)
	if len(fundable) == 0 {
		logger.Warnf("[Grid] No fundable buy levels for %s at price $%.2f, grid starts empty", cfg.Symbol, price)
	} else {
		perLevelQuote := cfg.TotalInvestment / float64(len(fundable))
		for _, idx := range fundable {
			lvl := &state.Levels[idx]
			if e.placeGridOrder(ctx, positionID, cfg, lvl, SideBuy, perLevelQuote/lvl.Price, perLevelQuote, 0) {
				state.BuyOrderCount++
			}
		}
	}

	if cfg.TradingMode == ModeNeutral {
		// Sell levels start as unfunded plan entries; counter-sells are
		// sized from buy fills. The account's existing base balance is
		// not checked here.
		planned := 0
		for _, lvl := range state.Levels {
			if lvl.Side == SideSell && lvl.Status == LevelPending {
				planned++
			}
		}
		if planned > 0 {
			logger.Infof("[Grid] %d sell levels planned for %s, armed as buy fills arrive", planned, cfg.Symbol)
		}
	}

	logger.Infof("📊 [Grid] Initialized %s: %d/%d buy orders placed, range $%.2f - $%.2f, investment $%.2f",
		cfg.Symbol, state.BuyOrderCount, len(fundable), lower, upper, cfg.TotalInvestment)

	if err := e.states.Save(state); err != nil {
		logger.Errorf("[Grid] Failed to persist state for %s: %v", positionID, err)
	}
	return state, nil
}

// resolveRange picks the grid bounds, falling back to the fixed-percent
// estimate when candle history cannot be fetched
func (e *Engine) resolveRange(ctx context.Context, cfg *Config, price float64) (lower, upper float64) {
	if cfg.RangeSource == RangeManual {
		return cfg.LowerPrice, cfg.UpperPrice
	}

	candles, err := e.market.GetRecentCandles(ctx, cfg.Symbol, 168)
	if err != nil {
		logger.Warnf("[Grid] Failed to fetch candles for %s: %v, falling back to fixed-percent range", cfg.Symbol, err)
		candles = nil
	}
	return EstimateRange(cfg, price, candles)
}

// generateLevels produces the ordered level prices per the configured
// spacing, with the volume-weighted path degrading to arithmetic on a thin
// tape
func (e *Engine) generateLevels(ctx context.Context, cfg *Config, lower, upper float64) ([]float64, error) {
	if cfg.UseVolumeWeighting {
		hours := cfg.VolumeLookbackHours
		if hours <= 0 {
			hours = 24
		}
		trades, err := e.market.GetRecentTrades(ctx, cfg.Symbol, hours)
		if err != nil {
			logger.Warnf("[Grid] Failed to fetch trades for %s: %v, using arithmetic spacing", cfg.Symbol, err)
			trades = nil
		}
		return VolumeWeightedLevels(lower, upper, cfg.LevelCount, trades, cfg.ClusteringStrength)
	}

	switch cfg.SpacingMode {
	case SpacingGeometric:
		return GeometricLevels(lower, upper, cfg.LevelCount)
	default:
		return ArithmeticLevels(lower, upper, cfg.LevelCount)
	}
}

// buildPlan assigns each level a side and initial status. In neutral mode
// levels below the current price are buys and levels above are sells, with
// the single level closest to the price on each side skipped as a buffer so
// the ladder does not trade against the spread. Long mode is a buy-only
// plan across every level.
func buildPlan(cfg *Config, prices []float64, currentPrice float64) []Level {
	levels := make([]Level, len(prices))

	if cfg.TradingMode == ModeLong {
		for i, p := range prices {
			levels[i] = Level{Index: i, Price: p, Side: SideBuy, Status: LevelPending}
		}
		return levels
	}

	lastBelow, firstAbove := -1, -1
	for i, p := range prices {
		side := SideSell
		status := LevelPending
		if p < currentPrice {
			side = SideBuy
			lastBelow = i
		} else if p > currentPrice {
			if firstAbove == -1 {
				firstAbove = i
			}
		} else {
			status = LevelSkipped
		}
		levels[i] = Level{Index: i, Price: p, Side: side, Status: status}
	}
	if lastBelow >= 0 {
		levels[lastBelow].Status = LevelSkipped
	}
	if firstAbove >= 0 {
		levels[firstAbove].Status = LevelSkipped
	}
	return levels
}

// fundableBuyLevels returns indices of buy levels eligible for an initial
// order, in price order
func fundableBuyLevels(levels []Level) []int {
	var out []int
	for i, lvl := range levels {
		if lvl.Side == SideBuy && lvl.Status == LevelPending {
			out = append(out, i)
		}
	}
	return out
}

// placeGridOrder places one resting limit order and records it with its
// reservation. Returns false when the level had to be skipped; the caller
// continues with the rest of the ladder.
func (e *Engine) placeGridOrder(ctx context.Context, positionID string, cfg *Config, lvl *Level, side Side, size, reserveQuote, reserveBase float64) bool {
	res, err := e.client.PlaceLimitOrder(ctx, &exchange.LimitOrderRequest{
		Symbol:      cfg.Symbol,
		Side:        string(side),
		Price:       lvl.Price,
		Quantity:    size,
		TimeInForce: "GTC",
		ClientID:    fmt.Sprintf("grid-%s", uuid.New().String()[:8]),
	})
	if err != nil {
		logger.Errorf("[Grid] Failed to place %s at $%.2f (level %d, position %s): %v, skipping level",
			side, lvl.Price, lvl.Index, positionID, err)
		return false
	}

	now := time.Now()
	order := &RestingOrder{
		ID:            uuid.New().String(),
		PositionID:    positionID,
		OrderID:       res.OrderID,
		Symbol:        cfg.Symbol,
		Side:          side,
		Price:         lvl.Price,
		Size:          size,
		QuoteSize:     lvl.Price * size,
		Status:        OrderPending,
		ReservedQuote: reserveQuote,
		ReservedBase:  reserveBase,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.orders.Create(order); err != nil {
		logger.Errorf("[Grid] Failed to persist order %s at $%.2f for %s: %v", res.OrderID, lvl.Price, positionID, err)
	}

	lvl.Status = LevelPending
	lvl.OrderID = res.OrderID
	logger.Infof("[Grid] Placed %s limit order at $%.2f, qty=%.4f, level=%d, orderID=%s",
		side, lvl.Price, size, lvl.Index, res.OrderID)
	return true
}

// ============================================================
// Cancel
// ============================================================

// Cancel tears the ladder down. Every still-pending order is cancelled on
// the exchange; whether or not that call succeeds, the order is marked
// cancelled locally and BOTH reservation fields are zeroed. Failing open
// risks briefly under-counting exchange exposure, but never leaves capital
// permanently stuck behind an unreachable order.
func (e *Engine) Cancel(ctx context.Context, positionID, reason string) error {
	mu := e.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()
	return e.cancelLocked(ctx, positionID, reason)
}

func (e *Engine) cancelLocked(ctx context.Context, positionID, reason string) error {
	pending, err := e.orders.ListPending(positionID)
	if err != nil {
		return fmt.Errorf("list pending orders for %s: %w", positionID, err)
	}

	for _, o := range pending {
		if err := e.client.CancelOrder(ctx, o.Symbol, o.OrderID); err != nil {
			logger.Errorf("[Grid] Failed to cancel %s %s at $%.2f (position %s): %v, releasing reservation anyway",
				o.Side, o.OrderID, o.Price, positionID, err)
		}
		o.Status = OrderCancelled
		o.releaseReservation()
		o.UpdatedAt = time.Now()
		if err := e.orders.Update(o); err != nil {
			logger.Errorf("[Grid] Failed to persist cancellation of %s for %s: %v", o.OrderID, positionID, err)
		}
	}

	state, err := e.states.Load(positionID)
	if err != nil {
		return fmt.Errorf("load grid state for %s: %w", positionID, err)
	}
	if state != nil {
		for i := range state.Levels {
			if state.Levels[i].Status != LevelSkipped {
				state.Levels[i].Status = LevelCancelled
			}
		}
		state.BuyOrderCount = 0
		state.SellOrderCount = 0
		if err := e.states.Save(state); err != nil {
			logger.Errorf("[Grid] Failed to persist state for %s: %v", positionID, err)
		}
	}

	logger.Infof("[Grid] Cancelled %d orders for %s: %s", len(pending), positionID, reason)
	return nil
}

// ============================================================
// Rebalance
// ============================================================

// Rebalance re-anchors the ladder after a breakout: cancel the current
// epoch, widen the old range by the expansion factor, re-center it on the
// current price, and initialize a fresh ladder with the same spacing mode.
// This is the only path that replaces GridState wholesale; the old range is
// kept on the new state for audit.
func (e *Engine) Rebalance(ctx context.Context, positionID string, cfg *Config, direction BreakoutDirection) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu := e.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()

	old, err := e.states.Load(positionID)
	if err != nil {
		return nil, fmt.Errorf("load grid state for %s: %w", positionID, err)
	}
	if old == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGrid, positionID)
	}

	price, err := e.client.GetMarketPrice(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("get market price for %s: %w", cfg.Symbol, err)
	}

	logger.Warnf("[Grid] Rebalancing %s after %s breakout at $%.2f (old range $%.2f - $%.2f)",
		cfg.Symbol, direction, price, old.LowerPrice, old.UpperPrice)

	if err := e.cancelLocked(ctx, positionID, fmt.Sprintf("%s breakout", direction)); err != nil {
		return nil, err
	}

	newLower, newUpper := CalculateNewRange(old.LowerPrice, old.UpperPrice, price, cfg.expansionFactor())

	// Same spacing, new bounds: the rebalanced epoch runs on a manual range
	// because the bounds are already decided here.
	newCfg := *cfg
	newCfg.RangeSource = RangeManual
	newCfg.LowerPrice = newLower
	newCfg.UpperPrice = newUpper

	state, err := e.initializeLocked(ctx, positionID, &newCfg)
	if err != nil {
		return nil, err
	}

	state.PrevLowerPrice = old.LowerPrice
	state.PrevUpperPrice = old.UpperPrice
	state.BreakoutCount = old.BreakoutCount + 1
	state.LastBreakout = direction
	state.RealizedProfit = old.RealizedProfit
	if err := e.states.Save(state); err != nil {
		logger.Errorf("[Grid] Failed to persist rebalanced state for %s: %v", positionID, err)
	}

	logger.Infof("[Grid] Rebalance #%d complete for %s: new range $%.2f - $%.2f",
		state.BreakoutCount, cfg.Symbol, newLower, newUpper)
	return state, nil
}

// hasLiveOrders reports whether any level still carries a resting order
func hasLiveOrders(s *State) bool {
	for _, lvl := range s.Levels {
		if lvl.Status == LevelPending && lvl.OrderID != "" {
			return true
		}
	}
	return false
}
