package grid

import (
	"context"
	"fmt"
	"time"

	"gridbot/logger"
)

// OnOrderFilled reacts to a confirmed fill on one resting order: the fill
// releases the order's reservation (the capital is deployed, no longer
// pending), and in neutral mode the matching counter-order is placed on the
// opposite side so the ladder stays full. Long mode accumulates without a
// counter. A fill for an order this engine has no record of is logged as a
// data-integrity warning and acknowledged without a counter-order.
func (e *Engine) OnOrderFilled(ctx context.Context, positionID string, cfg *Config, fill *Fill) error {
	mu := e.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()

	order, err := e.orders.GetByOrderID(positionID, fill.OrderID)
	if err != nil {
		return fmt.Errorf("look up order %s for %s: %w", fill.OrderID, positionID, err)
	}
	if order == nil {
		logger.Warnf("[Grid] ⚠️ Fill reported for unknown order %s (position %s, price $%.2f, size %.4f), no counter-order",
			fill.OrderID, positionID, fill.Price, fill.Size)
		return nil
	}
	if order.Status == OrderFilled || order.Status == OrderCancelled {
		// Poller may re-report a fill; reacting twice would double-place
		return nil
	}

	order.Status = OrderFilled
	order.releaseReservation()
	order.UpdatedAt = time.Now()
	if err := e.orders.Update(order); err != nil {
		logger.Errorf("[Grid] Failed to persist fill of %s for %s: %v", order.OrderID, positionID, err)
	}

	state, err := e.states.Load(positionID)
	if err != nil {
		return fmt.Errorf("load grid state for %s: %w", positionID, err)
	}
	if state == nil {
		logger.Warnf("[Grid] Fill on %s but no grid state for %s", fill.OrderID, positionID)
		return nil
	}

	// Release the plan level; a filled level with no order id becomes a
	// counter-order target again, which is what keeps the ladder cycling.
	for i := range state.Levels {
		if state.Levels[i].OrderID == fill.OrderID {
			state.Levels[i].Status = LevelFilled
			state.Levels[i].OrderID = ""
			break
		}
	}
	if order.Side == SideBuy && state.BuyOrderCount > 0 {
		state.BuyOrderCount--
	} else if order.Side == SideSell && state.SellOrderCount > 0 {
		state.SellOrderCount--
	}

	logger.Infof("[Grid] %s filled at $%.2f, size %.4f (order %s, position %s)",
		order.Side, fill.Price, fill.Size, fill.OrderID, positionID)

	if cfg.TradingMode == ModeNeutral {
		switch order.Side {
		case SideBuy:
			e.counterSell(ctx, positionID, cfg, state, fill)
		case SideSell:
			state.RealizedProfit += e.realizedOnSell(state, order, fill)
			e.counterBuy(ctx, positionID, cfg, state, fill)
		}
	}

	if err := e.states.Save(state); err != nil {
		logger.Errorf("[Grid] Failed to persist state for %s: %v", positionID, err)
	}
	return nil
}

// counterSell places the sell that banks a buy fill: the lowest available
// sell level above the fill price, sized to exactly the base amount just
// acquired so base exposure stays self-balancing
func (e *Engine) counterSell(ctx context.Context, positionID string, cfg *Config, state *State, fill *Fill) {
	lvl := lowestAvailable(state.Levels, SideSell, fill.Price)
	if lvl == nil {
		// Ladder edge: expected, not an error
		logger.Infof("[Grid] No sell level above $%.2f for %s, buy fill holds", fill.Price, positionID)
		return
	}
	if e.placeGridOrder(ctx, positionID, cfg, lvl, SideSell, fill.Size, 0, fill.Size) {
		state.SellOrderCount++
	}
}

// counterBuy is the symmetric reaction to a sell fill: the highest
// available buy level below the fill price, sized to the quote amount just
// received
func (e *Engine) counterBuy(ctx context.Context, positionID string, cfg *Config, state *State, fill *Fill) {
	lvl := highestAvailable(state.Levels, SideBuy, fill.Price)
	if lvl == nil {
		logger.Infof("[Grid] No buy level below $%.2f for %s, sell fill holds", fill.Price, positionID)
		return
	}
	quote := fill.Price * fill.Size
	if e.placeGridOrder(ctx, positionID, cfg, lvl, SideBuy, quote/lvl.Price, quote, 0) {
		state.BuyOrderCount++
	}
}

// realizedOnSell credits the grid-step profit of one completed
// buy-low/sell-high cycle: the sell proceeds over the nearest buy level
// below the sell, which is the level the inventory was acquired at
func (e *Engine) realizedOnSell(state *State, order *RestingOrder, fill *Fill) float64 {
	costBasis := 0.0
	for _, lvl := range state.Levels {
		if lvl.Side == SideBuy && lvl.Status != LevelSkipped && lvl.Price < order.Price && lvl.Price > costBasis {
			costBasis = lvl.Price
		}
	}
	if costBasis <= 0 {
		return 0
	}
	profit := (fill.Price - costBasis) * fill.Size
	logger.Infof("[Grid] Realized $%.4f on sell at $%.2f (cost basis $%.2f)", profit, fill.Price, costBasis)
	return profit
}

// available levels carry no live order and were not skipped or cancelled
func levelAvailable(lvl *Level, side Side) bool {
	if lvl.Side != side || lvl.OrderID != "" {
		return false
	}
	return lvl.Status == LevelPending || lvl.Status == LevelFilled
}

func lowestAvailable(levels []Level, side Side, above float64) *Level {
	var best *Level
	for i := range levels {
		lvl := &levels[i]
		if !levelAvailable(lvl, side) || lvl.Price <= above {
			continue
		}
		if best == nil || lvl.Price < best.Price {
			best = lvl
		}
	}
	return best
}

func highestAvailable(levels []Level, side Side, below float64) *Level {
	var best *Level
	for i := range levels {
		lvl := &levels[i]
		if !levelAvailable(lvl, side) || lvl.Price >= below {
			continue
		}
		if best == nil || lvl.Price > best.Price {
			best = lvl
		}
	}
	return best
}
