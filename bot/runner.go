package bot

import (
	"context"
	"time"

	"gridbot/exchange"
	"gridbot/grid"
	"gridbot/logger"
	"gridbot/store"
)

// cycleTimeout bounds one full evaluation tick, exchange round-trips included
const cycleTimeout = 2 * time.Minute

// Position is one independently traded grid position
type Position struct {
	ID     string
	Config *grid.Config
}

// Runner evaluates a single position on a recurring tick: poll resting
// orders for fills, feed fills to the engine, check for a breakout and
// rebalance when one is flagged. One runner per position; positions never
// share state.
type Runner struct {
	position *Position
	engine   *grid.Engine
	client   exchange.Client
	orders   *store.OrderStore
	grids    *store.GridStore
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRunner creates a runner for one position
func NewRunner(pos *Position, engine *grid.Engine, client exchange.Client, st *store.Store, interval time.Duration) *Runner {
	return &Runner{
		position: pos,
		engine:   engine,
		client:   client,
		orders:   st.Order(),
		grids:    st.Grid(),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the evaluation loop
func (r *Runner) Start() {
	go r.run()
}

// Stop halts the evaluation loop and waits for the in-flight cycle
func (r *Runner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Runner) run() {
	defer close(r.doneCh)

	logger.Infof("[Bot] Runner started for %s (%s), tick %s",
		r.position.ID, r.position.Config.Symbol, r.interval)

	// First cycle immediately, then on the ticker
	r.cycle()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			logger.Infof("[Bot] Runner stopped for %s", r.position.ID)
			return
		case <-ticker.C:
			r.cycle()
		}
	}
}

// cycle runs one evaluation tick. Every step degrades independently: a
// failed status poll or rebalance is logged and retried on the next tick.
func (r *Runner) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	pos := r.position

	state, err := r.grids.Load(pos.ID)
	if err != nil {
		logger.Errorf("[Bot] Failed to load grid state for %s: %v", pos.ID, err)
		return
	}

	if state == nil {
		if _, err := r.engine.Initialize(ctx, pos.ID, pos.Config); err != nil {
			logger.Errorf("[Bot] Failed to initialize grid for %s: %v", pos.ID, err)
			return
		}
		r.event(&store.GridEventModel{
			PositionID: pos.ID,
			EventType:  store.EventInitialized,
			Message:    pos.Config.Symbol,
		})
		return
	}

	r.pollFills(ctx)
	r.checkBreakout(ctx, state)
}

// pollFills queries the exchange for each still-pending order and hands
// confirmed fills to the engine's fill reactor
func (r *Runner) pollFills(ctx context.Context) {
	pos := r.position

	pending, err := r.orders.ListPending(pos.ID)
	if err != nil {
		logger.Errorf("[Bot] Failed to list pending orders for %s: %v", pos.ID, err)
		return
	}

	for _, o := range pending {
		status, err := r.client.GetOrderStatus(ctx, o.Symbol, o.OrderID)
		if err != nil {
			logger.Warnf("[Bot] Failed to query order %s for %s: %v", o.OrderID, pos.ID, err)
			continue
		}
		if status.Status != exchange.StatusFilled {
			continue
		}

		fill := &grid.Fill{
			OrderID: o.OrderID,
			Price:   status.FilledPrice,
			Size:    status.FilledSize,
		}
		if fill.Price <= 0 {
			fill.Price = o.Price
		}
		if fill.Size <= 0 {
			fill.Size = o.Size
		}

		if err := r.engine.OnOrderFilled(ctx, pos.ID, pos.Config, fill); err != nil {
			logger.Errorf("[Bot] Fill reaction failed for order %s (%s): %v", o.OrderID, pos.ID, err)
			continue
		}
		r.event(&store.GridEventModel{
			PositionID: pos.ID,
			EventType:  store.EventOrderFilled,
			Price:      fill.Price,
			Quantity:   fill.Size,
			Side:       string(o.Side),
		})
	}
}

// checkBreakout compares the current price against the recorded range and
// triggers a rebalance when the threshold is cleared
func (r *Runner) checkBreakout(ctx context.Context, state *grid.State) {
	pos := r.position

	price, err := r.client.GetMarketPrice(ctx, pos.Config.Symbol)
	if err != nil {
		logger.Warnf("[Bot] Failed to get price for %s: %v", pos.Config.Symbol, err)
		return
	}

	dir := grid.DetectBreakout(price, state.LowerPrice, state.UpperPrice, pos.Config.BreakoutThreshold)
	if dir == grid.BreakoutNone {
		return
	}

	r.event(&store.GridEventModel{
		PositionID: pos.ID,
		EventType:  store.EventBreakout,
		Price:      price,
		Message:    string(dir),
	})

	newState, err := r.engine.Rebalance(ctx, pos.ID, pos.Config, dir)
	if err != nil {
		logger.Errorf("[Bot] Rebalance failed for %s: %v", pos.ID, err)
		return
	}
	r.event(&store.GridEventModel{
		PositionID: pos.ID,
		EventType:  store.EventRebalanced,
		Price:      price,
		PnL:        newState.RealizedProfit,
	})
}

func (r *Runner) event(e *store.GridEventModel) {
	if err := r.grids.SaveEvent(e); err != nil {
		logger.Warnf("[Bot] Failed to record %s event for %s: %v", e.EventType, e.PositionID, err)
	}
}
