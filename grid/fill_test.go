package grid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuyFillPlacesCounterSell(t *testing.T) {
	engine, paper, orders, states := newTestEngine(50)
	ctx := context.Background()
	cfg := neutralConfig()

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)

	buy := orders.byPrice("pos-1", 48.3333)
	require.NotNil(t, buy)
	require.True(t, paper.ForceFill(buy.OrderID))

	err = engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{
		OrderID: buy.OrderID,
		Price:   48.3333,
		Size:    5.17,
	})
	require.NoError(t, err)

	// Filled buy releases its reservation
	filled, err := orders.GetByOrderID("pos-1", buy.OrderID)
	require.NoError(t, err)
	require.Equal(t, OrderFilled, filled.Status)
	require.Zero(t, filled.ReservedQuote)
	require.Zero(t, filled.ReservedBase)

	// Counter-sell lands on the lowest planned sell level above the fill,
	// sized to exactly the base just acquired
	sell := orders.byPrice("pos-1", 51.6667)
	require.NotNil(t, sell)
	require.Equal(t, SideSell, sell.Side)
	require.Equal(t, OrderPending, sell.Status)
	require.InDelta(t, 5.17, sell.Size, 1e-9)
	require.InDelta(t, 5.17, sell.ReservedBase, 1e-9)
	require.Zero(t, sell.ReservedQuote)

	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.Equal(t, 3, state.BuyOrderCount)
	require.Equal(t, 1, state.SellOrderCount)

	// The filled level is released for a later counter-order
	for _, lvl := range state.Levels {
		switch {
		case lvl.Index == 3:
			require.Equal(t, LevelFilled, lvl.Status)
			require.Empty(t, lvl.OrderID)
		case lvl.Index == 6:
			require.Equal(t, LevelPending, lvl.Status)
			require.Equal(t, sell.OrderID, lvl.OrderID)
		}
	}
}

func TestSellFillPlacesCounterBuyAndRealizesProfit(t *testing.T) {
	engine, paper, orders, states := newTestEngine(50)
	ctx := context.Background()
	cfg := neutralConfig()

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)

	// Complete one buy-low/sell-high cycle
	buy := orders.byPrice("pos-1", 48.3333)
	require.True(t, paper.ForceFill(buy.OrderID))
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{
		OrderID: buy.OrderID, Price: 48.3333, Size: 5.17,
	}))

	sell := orders.byPrice("pos-1", 51.6667)
	require.NotNil(t, sell)
	require.True(t, paper.ForceFill(sell.OrderID))
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{
		OrderID: sell.OrderID, Price: 51.6667, Size: 5.17,
	}))

	// Profit is the sell proceeds over the buy level the inventory came from
	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.InDelta(t, (51.6667-48.3333)*5.17, state.RealizedProfit, 0.01)

	// Counter-buy re-arms the released buy level with the quote received
	var rearmed *RestingOrder
	for _, o := range orders.all("pos-1") {
		if o.Side == SideBuy && o.Status == OrderPending && o.ID != buy.ID &&
			o.Price > 48.0 && o.Price < 49.0 {
			rearmed = o
		}
	}
	require.NotNil(t, rearmed)
	require.InDelta(t, 48.3333, rearmed.Price, 0.001)
	quote := 51.6667 * 5.17
	require.InDelta(t, quote, rearmed.ReservedQuote, 1e-6)
	require.InDelta(t, quote/rearmed.Price, rearmed.Size, 1e-6)

	require.Equal(t, 4, state.BuyOrderCount)
	require.Equal(t, 0, state.SellOrderCount)
}

func TestFillUnknownOrder(t *testing.T) {
	engine, paper, orders, states := newTestEngine(50)
	ctx := context.Background()
	cfg := neutralConfig()

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)
	before := paper.OpenOrderCount()

	// Acknowledged without a counter-order: no plan context exists for it
	err = engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{OrderID: "ghost-123", Price: 48, Size: 1})
	require.NoError(t, err)
	require.Equal(t, before, paper.OpenOrderCount())

	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.Equal(t, 4, state.BuyOrderCount)
	require.Equal(t, 0, state.SellOrderCount)
	require.Len(t, orders.all("pos-1"), 4)
}

func TestFillReportedTwice(t *testing.T) {
	engine, paper, orders, states := newTestEngine(50)
	ctx := context.Background()
	cfg := neutralConfig()

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)

	buy := orders.byPrice("pos-1", 48.3333)
	require.True(t, paper.ForceFill(buy.OrderID))

	fill := &Fill{OrderID: buy.OrderID, Price: 48.3333, Size: 5.17}
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, fill))
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, fill))

	// Reacting twice would double-place the counter-sell
	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.Equal(t, 1, state.SellOrderCount)

	sells := 0
	for _, o := range orders.all("pos-1") {
		if o.Side == SideSell {
			sells++
		}
	}
	require.Equal(t, 1, sells)
}

func TestLongModeFillNoCounter(t *testing.T) {
	engine, paper, orders, states := newTestEngine(50)
	ctx := context.Background()
	cfg := neutralConfig()
	cfg.TradingMode = ModeLong

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)

	buy := orders.byPrice("pos-1", 45)
	require.NotNil(t, buy)
	require.True(t, paper.ForceFill(buy.OrderID))
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{
		OrderID: buy.OrderID, Price: 45, Size: buy.Size,
	}))

	// The fill accumulates position; nothing new is placed
	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.Equal(t, 9, state.BuyOrderCount)
	require.Equal(t, 0, state.SellOrderCount)
	require.Len(t, orders.all("pos-1"), 10)
}

func TestFillAtLadderEdgeNoCounter(t *testing.T) {
	// Price just under the upper bound: the only level above is the
	// adjacent buffer, so a buy fill has nowhere to counter
	engine, paper, orders, states := newTestEngine(54.8)
	ctx := context.Background()
	cfg := neutralConfig()

	_, err := engine.Initialize(ctx, "pos-1", cfg)
	require.NoError(t, err)

	buy := orders.byPrice("pos-1", 52.7778)
	require.NotNil(t, buy)
	require.True(t, paper.ForceFill(buy.OrderID))
	require.NoError(t, engine.OnOrderFilled(ctx, "pos-1", cfg, &Fill{
		OrderID: buy.OrderID, Price: 52.7778, Size: 1.0,
	}))

	state, err := states.Load("pos-1")
	require.NoError(t, err)
	require.Equal(t, 0, state.SellOrderCount)
	for _, o := range orders.all("pos-1") {
		require.Equal(t, SideBuy, o.Side)
	}
}
