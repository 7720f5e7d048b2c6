package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// PaperExchange implements Client and MarketData against in-memory state.
// Used by tests and by dry-run mode. Price movement is driven externally
// through SetPrice; limit orders fill when the price crosses them.
type PaperExchange struct {
	mu sync.Mutex

	price       float64
	candles     []Candle
	trades      []Trade
	orders      map[string]*paperOrder
	nextOrderID int64

	// Failure injection for exercising the engine's degrade paths
	FailPlace  func(req *LimitOrderRequest) error
	FailCancel func(orderID string) error
}

type paperOrder struct {
	id       string
	symbol   string
	side     string
	price    float64
	quantity float64
	status   string
}

// NewPaperExchange creates a paper exchange at the given starting price
func NewPaperExchange(price float64) *PaperExchange {
	return &PaperExchange{
		price:       price,
		orders:      make(map[string]*paperOrder),
		nextOrderID: 1,
	}
}

// SetPrice moves the simulated market price and fills any crossed orders
func (p *PaperExchange) SetPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	for _, o := range p.orders {
		if o.status != StatusNew {
			continue
		}
		if o.side == SideBuy && price <= o.price {
			o.status = StatusFilled
		} else if o.side == SideSell && price >= o.price {
			o.status = StatusFilled
		}
	}
}

// SetCandles seeds the candle history returned by GetRecentCandles
func (p *PaperExchange) SetCandles(candles []Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = candles
}

// SetTrades seeds the trade history returned by GetRecentTrades
func (p *PaperExchange) SetTrades(trades []Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = trades
}

// ForceFill marks an order filled regardless of price, for tests
func (p *PaperExchange) ForceFill(orderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || o.status != StatusNew {
		return false
	}
	o.status = StatusFilled
	return true
}

// OpenOrderCount returns the number of resting (NEW) orders
func (p *PaperExchange) OpenOrderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.orders {
		if o.status == StatusNew {
			n++
		}
	}
	return n
}

// PlaceLimitOrder records a resting order
func (p *PaperExchange) PlaceLimitOrder(_ context.Context, req *LimitOrderRequest) (*LimitOrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailPlace != nil {
		if err := p.FailPlace(req); err != nil {
			return nil, err
		}
	}

	id := strconv.FormatInt(p.nextOrderID, 10)
	p.nextOrderID++
	p.orders[id] = &paperOrder{
		id:       id,
		symbol:   req.Symbol,
		side:     req.Side,
		price:    req.Price,
		quantity: req.Quantity,
		status:   StatusNew,
	}

	return &LimitOrderResult{
		OrderID:  id,
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Status:   StatusNew,
	}, nil
}

// CancelOrder cancels a resting order
func (p *PaperExchange) CancelOrder(_ context.Context, _ string, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailCancel != nil {
		if err := p.FailCancel(orderID); err != nil {
			return err
		}
	}

	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper exchange: unknown order %s", orderID)
	}
	if o.status == StatusNew {
		o.status = StatusCanceled
	}
	return nil
}

// GetOrderStatus reports a simulated order's status
func (p *PaperExchange) GetOrderStatus(_ context.Context, _ string, orderID string) (*OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("paper exchange: unknown order %s", orderID)
	}

	st := &OrderStatus{OrderID: orderID, Status: o.status}
	if o.status == StatusFilled {
		st.FilledSize = o.quantity
		st.FilledPrice = o.price
	}
	return st, nil
}

// GetMarketPrice returns the simulated market price
func (p *PaperExchange) GetMarketPrice(_ context.Context, _ string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price, nil
}

// GetRecentCandles returns the seeded candle history
func (p *PaperExchange) GetRecentCandles(_ context.Context, _ string, lookback int) ([]Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lookback > 0 && len(p.candles) > lookback {
		return p.candles[len(p.candles)-lookback:], nil
	}
	return p.candles, nil
}

// GetRecentTrades returns the seeded trade history
func (p *PaperExchange) GetRecentTrades(_ context.Context, _ string, _ int) ([]Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trades, nil
}
