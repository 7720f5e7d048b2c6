// Package exchange defines the venue-facing interfaces the grid engine
// depends on, together with the wire types shared by all adapters.
// Each venue adapter implements these independently; there is no shared
// base state between them.
package exchange

import (
	"context"
	"time"
)

// Order sides as the exchanges expect them
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Exchange-side order statuses (normalized)
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
)

// LimitOrderRequest represents a resting limit order to be placed
type LimitOrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"` // BUY/SELL
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"` // base currency
	TimeInForce string  `json:"time_in_force"`
	ClientID    string  `json:"client_id"` // client order ID for tracking
}

// LimitOrderResult represents the result of placing a limit order
type LimitOrderResult struct {
	OrderID  string  `json:"order_id"`
	ClientID string  `json:"client_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

// OrderStatus is the normalized answer to a status query
type OrderStatus struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"` // NEW/PARTIALLY_FILLED/FILLED/CANCELED
	FilledSize  float64 `json:"filled_size"`
	FilledPrice float64 `json:"filled_price"`
}

// Candle one OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Trade one historical trade, consumed by volume-weighted range estimation
type Trade struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Client is the order-operations surface the grid engine drives.
// All calls may fail or time out; a non-success answer means "could not
// confirm", never "definitely did not happen".
type Client interface {
	PlaceLimitOrder(ctx context.Context, req *LimitOrderRequest) (*LimitOrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error)
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
}

// MarketData supplies the historical data the range estimator consumes
type MarketData interface {
	GetRecentCandles(ctx context.Context, symbol string, lookback int) ([]Candle, error)
	GetRecentTrades(ctx context.Context, symbol string, hours int) ([]Trade, error)
}
