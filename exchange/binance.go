package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"gridbot/logger"
)

// BinanceClient adapts the Binance spot API to the Client and MarketData
// interfaces. One instance per (credential, symbol precision) pair.
type BinanceClient struct {
	client *binance.Client

	// Exchange filters: decimal places accepted for price and quantity
	pricePrecision int32
	qtyPrecision   int32
}

// NewBinanceClient creates a Binance spot adapter
func NewBinanceClient(apiKey, apiSecret string, pricePrecision, qtyPrecision int32) *BinanceClient {
	return &BinanceClient{
		client:         binance.NewClient(apiKey, apiSecret),
		pricePrecision: pricePrecision,
		qtyPrecision:   qtyPrecision,
	}
}

// formatPrice rounds a price to the precision the exchange accepts
func (b *BinanceClient) formatPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(b.pricePrecision).String()
}

// formatQuantity truncates a quantity to the accepted step precision.
// Truncation, not rounding: rounding up can exceed the available balance.
func (b *BinanceClient) formatQuantity(q float64) string {
	return decimal.NewFromFloat(q).Truncate(b.qtyPrecision).String()
}

// PlaceLimitOrder places a GTC limit order
func (b *BinanceClient) PlaceLimitOrder(ctx context.Context, req *LimitOrderRequest) (*LimitOrderResult, error) {
	tif := binance.TimeInForceTypeGTC
	if req.TimeInForce != "" {
		tif = binance.TimeInForceType(req.TimeInForce)
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(tif).
		Price(b.formatPrice(req.Price)).
		Quantity(b.formatQuantity(req.Quantity))
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance place limit order failed: %w", err)
	}

	return &LimitOrderResult{
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		ClientID: res.ClientOrderID,
		Symbol:   res.Symbol,
		Side:     string(res.Side),
		Price:    req.Price,
		Quantity: req.Quantity,
		Status:   string(res.Status),
	}, nil
}

// CancelOrder cancels a resting order by exchange order ID
func (b *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("binance cancel order %s failed: %w", orderID, err)
	}
	return nil
}

// GetOrderStatus queries a single order
func (b *BinanceClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}
	o, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance get order %s failed: %w", orderID, err)
	}

	executed, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(o.CummulativeQuoteQuantity, 64)
	price, _ := strconv.ParseFloat(o.Price, 64)

	// Average fill price when anything executed, limit price otherwise
	filledPrice := price
	if executed > 0 && quote > 0 {
		filledPrice = quote / executed
	}

	return &OrderStatus{
		OrderID:     orderID,
		Status:      string(o.Status),
		FilledSize:  executed,
		FilledPrice: filledPrice,
	}, nil
}

// GetMarketPrice returns the last traded price for a symbol
func (b *BinanceClient) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance get price for %s failed: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance returned no price for %s", symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance returned unparseable price %q: %w", prices[0].Price, err)
	}
	return p, nil
}

// GetRecentCandles returns the most recent 1h candles, oldest first
func (b *BinanceClient) GetRecentCandles(ctx context.Context, symbol string, lookback int) ([]Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval("1h").
		Limit(lookback).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance get klines for %s failed: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	return candles, nil
}

// GetRecentTrades returns aggregated trades for the last N hours
func (b *BinanceClient) GetRecentTrades(ctx context.Context, symbol string, hours int) ([]Trade, error) {
	start := time.Now().Add(-time.Duration(hours) * time.Hour)
	aggTrades, err := b.client.NewAggTradesService().
		Symbol(symbol).
		StartTime(start.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance get agg trades for %s failed: %w", symbol, err)
	}

	trades := make([]Trade, 0, len(aggTrades))
	for _, t := range aggTrades {
		price, _ := strconv.ParseFloat(t.Price, 64)
		size, _ := strconv.ParseFloat(t.Quantity, 64)
		if price <= 0 || size <= 0 {
			logger.Debugf("[Binance] Skipping unparseable agg trade %d for %s", t.AggTradeID, symbol)
			continue
		}
		trades = append(trades, Trade{Price: price, Size: size})
	}
	return trades, nil
}
