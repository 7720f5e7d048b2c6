// Package grid implements the grid trading engine: level generation,
// range estimation, ladder lifecycle (initialize/cancel/rebalance),
// fill reaction, and breakout detection.
package grid

import (
	"errors"
	"fmt"
	"time"
)

// SpacingMode controls how level prices are distributed inside the range
type SpacingMode string

const (
	SpacingArithmetic SpacingMode = "arithmetic"
	SpacingGeometric  SpacingMode = "geometric"
)

// TradingMode controls which sides of the ladder the engine funds
type TradingMode string

const (
	// ModeNeutral places buys below and plans sells above the current price
	ModeNeutral TradingMode = "neutral"
	// ModeLong is a buy-only accumulation ladder
	ModeLong TradingMode = "long"
)

// RangeSource controls where the grid's price range comes from
type RangeSource string

const (
	RangeManual         RangeSource = "manual"
	RangeAutoVolatility RangeSource = "auto"
)

// Side of a level or order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LevelStatus lifecycle status of one planned level
type LevelStatus string

const (
	LevelPending   LevelStatus = "pending"
	LevelFilled    LevelStatus = "filled"
	LevelCancelled LevelStatus = "cancelled"
	// LevelSkipped marks the buffer level adjacent to the entry price.
	// Skipped levels never carry orders and are not counter-order targets.
	LevelSkipped LevelStatus = "skipped"
)

// OrderStatus lifecycle status of a resting order record
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
)

// BreakoutDirection result of a breakout check
type BreakoutDirection string

const (
	BreakoutNone     BreakoutDirection = "none"
	BreakoutUpward   BreakoutDirection = "upward"
	BreakoutDownward BreakoutDirection = "downward"
)

// Configuration errors, raised synchronously at construction time
var (
	ErrInvalidRange  = errors.New("invalid price range")
	ErrInvalidConfig = errors.New("invalid grid configuration")
)

// Config is the immutable configuration of one grid epoch.
// Replaced wholesale on rebalance, never partially mutated.
type Config struct {
	Symbol      string      `json:"symbol"`
	SpacingMode SpacingMode `json:"spacing_mode"`
	TradingMode TradingMode `json:"trading_mode"`
	RangeSource RangeSource `json:"range_source"`

	UpperPrice float64 `json:"upper_price"` // manual range source
	LowerPrice float64 `json:"lower_price"`

	LevelCount      int     `json:"level_count"`      // >= 5
	TotalInvestment float64 `json:"total_investment"` // quote currency, > 0

	// Volume weighting (optional)
	UseVolumeWeighting  bool    `json:"use_volume_weighting"`
	VolumeLookbackHours int     `json:"volume_lookback_hours"`
	ClusteringStrength  float64 `json:"clustering_strength"` // 1.0 - 3.0

	// Breakout handling
	BreakoutThreshold    float64 `json:"breakout_threshold"`     // fraction, e.g. 0.01 = 1%
	RangeExpansionFactor float64 `json:"range_expansion_factor"` // default 1.2

	// Auto-volatility range estimation
	VolatilityBufferPct float64 `json:"volatility_buffer_pct"`
}

// Validate checks the construction-time invariants. Configuration errors
// are fatal to the construction call and never silently corrected.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if c.LevelCount < 5 {
		return fmt.Errorf("%w: level count %d < 5", ErrInvalidConfig, c.LevelCount)
	}
	if c.TotalInvestment <= 0 {
		return fmt.Errorf("%w: total investment %.2f must be positive", ErrInvalidConfig, c.TotalInvestment)
	}
	switch c.SpacingMode {
	case SpacingArithmetic, SpacingGeometric:
	default:
		return fmt.Errorf("%w: unknown spacing mode %q", ErrInvalidConfig, c.SpacingMode)
	}
	switch c.TradingMode {
	case ModeNeutral, ModeLong:
	default:
		return fmt.Errorf("%w: unknown trading mode %q", ErrInvalidConfig, c.TradingMode)
	}
	if c.RangeSource == RangeManual {
		if c.UpperPrice <= c.LowerPrice {
			return fmt.Errorf("%w: upper %.4f <= lower %.4f", ErrInvalidRange, c.UpperPrice, c.LowerPrice)
		}
		if c.SpacingMode == SpacingGeometric && c.LowerPrice <= 0 {
			return fmt.Errorf("%w: geometric spacing requires positive lower bound", ErrInvalidRange)
		}
	}
	if c.UseVolumeWeighting && (c.ClusteringStrength < 1.0 || c.ClusteringStrength > 3.0) {
		return fmt.Errorf("%w: clustering strength %.2f outside [1.0, 3.0]", ErrInvalidConfig, c.ClusteringStrength)
	}
	return nil
}

// expansionFactor returns the configured range expansion factor or the default
func (c *Config) expansionFactor() float64 {
	if c.RangeExpansionFactor > 0 {
		return c.RangeExpansionFactor
	}
	return DefaultExpansionFactor
}

// Level is one planned price point in the ladder with its current status.
// A level with an empty OrderID and a non-cancelled status is available
// for the fill reactor to (re)arm.
type Level struct {
	Index   int         `json:"index"`
	Price   float64     `json:"price"`
	Side    Side        `json:"side"`
	Status  LevelStatus `json:"status"`
	OrderID string      `json:"order_id,omitempty"`
}

// RestingOrder is the record of one resting limit order and the capital it
// locks. Exactly one of ReservedQuote/ReservedBase is non-zero while the
// order is pending; both are zero once it leaves the pending state.
type RestingOrder struct {
	ID         string      `json:"id"`
	PositionID string      `json:"position_id"`
	OrderID    string      `json:"order_id"` // exchange-assigned
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Price      float64     `json:"price"`
	Size       float64     `json:"size"`       // base currency
	QuoteSize  float64     `json:"quote_size"` // Price * Size at placement
	Status     OrderStatus `json:"status"`

	ReservedQuote float64 `json:"reserved_quote"`
	ReservedBase  float64 `json:"reserved_base"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// releaseReservation zeroes both reservation fields. Called unconditionally
// whenever the order leaves the pending state, fill and cancel alike.
func (o *RestingOrder) releaseReservation() {
	o.ReservedQuote = 0
	o.ReservedBase = 0
}

// State is the mutable per-position grid summary. Owned exclusively by the
// Engine; replaced wholesale on every rebalance.
type State struct {
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`

	UpperPrice float64 `json:"upper_price"`
	LowerPrice float64 `json:"lower_price"`

	// Previous epoch's range, retained for audit after a rebalance
	PrevUpperPrice float64 `json:"prev_upper_price,omitempty"`
	PrevLowerPrice float64 `json:"prev_lower_price,omitempty"`

	Levels []Level `json:"levels"`

	BuyOrderCount  int `json:"buy_order_count"`
	SellOrderCount int `json:"sell_order_count"`

	RealizedProfit float64 `json:"realized_profit"`

	BreakoutCount int               `json:"breakout_count"`
	LastBreakout  BreakoutDirection `json:"last_breakout,omitempty"`

	InitializedAt time.Time `json:"initialized_at"`
}

// Fill is a confirmed execution on a resting order, reported by the
// external order-status poller.
type Fill struct {
	OrderID string  `json:"order_id"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"` // base currency filled
}

// OrderRepository is the persistence surface for resting-order records.
// Records are owned by the store but mutated only through the engine.
type OrderRepository interface {
	Create(o *RestingOrder) error
	Update(o *RestingOrder) error
	GetByOrderID(positionID, orderID string) (*RestingOrder, error)
	ListPending(positionID string) ([]*RestingOrder, error)
}

// StateRepository is the persistence surface for the per-position grid state
type StateRepository interface {
	Save(s *State) error
	// Load returns (nil, nil) when no state exists for the position
	Load(positionID string) (*State, error)
}
