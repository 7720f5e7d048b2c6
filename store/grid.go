package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gridbot/grid"
)

// ==================== Grid Store Models ====================

// GridStateModel GORM model for grid_states table, one row per position
type GridStateModel struct {
	PositionID string `json:"position_id" gorm:"primaryKey"`
	Symbol     string `json:"symbol" gorm:"not null"`

	UpperPrice     float64 `json:"upper_price"`
	LowerPrice     float64 `json:"lower_price"`
	PrevUpperPrice float64 `json:"prev_upper_price"`
	PrevLowerPrice float64 `json:"prev_lower_price"`

	BuyOrderCount  int     `json:"buy_order_count"`
	SellOrderCount int     `json:"sell_order_count"`
	RealizedProfit float64 `json:"realized_profit" gorm:"default:0"`

	BreakoutCount int    `json:"breakout_count" gorm:"default:0"`
	LastBreakout  string `json:"last_breakout"`

	InitializedAt time.Time `json:"initialized_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GridStateModel) TableName() string {
	return "grid_states"
}

// GridLevelModel GORM model for grid_levels table
type GridLevelModel struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	PositionID string    `json:"position_id" gorm:"index;not null"`
	LevelIndex int       `json:"level_index" gorm:"not null"`
	Price      float64   `json:"price" gorm:"not null"`
	Side       string    `json:"side"`
	Status     string    `json:"status" gorm:"not null"`
	OrderID    string    `json:"order_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GridLevelModel) TableName() string {
	return "grid_levels"
}

// GridEventModel GORM model for grid_events table (append-only audit log)
type GridEventModel struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	PositionID string    `json:"position_id" gorm:"index;not null"`
	EventType  string    `json:"event_type" gorm:"not null"`
	EventTime  time.Time `json:"event_time" gorm:"autoCreateTime"`
	Price      float64   `json:"price,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	Side       string    `json:"side,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	Message    string    `json:"message,omitempty" gorm:"type:text"`
}

func (GridEventModel) TableName() string {
	return "grid_events"
}

// Grid event types
const (
	EventInitialized    = "initialized"
	EventOrderFilled    = "order_filled"
	EventOrdersCanceled = "orders_canceled"
	EventBreakout       = "breakout"
	EventRebalanced     = "rebalanced"
)

// ==================== Grid Store ====================

// GridStore provides database operations for grid state and events.
// Implements grid.StateRepository.
type GridStore struct {
	db *gorm.DB
}

// NewGridStore creates a new grid store
func NewGridStore(db *gorm.DB) *GridStore {
	return &GridStore{db: db}
}

// Save replaces the position's grid state wholesale: the state row is
// upserted and the level rows are rewritten in one transaction, so a
// partially written plan is never observable.
func (s *GridStore) Save(st *grid.State) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(stateToModel(st)).Error; err != nil {
			return err
		}
		if err := tx.Where("position_id = ?", st.PositionID).Delete(&GridLevelModel{}).Error; err != nil {
			return err
		}
		if len(st.Levels) == 0 {
			return nil
		}
		rows := make([]GridLevelModel, 0, len(st.Levels))
		for _, lvl := range st.Levels {
			rows = append(rows, GridLevelModel{
				ID:         uuid.New().String(),
				PositionID: st.PositionID,
				LevelIndex: lvl.Index,
				Price:      lvl.Price,
				Side:       string(lvl.Side),
				Status:     string(lvl.Status),
				OrderID:    lvl.OrderID,
			})
		}
		return tx.Create(&rows).Error
	})
}

// Load returns the position's grid state with its level plan, (nil, nil)
// when the position has never been initialized
func (s *GridStore) Load(positionID string) (*grid.State, error) {
	var m GridStateModel
	err := s.db.Where("position_id = ?", positionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var levelRows []GridLevelModel
	if err := s.db.Where("position_id = ?", positionID).Order("level_index ASC").Find(&levelRows).Error; err != nil {
		return nil, err
	}

	st := stateFromModel(&m)
	st.Levels = make([]grid.Level, 0, len(levelRows))
	for _, row := range levelRows {
		st.Levels = append(st.Levels, grid.Level{
			Index:   row.LevelIndex,
			Price:   row.Price,
			Side:    grid.Side(row.Side),
			Status:  grid.LevelStatus(row.Status),
			OrderID: row.OrderID,
		})
	}
	return st, nil
}

// Delete removes a position's grid state, levels and events
func (s *GridStore) Delete(positionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("position_id = ?", positionID).Delete(&GridLevelModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("position_id = ?", positionID).Delete(&GridEventModel{}).Error; err != nil {
			return err
		}
		return tx.Where("position_id = ?", positionID).Delete(&GridStateModel{}).Error
	})
}

// SaveEvent appends one audit event
func (s *GridStore) SaveEvent(e *GridEventModel) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EventTime.IsZero() {
		e.EventTime = time.Now()
	}
	return s.db.Create(e).Error
}

// RecentEvents lists the newest events for a position
func (s *GridStore) RecentEvents(positionID string, limit int) ([]GridEventModel, error) {
	var events []GridEventModel
	err := s.db.Where("position_id = ?", positionID).
		Order("event_time DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func stateToModel(st *grid.State) *GridStateModel {
	return &GridStateModel{
		PositionID:     st.PositionID,
		Symbol:         st.Symbol,
		UpperPrice:     st.UpperPrice,
		LowerPrice:     st.LowerPrice,
		PrevUpperPrice: st.PrevUpperPrice,
		PrevLowerPrice: st.PrevLowerPrice,
		BuyOrderCount:  st.BuyOrderCount,
		SellOrderCount: st.SellOrderCount,
		RealizedProfit: st.RealizedProfit,
		BreakoutCount:  st.BreakoutCount,
		LastBreakout:   string(st.LastBreakout),
		InitializedAt:  st.InitializedAt,
	}
}

func stateFromModel(m *GridStateModel) *grid.State {
	return &grid.State{
		PositionID:     m.PositionID,
		Symbol:         m.Symbol,
		UpperPrice:     m.UpperPrice,
		LowerPrice:     m.LowerPrice,
		PrevUpperPrice: m.PrevUpperPrice,
		PrevLowerPrice: m.PrevLowerPrice,
		BuyOrderCount:  m.BuyOrderCount,
		SellOrderCount: m.SellOrderCount,
		RealizedProfit: m.RealizedProfit,
		BreakoutCount:  m.BreakoutCount,
		LastBreakout:   grid.BreakoutDirection(m.LastBreakout),
		InitializedAt:  m.InitializedAt,
	}
}
