package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"gridbot/grid"
)

// RestingOrderModel GORM model for resting_orders table
type RestingOrderModel struct {
	ID         string `json:"id" gorm:"primaryKey"`
	PositionID string `json:"position_id" gorm:"index;not null"`
	OrderID    string `json:"order_id" gorm:"index;not null"`
	Symbol     string `json:"symbol" gorm:"not null"`
	Side       string `json:"side" gorm:"not null"`

	Price     float64 `json:"price" gorm:"not null"`
	Size      float64 `json:"size" gorm:"not null"`
	QuoteSize float64 `json:"quote_size"`
	Status    string  `json:"status" gorm:"index;not null"`

	ReservedQuote float64 `json:"reserved_quote"`
	ReservedBase  float64 `json:"reserved_base"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (RestingOrderModel) TableName() string {
	return "resting_orders"
}

// OrderStore provides database operations for resting-order records.
// Implements grid.OrderRepository.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore creates a new order store
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create persists a new resting-order record
func (s *OrderStore) Create(o *grid.RestingOrder) error {
	return s.db.Create(orderToModel(o)).Error
}

// Update saves an existing resting-order record
func (s *OrderStore) Update(o *grid.RestingOrder) error {
	return s.db.Save(orderToModel(o)).Error
}

// GetByOrderID loads one order by exchange order id, (nil, nil) when absent
func (s *OrderStore) GetByOrderID(positionID, orderID string) (*grid.RestingOrder, error) {
	var m RestingOrderModel
	err := s.db.Where("position_id = ? AND order_id = ?", positionID, orderID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return orderFromModel(&m), nil
}

// ListPending lists the position's still-pending orders in price order
func (s *OrderStore) ListPending(positionID string) ([]*grid.RestingOrder, error) {
	var models []RestingOrderModel
	err := s.db.Where("position_id = ? AND status IN ?",
		positionID, []string{string(grid.OrderPending), string(grid.OrderPartiallyFilled)}).
		Order("price ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*grid.RestingOrder, 0, len(models))
	for i := range models {
		orders = append(orders, orderFromModel(&models[i]))
	}
	return orders, nil
}

func orderToModel(o *grid.RestingOrder) *RestingOrderModel {
	return &RestingOrderModel{
		ID:            o.ID,
		PositionID:    o.PositionID,
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Price:         o.Price,
		Size:          o.Size,
		QuoteSize:     o.QuoteSize,
		Status:        string(o.Status),
		ReservedQuote: o.ReservedQuote,
		ReservedBase:  o.ReservedBase,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func orderFromModel(m *RestingOrderModel) *grid.RestingOrder {
	return &grid.RestingOrder{
		ID:            m.ID,
		PositionID:    m.PositionID,
		OrderID:       m.OrderID,
		Symbol:        m.Symbol,
		Side:          grid.Side(m.Side),
		Price:         m.Price,
		Size:          m.Size,
		QuoteSize:     m.QuoteSize,
		Status:        grid.OrderStatus(m.Status),
		ReservedQuote: m.ReservedQuote,
		ReservedBase:  m.ReservedBase,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
