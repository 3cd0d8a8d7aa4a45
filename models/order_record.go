package models

import "time"

// OrderStatus enumerates purchase/contract states
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SettledOrderStatuses are the statuses whose customer phone is trusted
var SettledOrderStatuses = []OrderStatus{OrderStatusApproved, OrderStatusCompleted}

// IsSettled reports whether the order reached a trusted state
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusApproved || s == OrderStatusCompleted
}

// OrderRecord is a historical purchase/contract record. Specialists who bought a
// package left a customer phone that is usually more reliable than the directory one.
type OrderRecord struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CustomerName  string      `gorm:"size:255;not null;default:''" json:"customer_name"`
	CustomerEmail *string     `gorm:"size:255;index:idx_orders_customer_email" json:"customer_email,omitempty"`
	CustomerPhone *string     `gorm:"size:32" json:"customer_phone,omitempty"`
	Status        OrderStatus `gorm:"size:20;not null;index:idx_orders_status" json:"status"`
	CreatedAt     time.Time   `gorm:"default:CURRENT_TIMESTAMP;index:idx_orders_created_at" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (OrderRecord) TableName() string { return "orders" }

// OrderRecordFilter provides filter fields for repository queries
type OrderRecordFilter struct {
	ID            *uint
	CustomerEmail *string
	NameContains  *string
	Statuses      []OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
