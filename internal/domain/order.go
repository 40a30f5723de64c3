package domain

import "time"

type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderShipped  OrderStatus = "SHIPPED"
	OrderCanceled OrderStatus = "CANCELED"
)

type OrderItem struct {
	ProductID string
	Quantity  int
}

// Order is a checkout result. InventoryDeducted flips from false to true once,
// in the same transaction that ships the order, and is never reset.
type Order struct {
	ID                string
	Items             []OrderItem
	Status            OrderStatus
	InventoryDeducted bool
	ShipmentID        string
	ShipmentStatus    ShipmentStatus
	PaymentID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
