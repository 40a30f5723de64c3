package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ShipmentStatus string

const (
	ShipmentNew       ShipmentStatus = "NEW"
	ShipmentPickedUp  ShipmentStatus = "PICKED_UP"
	ShipmentInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
	ShipmentCanceled  ShipmentStatus = "CANCELED"
)

// Valid reports whether s is one of the known courier states.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentNew, ShipmentPickedUp, ShipmentInTransit, ShipmentDelivered, ShipmentCanceled:
		return true
	}
	return false
}

// Shipment is created at most once per order.
type Shipment struct {
	ID        string
	OrderID   string
	Courier   string
	AWBCode   string
	Address   string
	Weight    decimal.Decimal
	Status    ShipmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
