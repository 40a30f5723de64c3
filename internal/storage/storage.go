// Package storage defines the transactional store contract shared by every
// backend. Within a transaction all reads happen before any write; Run makes
// that ordering structural by handing the read phase only a Reader and the
// write phase only a Writer.
package storage

import (
	"context"
	"time"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
)

// Reader is the read half of a transaction.
type Reader interface {
	// GetResource reads a resource and, where the store supports it, holds its
	// row until the transaction ends. Use it when a write depends on the result.
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	// PeekResource reads a resource without taking a row lock, for read-only
	// transactions.
	PeekResource(ctx context.Context, id string) (domain.Resource, error)
	FindActiveLock(ctx context.Context, resourceID, holderID string, now time.Time) (*domain.Lock, error)
	CountActiveLocks(ctx context.Context, resourceID string, now time.Time) (int, error)
	ListExpiredLocks(ctx context.Context, now time.Time, limit int) ([]domain.Lock, error)
	FindRegistration(ctx context.Context, resourceID, holderID, paymentID string) (*domain.Registration, error)
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	// GetStockItems returns the items that exist; missing ids are simply absent
	// from the map.
	GetStockItems(ctx context.Context, ids []string) (map[string]domain.StockItem, error)
}

// Writer is the write half of a transaction.
type Writer interface {
	CreateResource(ctx context.Context, r domain.Resource) error
	UpsertStockItem(ctx context.Context, item domain.StockItem) error
	CreateOrder(ctx context.Context, o domain.Order) error

	CreateLock(ctx context.Context, l domain.Lock) error
	DeleteLock(ctx context.Context, id string) error
	DeleteHolderLocks(ctx context.Context, resourceID, holderID string) error

	CreateRegistration(ctx context.Context, reg domain.Registration) error
	SetRegistrationStatus(ctx context.Context, id string, status domain.RegistrationStatus) error
	// AdjustRegistered applies delta to a resource's committed count. Stores
	// reject results outside [0, capacity].
	AdjustRegistered(ctx context.Context, resourceID string, delta int) error

	AdjustStock(ctx context.Context, productID string, stockDelta, salesDelta int) error
	CreateShipment(ctx context.Context, s domain.Shipment) error
	MarkOrderShipped(ctx context.Context, orderID string, u ShippedUpdate) error
	SetOrderPayment(ctx context.Context, orderID, paymentID string, at time.Time) error
}

// ShippedUpdate is the order mutation performed when a shipment is created.
type ShippedUpdate struct {
	ShipmentID        string
	ShipmentStatus    domain.ShipmentStatus
	InventoryDeducted bool
	At                time.Time
}

// Store runs one transaction attempt. Implementations must return
// domain.ErrTransactionConflict when the attempt lost a race and may be retried
// from scratch. Application code goes through Run, never Attempt.
type Store interface {
	Attempt(ctx context.Context, fn func(ctx context.Context, r Reader, w Writer) error) error
}
