// Package events publishes domain events after a transaction commits.
// Publishing is best effort: callers log failures and never roll back.
package events

import (
	"context"
	"time"
)

type Type string

const (
	LockAcquired          Type = "lock.acquired"
	RegistrationCommitted Type = "registration.committed"
	RegistrationCanceled  Type = "registration.canceled"
	OrderShipped          Type = "order.shipped"
)

// Event is one domain fact. Key selects the partition so that events for the
// same aggregate stay ordered.
type Event struct {
	Type    Type      `json:"type"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type nopPublisher struct{}

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close() error                         { return nil }

type LockAcquiredPayload struct {
	LockID     string    `json:"lockId"`
	ResourceID string    `json:"resourceId"`
	HolderID   string    `json:"holderId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type RegistrationPayload struct {
	RegistrationID string `json:"registrationId"`
	ResourceID     string `json:"resourceId"`
	HolderID       string `json:"holderId"`
	PaymentID      string `json:"paymentId,omitempty"`
}

type OrderShippedPayload struct {
	OrderID           string `json:"orderId"`
	ShipmentID        string `json:"shipmentId"`
	Courier           string `json:"courier"`
	InventoryDeducted bool   `json:"inventoryDeducted"`
}
