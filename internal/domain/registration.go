package domain

import "time"

type RegistrationStatus string

const (
	RegistrationActive   RegistrationStatus = "ACTIVE"
	RegistrationCanceled RegistrationStatus = "CANCELED"
)

// Registration is the committed form of a lock: a paid unit of capacity.
type Registration struct {
	ID         string
	ResourceID string
	HolderID   string
	PaymentID  string
	Status     RegistrationStatus
	CreatedAt  time.Time
}
