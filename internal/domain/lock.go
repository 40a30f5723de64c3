package domain

import "time"

// Lock is a soft hold on one unit of a resource's capacity. A lock past
// ExpiresAt is treated as absent even while its record still exists.
type Lock struct {
	ID         string
	ResourceID string
	HolderID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Active reports whether the lock still holds capacity at now.
func (l Lock) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
