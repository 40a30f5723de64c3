package domain

// Resource is a finite-capacity thing that can be reserved one unit at a time
// (an event and its seats).
type Resource struct {
	ID         string
	Name       string
	Capacity   int
	Registered int
}

// Available derives the remaining capacity from committed registrations plus
// the number of currently active locks. Callers gating a write on the result
// must read both inputs in the same transaction as that write.
func Available(r Resource, activeLocks int) int {
	return r.Capacity - r.Registered - activeLocks
}
