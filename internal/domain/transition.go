package domain

import "time"

// Transition records a single accepted lifecycle change. It is never mutated after creation.
type Transition struct {
	ID         string
	SlabID     string
	FromStatus Status
	ToStatus   Status
	Reason     *string
	Actor      *string
	CreatedAt  time.Time
}
