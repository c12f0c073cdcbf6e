package types

import "time"

// Entity is the base type for ledger records with timestamps.
// Timestamps come from the ledger clock, not the wall clock.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with now.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch sets UpdatedAt to now.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}

// Age returns how long before now the entity was created.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
