package models

import (
	"time"

	"github.com/google/uuid"
)

// Property is an interface-only collaborator: listing CRUD happens elsewhere,
// the core only reads what bookings reference.
type Property struct {
	ID         uuid.UUID `json:"id"`
	HostID     uuid.UUID `json:"host_id"`
	Title      string    `json:"title"`
	City       string    `json:"city"`
	NightlyFee int64     `json:"nightly_fee"` // minor units
	CreatedAt  time.Time `json:"created_at"`
}
