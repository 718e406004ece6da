package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a minimal account record. Registration and profile management live
// in an external service; the core only needs identity, role and the host's
// payout destination.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"` // guest/host/admin
	PasswordHash string    `json:"-"`

	// Host payout destination, consumed by the transfer call.
	BankCode      *string `json:"bank_code,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	// Provider-side transfer recipient handle, cached after first resolve.
	TransferRecipient *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
