package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment providers
const (
	ProviderPaystack    = "paystack"
	ProviderFlutterwave = "flutterwave"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment is the single payment attempt record for a booking. Amount is in
// integer minor units. ProcessedEvents is the idempotency record of provider
// event ids already applied; it only ever grows.
type Payment struct {
	ID          uuid.UUID `json:"id"`
	BookingID   uuid.UUID `json:"booking_id"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`

	ProcessedEvents []string `json:"-"`

	// HostEarnings is the amount owed to the host once the escrow hold
	// clears (room fee + cleaning fee).
	HostEarnings    int64 `json:"host_earnings"`
	PayoutReleased  bool  `json:"payout_released"`
	DepositReturned bool  `json:"deposit_returned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
