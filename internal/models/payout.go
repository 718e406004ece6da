package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payout statuses mirror the booking payout axis.
const (
	PayoutRecordPending  = "pending"
	PayoutRecordReleased = "released"
	PayoutRecordFailed   = "failed"
	PayoutRecordOnHold   = "on_hold"
)

// Payout is the logical release attempt for a payment. One row per payment,
// upserted by the release scheduler only.
type Payout struct {
	ID                 uuid.UUID       `json:"id"`
	PaymentID          uuid.UUID       `json:"payment_id"`
	BookingID          uuid.UUID       `json:"booking_id"`
	Amount             int64           `json:"amount"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	ProviderTransferID *string         `json:"provider_transfer_id,omitempty"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty"`
	AttemptCount       int             `json:"attempt_count"`
	LastError          *string         `json:"last_error,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
