package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EscrowEvent is one immutable ledger entry for a booking. EventType and the
// party fields use the constants from internal/escrow. ProviderResponse keeps
// the unprocessed provider payload for forward compatibility.
type EscrowEvent struct {
	ID          uuid.UUID `json:"id"`
	BookingID   uuid.UUID `json:"booking_id"`
	EventType   string    `json:"event_type"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	SourceParty string    `json:"source_party"`
	DestParty   string    `json:"dest_party"`

	ProviderRef      *string         `json:"provider_ref,omitempty"`
	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
