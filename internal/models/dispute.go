package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// Dispute resolutions, each mapping to one ledger action.
const (
	ResolutionFullRefund    = "full_refund"
	ResolutionPartialRefund = "partial_refund"
	ResolutionNoRefund      = "no_refund"
)

// Dispute holds payout release for its booking until resolved.
type Dispute struct {
	ID        uuid.UUID  `json:"id"`
	BookingID uuid.UUID  `json:"booking_id"`
	OpenedBy  *uuid.UUID `json:"opened_by,omitempty"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`

	Resolution *string `json:"resolution,omitempty"`
	// Partial-refund split of the held funds, minor units. Set on resolution.
	GuestShare *int64 `json:"guest_share,omitempty"`
	HostShare  *int64 `json:"host_share,omitempty"`

	ProviderRef *string    `json:"provider_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
