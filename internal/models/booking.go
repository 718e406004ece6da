package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking statuses
const (
	BookingStatusPending       = "pending"
	BookingStatusConfirmed     = "confirmed"
	BookingStatusCheckedIn     = "checked_in"
	BookingStatusCheckedOut    = "checked_out"
	BookingStatusDisputeOpened = "dispute_opened"
	BookingStatusCompleted     = "completed"
	BookingStatusCancelled     = "cancelled"
)

// Payout progress, tracked independently of the booking status.
const (
	PayoutStatusPending  = "pending"
	PayoutStatusOnHold   = "on_hold"
	PayoutStatusReleased = "released"
	PayoutStatusFailed   = "failed"
)

// Valid state transitions: from -> []to
var ValidBookingTransitions = map[string][]string{
	BookingStatusPending:       {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:     {BookingStatusCheckedIn, BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCheckedIn:     {BookingStatusCheckedOut, BookingStatusDisputeOpened},
	BookingStatusCheckedOut:    {BookingStatusCompleted},
	BookingStatusDisputeOpened: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted:     {},
	BookingStatusCancelled:     {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidBookingTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedNextStatuses returns a copy of the transition-table row for from.
func AllowedNextStatuses(from string) []string {
	allowed, ok := ValidBookingTransitions[from]
	if !ok {
		return nil
	}
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}

func IsTerminalStatus(status string) bool {
	allowed, ok := ValidBookingTransitions[status]
	return ok && len(allowed) == 0
}

// Booking is one reservation. All amounts are integer minor units
// (kobo/cents) in Currency. Rows are never hard-deleted.
type Booking struct {
	ID         uuid.UUID `json:"id"`
	PropertyID uuid.UUID `json:"property_id"`
	GuestID    uuid.UUID `json:"guest_id"`
	Status     string    `json:"status"`

	CheckInDate  time.Time `json:"check_in_date"`
	CheckOutDate time.Time `json:"check_out_date"`

	Currency        string `json:"currency"`
	RoomFee         int64  `json:"room_fee"`
	CleaningFee     int64  `json:"cleaning_fee"`
	SecurityDeposit int64  `json:"security_deposit"`
	ServiceFee      int64  `json:"service_fee"`
	PlatformFee     int64  `json:"platform_fee"`
	TotalPrice      int64  `json:"total_price"`

	PayoutStatus      string     `json:"payout_status"`
	PayoutReleaseDate *time.Time `json:"payout_release_date,omitempty"`
	PayoutHoldReason  *string    `json:"payout_hold_reason,omitempty"`
	PayoutHoldUntil   *time.Time `json:"payout_hold_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingWithRelations embeds Booking and adds payment, property and guest
// info to avoid N+1 queries.
type BookingWithRelations struct {
	Booking
	Payment       *Payment   `json:"payment,omitempty"`
	PropertyTitle *string    `json:"property_title,omitempty"`
	PropertyCity  *string    `json:"property_city,omitempty"`
	HostID        *uuid.UUID `json:"host_id,omitempty"`
	GuestName     *string    `json:"guest_name,omitempty"`
	GuestEmail    *string    `json:"guest_email,omitempty"`
}
