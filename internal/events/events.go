package events

import "context"

// Event types
const (
	EventBookingStatusChanged = "booking_status_changed"
	EventPaymentReceived      = "payment_received"
	EventPayoutReleased       = "payout_released"
	EventDepositReturned      = "deposit_returned"
	EventDisputeOpened        = "dispute_opened"
	EventDisputeResolved      = "dispute_resolved"
	EventNotification         = "notification"
)

// Streams
const (
	StreamBookings = "events:bookings"
	StreamPayouts  = "events:payouts"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
