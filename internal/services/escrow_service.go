package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/models"
	"go.uber.org/zap"
)

// escrowLedger is the slice of the escrow repository this service needs.
type escrowLedger interface {
	Append(ctx context.Context, e *models.EscrowEvent) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.EscrowEvent, error)
	HasEvent(ctx context.Context, bookingID uuid.UUID, eventType string) (bool, error)
}

// EscrowService executes ledger actions and checks the conservation bound.
type EscrowService struct {
	ledger escrowLedger
	log    *zap.Logger
}

func NewEscrowService(ledger escrowLedger, log *zap.Logger) *EscrowService {
	return &EscrowService{ledger: ledger, log: log}
}

// Fees maps a booking's price columns to the split calculator's input.
func Fees(b *models.Booking) escrow.FeeBreakdown {
	return escrow.FeeBreakdown{
		RoomFee:         b.RoomFee,
		CleaningFee:     b.CleaningFee,
		SecurityDeposit: b.SecurityDeposit,
		ServiceFee:      b.ServiceFee,
		PlatformFee:     b.PlatformFee,
	}
}

// Record writes one action to the ledger unless an entry of that type already
// exists for the booking, so replayed webhooks cannot double-post.
func (s *EscrowService) Record(ctx context.Context, booking *models.Booking, a escrow.Action, providerRef *string, raw json.RawMessage) error {
	seen, err := s.ledger.HasEvent(ctx, booking.ID, a.EventType)
	if err != nil {
		return err
	}
	if seen {
		s.log.Debug("ledger entry already recorded",
			zap.String("booking_id", booking.ID.String()),
			zap.String("event_type", a.EventType),
		)
		return nil
	}
	return s.ledger.Append(ctx, &models.EscrowEvent{
		BookingID:        booking.ID,
		EventType:        a.EventType,
		Amount:           a.Amount,
		Currency:         booking.Currency,
		SourceParty:      a.Source,
		DestParty:        a.Destination,
		ProviderRef:      providerRef,
		ProviderResponse: raw,
	})
}

// RecordAll applies a batch of actions in order, stopping at the first error.
func (s *EscrowService) RecordAll(ctx context.Context, booking *models.Booking, actions []escrow.Action, providerRef *string, raw json.RawMessage) error {
	for _, a := range actions {
		if err := s.Record(ctx, booking, a, providerRef, raw); err != nil {
			return err
		}
	}
	return nil
}

// RecordPaymentSplit posts the hold and passthrough entries due when a charge
// is verified successful.
func (s *EscrowService) RecordPaymentSplit(ctx context.Context, booking *models.Booking, providerRef *string, raw json.RawMessage) error {
	return s.RecordAll(ctx, booking, escrow.PaymentSplit(Fees(booking)), providerRef, raw)
}

// Disbursed returns the signed sum of the booking's ledger against the
// original payment: amounts held in escrow count zero, disbursements to
// guest/host/platform count positive, reversals negative.
func (s *EscrowService) Disbursed(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	entries, err := s.ledger.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, e := range entries {
		sum += escrow.SignedAmount(e.EventType, e.DestParty, e.Amount)
	}
	return sum, nil
}

// CheckConservation verifies the disbursed total never exceeds the payment
// amount, and additionally that a further disbursement of nextAmount would
// stay within bound. Called before every outbound transfer.
func (s *EscrowService) CheckConservation(ctx context.Context, bookingID uuid.UUID, paymentAmount, nextAmount int64) error {
	disbursed, err := s.Disbursed(ctx, bookingID)
	if err != nil {
		return err
	}
	if disbursed+nextAmount > paymentAmount {
		return &LedgerInvariantError{
			BookingID: bookingID,
			Expected:  paymentAmount,
			Actual:    disbursed + nextAmount,
		}
	}
	return nil
}

// History returns the full ledger for a booking, oldest first.
func (s *EscrowService) History(ctx context.Context, bookingID uuid.UUID) ([]models.EscrowEvent, error) {
	return s.ledger.ListByBooking(ctx, bookingID)
}
