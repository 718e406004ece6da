package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
)

// WebhookService applies normalized provider events exactly once. The
// processed-event list on the payment is the idempotency record: an event id
// found there is acknowledged without side effects.
type WebhookService struct {
	payments   paymentStore
	bookings   schedulerBookingStore
	payouts    payoutStore
	escrowSvc  *EscrowService
	paymentSvc *PaymentService
	disputeSvc *DisputeService
	audit      auditLogger
	log        *zap.Logger
}

func NewWebhookService(
	payments paymentStore,
	bookings schedulerBookingStore,
	payouts payoutStore,
	escrowSvc *EscrowService,
	paymentSvc *PaymentService,
	disputeSvc *DisputeService,
	audit auditLogger,
	log *zap.Logger,
) *WebhookService {
	return &WebhookService{
		payments:   payments,
		bookings:   bookings,
		payouts:    payouts,
		escrowSvc:  escrowSvc,
		paymentSvc: paymentSvc,
		disputeSvc: disputeSvc,
		audit:      audit,
		log:        log,
	}
}

// HandleEvent routes one verified provider event. A nil return must be
// acknowledged with 200 upstream; an error asks the provider to redeliver.
func (s *WebhookService) HandleEvent(ctx context.Context, ev providers.Event) error {
	payment, err := s.paymentFor(ctx, ev)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Not one of ours (sandbox noise, other products on the same
			// account). Acknowledge so the provider stops retrying.
			s.log.Warn("webhook for unknown payment",
				zap.String("provider", ev.Provider),
				zap.String("event_id", ev.ID),
				zap.String("reference", ev.Reference),
			)
			return nil
		}
		return err
	}

	seen, err := s.payments.HasProcessedEvent(ctx, payment.ID, ev.ID)
	if err != nil {
		return err
	}
	if seen {
		s.log.Debug("webhook replay ignored",
			zap.String("event_id", ev.ID),
			zap.String("payment_id", payment.ID.String()),
		)
		return nil
	}

	if err := s.apply(ctx, payment, ev); err != nil {
		// Losing a status race means another path already applied the same
		// outcome; the event is done either way.
		if !IsStatusConflict(err) {
			return err
		}
		s.log.Debug("webhook lost status race, treating as applied",
			zap.String("event_id", ev.ID),
		)
	}

	if _, err := s.payments.AppendProcessedEvent(ctx, payment.ID, ev.ID); err != nil {
		// The effects are idempotent, so a redelivery after this failure
		// re-runs them harmlessly.
		return err
	}
	return nil
}

func (s *WebhookService) apply(ctx context.Context, payment *models.Payment, ev providers.Event) error {
	switch ev.Kind {
	case providers.KindChargeSucceeded:
		if ev.Amount != 0 && ev.Amount != payment.Amount {
			_ = s.audit.Log(ctx, models.AuditLog{
				ActorType:  "provider",
				Action:     "payment_amount_mismatch",
				EntityType: "payment",
				EntityID:   &payment.ID,
				Meta:       map[string]any{"reported": ev.Amount, "expected": payment.Amount, "event_id": ev.ID},
			})
			s.log.Error("charge amount mismatch",
				zap.String("payment_id", payment.ID.String()),
				zap.Int64("reported", ev.Amount),
				zap.Int64("expected", payment.Amount),
			)
			return nil
		}
		return s.paymentSvc.confirmPaid(ctx, payment)

	case providers.KindChargeFailed:
		_, err := s.payments.UpdateStatusIf(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed)
		return err

	case providers.KindTransferSucceeded:
		return s.applyTransferSucceeded(ctx, payment, ev)

	case providers.KindTransferFailed:
		return s.payouts.MarkFailed(ctx, payment.BookingID, payment.ID, payment.HostEarnings, payment.Currency,
			fmt.Sprintf("provider reported transfer failure (%s)", ev.ID))

	case providers.KindTransferReversed:
		return s.applyTransferReversed(ctx, payment, ev)

	case providers.KindDisputeOpened:
		return s.disputeSvc.OpenFromProvider(ctx, payment.BookingID, ev.ID)

	case providers.KindDisputeClosed:
		return s.disputeSvc.ResolveFromProvider(ctx, payment.BookingID, ev.DisputeOutcome)

	case providers.KindAccountUpdated:
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  "provider",
			Action:     "provider_account_updated",
			EntityType: "payment",
			EntityID:   &payment.ID,
			Meta:       map[string]any{"event_id": ev.ID},
		})
		return nil

	default:
		s.log.Warn("unhandled webhook kind", zap.String("kind", ev.Kind))
		return nil
	}
}

// applyTransferSucceeded settles the payout record when the provider confirms
// an async transfer. The scheduler may have completed it already; every write
// here tolerates that.
func (s *WebhookService) applyTransferSucceeded(ctx context.Context, payment *models.Payment, ev providers.Event) error {
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return err
	}
	transferRef := ev.TransferRef
	if transferRef == "" {
		transferRef = ev.ID
	}
	if err := s.escrowSvc.Record(ctx, booking, escrow.Action{
		EventType:   escrow.EventSplitRelease,
		Amount:      booking.RoomFee,
		Source:      escrow.PartyEscrow,
		Destination: escrow.PartyHost,
		Purpose:     "room fee released to host",
	}, &transferRef, ev.Raw); err != nil {
		return err
	}
	return s.payouts.CompleteRelease(ctx, booking.ID, payment.ID, payment.HostEarnings, payment.Currency, transferRef, ev.Raw)
}

// applyTransferReversed books the funds back into escrow and requeues the
// payout.
func (s *WebhookService) applyTransferReversed(ctx context.Context, payment *models.Payment, ev providers.Event) error {
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return err
	}
	amount := ev.Amount
	if amount == 0 {
		amount = payment.HostEarnings
	}
	transferRef := ev.TransferRef
	if transferRef == "" {
		transferRef = ev.ID
	}
	if err := s.escrowSvc.Record(ctx, booking, escrow.Action{
		EventType:   escrow.EventTransferReversal,
		Amount:      amount,
		Source:      escrow.PartyHost,
		Destination: escrow.PartyEscrow,
		Purpose:     "provider reversed host transfer",
	}, &transferRef, ev.Raw); err != nil {
		return err
	}

	reason := fmt.Sprintf("provider reversed transfer (%s)", ev.ID)
	if err := s.payouts.Requeue(ctx, booking.ID, payment.ID, reason); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "provider",
		Action:     "transfer_reversed",
		EntityType: "booking",
		EntityID:   &booking.ID,
		Meta:       map[string]any{"amount": amount, "event_id": ev.ID},
	})
	return nil
}

// paymentFor locates the payment a provider event belongs to. Charge and
// dispute events carry the charge reference; transfer events carry the
// reference this service submitted, which embeds the payment or booking id.
func (s *WebhookService) paymentFor(ctx context.Context, ev providers.Event) (*models.Payment, error) {
	switch ev.Kind {
	case providers.KindTransferSucceeded, providers.KindTransferFailed, providers.KindTransferReversed:
		ref := ev.Reference
		if ref == "" {
			ref = ev.TransferRef
		}
		if id, ok := strings.CutPrefix(ref, "po-"); ok {
			paymentID, err := uuid.Parse(id)
			if err != nil {
				return nil, repositories.ErrNotFound
			}
			payout, err := s.payouts.GetByPaymentID(ctx, paymentID)
			if err != nil {
				return nil, err
			}
			return s.payments.GetByBookingID(ctx, payout.BookingID)
		}
		if id, ok := strings.CutPrefix(ref, "dp-"); ok {
			bookingID, err := uuid.Parse(id)
			if err != nil {
				return nil, repositories.ErrNotFound
			}
			return s.payments.GetByBookingID(ctx, bookingID)
		}
		return nil, repositories.ErrNotFound
	default:
		return s.payments.GetByProviderRef(ctx, ev.Provider, ev.Reference)
	}
}
