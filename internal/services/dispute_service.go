package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/events"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
)

type disputeRecord interface {
	Open(ctx context.Context, d *models.Dispute, expectedStatus, holdReason string) error
	GetOpenByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	HasOpenDispute(ctx context.Context, bookingID uuid.UUID) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution string, guestShare, hostShare *int64) (int64, error)
}

// DisputeService freezes and settles held funds when a stay is contested,
// whether the dispute starts in-platform or as a provider chargeback.
type DisputeService struct {
	disputes   disputeRecord
	bookings   schedulerBookingStore
	payments   paymentStore
	escrowSvc  *EscrowService
	registry   providerRegistry
	bookingSvc *BookingService
	payoutSvc  *PayoutService
	audit      auditLogger
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewDisputeService(
	disputes disputeRecord,
	bookings schedulerBookingStore,
	payments paymentStore,
	escrowSvc *EscrowService,
	registry providerRegistry,
	bookingSvc *BookingService,
	payoutSvc *PayoutService,
	audit auditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DisputeService {
	return &DisputeService{
		disputes:   disputes,
		bookings:   bookings,
		payments:   payments,
		escrowSvc:  escrowSvc,
		registry:   registry,
		bookingSvc: bookingSvc,
		payoutSvc:  payoutSvc,
		audit:      audit,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// OpenDispute contests a checked-in stay. The booking moves to the dispute
// state and its payout freezes in the same transaction, so the release
// scheduler can never race a half-opened dispute.
func (s *DisputeService) OpenDispute(ctx context.Context, bookingID uuid.UUID, openedBy *uuid.UUID, reason string) (*models.Dispute, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusCheckedIn {
		return nil, &InvalidTransitionError{BookingID: bookingID, From: booking.Status, To: models.BookingStatusDisputeOpened}
	}

	d := &models.Dispute{BookingID: bookingID, OpenedBy: openedBy, Reason: reason}
	if err := s.disputes.Open(ctx, d, models.BookingStatusCheckedIn, "dispute: "+reason); err != nil {
		if errors.Is(err, repositories.ErrBookingNotInStatus) {
			actual, gerr := s.bookings.GetByID(ctx, bookingID)
			if gerr != nil {
				return nil, &StatusConflictError{BookingID: bookingID, Expected: models.BookingStatusCheckedIn, Actual: "unknown"}
			}
			return nil, &StatusConflictError{BookingID: bookingID, Expected: models.BookingStatusCheckedIn, Actual: actual.Status}
		}
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: openedBy,
		ActorType:   "guest",
		Action:      "dispute_opened",
		EntityType:  "booking",
		EntityID:    &bookingID,
		Meta:        map[string]any{"reason": reason},
	})
	_ = s.publisher.Publish(ctx, events.StreamBookings, events.Event{
		Type:    events.EventDisputeOpened,
		Payload: map[string]any{"booking_id": bookingID.String(), "dispute_id": d.ID.String()},
	})

	return d, nil
}

// OpenFromProvider handles a chargeback notification. A checked-in booking
// takes the normal dispute path; any other status only freezes the payout
// since the transition table does not route there.
func (s *DisputeService) OpenFromProvider(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if booking.Status == models.BookingStatusCheckedIn {
		d := &models.Dispute{BookingID: bookingID, Reason: "provider chargeback", ProviderRef: &providerRef}
		if err := s.disputes.Open(ctx, d, models.BookingStatusCheckedIn, "provider chargeback"); err != nil {
			if errors.Is(err, repositories.ErrBookingNotInStatus) {
				return s.freezePayout(ctx, bookingID, providerRef)
			}
			return err
		}
		return nil
	}
	return s.freezePayout(ctx, bookingID, providerRef)
}

func (s *DisputeService) freezePayout(ctx context.Context, bookingID uuid.UUID, providerRef string) error {
	status := models.PayoutStatusOnHold
	reason := "provider chargeback " + providerRef
	if err := s.bookings.UpdatePayoutFields(ctx, bookingID, repositories.PayoutFields{
		PayoutStatus:     &status,
		PayoutHoldReason: &reason,
	}); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "provider",
		Action:     "payout_frozen_chargeback",
		EntityType: "booking",
		EntityID:   &bookingID,
		Meta:       map[string]any{"provider_ref": providerRef},
	})
	return nil
}

// ResolveDispute settles an open dispute. Full refunds return all held funds
// to the guest and cancel the booking; partial refunds split them by the
// given shares; no refund resumes the normal payout schedule.
func (s *DisputeService) ResolveDispute(ctx context.Context, bookingID uuid.UUID, resolution string, guestShare, hostShare *int64, actorID *uuid.UUID) error {
	dispute, err := s.disputes.GetOpenByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &BusinessRuleError{Rule: "no_open_dispute", Detail: "booking has no open dispute"}
		}
		return err
	}
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	payment, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return err
	}

	var gs, hs int64
	if guestShare != nil {
		gs = *guestShare
	}
	if hostShare != nil {
		hs = *hostShare
	}
	actions, err := escrow.DisputeSplit(Fees(booking), resolution, gs, hs)
	if err != nil {
		return &BusinessRuleError{Rule: "invalid_resolution", Detail: err.Error()}
	}

	var providerRef *string
	guestPortion := guestPortionOf(actions)
	if guestPortion > 0 {
		client, ok := s.registry.Get(payment.Provider)
		if !ok {
			return &ProviderError{Provider: payment.Provider, Op: "refund", Err: errors.New("no client configured")}
		}
		refund, rerr := client.ProcessRefund(ctx, providers.RefundRequest{
			Reference: payment.ProviderRef,
			Amount:    guestPortion,
		})
		if rerr != nil {
			return &ProviderError{Provider: payment.Provider, Op: "refund", Err: rerr}
		}
		providerRef = &refund.RefundRef
	}

	affected, err := s.disputes.Resolve(ctx, dispute.ID, resolution, guestShare, hostShare)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &BusinessRuleError{Rule: "already_resolved", Detail: "dispute was resolved concurrently"}
	}

	if err := s.escrowSvc.RecordAll(ctx, booking, actions, providerRef, nil); err != nil {
		return err
	}

	switch resolution {
	case models.ResolutionFullRefund:
		_ = s.payments.MarkRefunded(ctx, payment.ID)
		if err := s.finishBooking(ctx, booking, models.BookingStatusCancelled, models.PayoutStatusFailed, actorID); err != nil {
			return err
		}
	case models.ResolutionPartialRefund:
		if hs > 0 {
			s.payHostShare(ctx, booking, payment, hs)
		}
		if err := s.finishBooking(ctx, booking, models.BookingStatusCompleted, models.PayoutStatusReleased, actorID); err != nil {
			return err
		}
	case models.ResolutionNoRefund:
		if err := s.resumePayout(ctx, booking, actorID); err != nil {
			return err
		}
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   "admin",
		Action:      "dispute_resolved",
		EntityType:  "booking",
		EntityID:    &bookingID,
		Meta:        map[string]any{"resolution": resolution, "guest_share": gs, "host_share": hs},
	})
	_ = s.publisher.Publish(ctx, events.StreamBookings, events.Event{
		Type:    events.EventDisputeResolved,
		Payload: map[string]any{"booking_id": bookingID.String(), "resolution": resolution},
	})
	return nil
}

// ResolveFromProvider maps a closed chargeback to a resolution: won means the
// host kept the charge and the payout resumes, lost means the provider pulled
// the funds back to the guest.
func (s *DisputeService) ResolveFromProvider(ctx context.Context, bookingID uuid.UUID, outcome string) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	payment, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return err
	}

	dispute, derr := s.disputes.GetOpenByBookingID(ctx, bookingID)
	if derr != nil && !errors.Is(derr, repositories.ErrNotFound) {
		return derr
	}

	switch outcome {
	case providers.DisputeOutcomeWon:
		if dispute != nil {
			if _, err := s.disputes.Resolve(ctx, dispute.ID, models.ResolutionNoRefund, nil, nil); err != nil {
				return err
			}
		}
		return s.resumePayout(ctx, booking, nil)
	case providers.DisputeOutcomeLost:
		held := escrow.FeeBreakdown{RoomFee: booking.RoomFee, SecurityDeposit: booking.SecurityDeposit}.Held()
		// The provider already moved the money; only the ledger and records
		// need to catch up.
		if err := s.escrowSvc.Record(ctx, booking, escrow.Action{
			EventType:   escrow.EventRefundToGuest,
			Amount:      held,
			Source:      escrow.PartyEscrow,
			Destination: escrow.PartyGuest,
			Purpose:     "chargeback lost: held funds returned to guest",
		}, nil, nil); err != nil {
			return err
		}
		_ = s.payments.MarkRefunded(ctx, payment.ID)
		if dispute != nil {
			if _, err := s.disputes.Resolve(ctx, dispute.ID, models.ResolutionFullRefund, nil, nil); err != nil {
				return err
			}
		}
		return s.finishBooking(ctx, booking, models.BookingStatusCancelled, models.PayoutStatusFailed, nil)
	default:
		return fmt.Errorf("unknown dispute outcome %q", outcome)
	}
}

// resumePayout lifts the freeze and reschedules the release no earlier than
// now.
func (s *DisputeService) resumePayout(ctx context.Context, booking *models.Booking, actorID *uuid.UUID) error {
	resumed := escrow.ResumedReleaseDate(booking.PayoutReleaseDate, s.bookingSvc.now())
	status := models.PayoutStatusPending
	if err := s.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{
		PayoutStatus:      &status,
		PayoutReleaseDate: &resumed,
		ClearHold:         true,
	}); err != nil {
		return err
	}
	if booking.Status == models.BookingStatusDisputeOpened {
		return s.bookingSvc.SafeTransition(ctx, booking.ID, models.BookingStatusCompleted, actorID, "system")
	}
	return nil
}

// finishBooking moves a disputed booking to its terminal status and closes
// the payout axis. payoutStatus records where the held funds went: released
// when the host kept them, failed when they all went back to the guest and
// no payout will ever run.
func (s *DisputeService) finishBooking(ctx context.Context, booking *models.Booking, target, payoutStatus string, actorID *uuid.UUID) error {
	if err := s.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{
		PayoutStatus: &payoutStatus,
		ClearHold:    true,
	}); err != nil {
		return err
	}
	if booking.Status == models.BookingStatusDisputeOpened {
		return s.bookingSvc.settleTransition(ctx, booking.ID, target, actorID)
	}
	return nil
}

// payHostShare transfers the host's portion of a partial resolution. Failure
// is recorded for manual retry rather than unwinding the resolution.
func (s *DisputeService) payHostShare(ctx context.Context, booking *models.Booking, payment *models.Payment, amount int64) {
	host, err := s.payoutSvc.hostFor(ctx, booking)
	if err != nil {
		s.log.Error("dispute host share: host lookup failed", zap.Error(err))
		return
	}
	if host.BankCode == nil || host.AccountNumber == nil {
		s.log.Error("dispute host share: host has no bank details",
			zap.String("booking_id", booking.ID.String()))
		return
	}
	_, err = s.payoutSvc.transferToHost(ctx, payment.Provider, host, providers.TransferRequest{
		Amount:        amount,
		Currency:      payment.Currency,
		Reference:     fmt.Sprintf("dp-%s", booking.ID),
		Reason:        "dispute resolution host share",
		BankCode:      *host.BankCode,
		AccountNumber: *host.AccountNumber,
		AccountName:   host.Name,
	})
	if err != nil {
		s.log.Error("dispute host share transfer failed",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
	}
}

func guestPortionOf(actions []escrow.Action) int64 {
	for _, a := range actions {
		if a.EventType == escrow.EventRefundToGuest {
			return a.Amount
		}
	}
	return 0
}
