package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/events"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
)

const transferTimeout = 30 * time.Second

type schedulerBookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdatePayoutFields(ctx context.Context, id uuid.UUID, extra repositories.PayoutFields) error
	GetReleaseCandidates(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	GetDepositReturnCandidates(ctx context.Context, now time.Time, offset time.Duration, limit int) ([]models.Booking, error)
	GetTimedOutPending(ctx context.Context, timeout time.Duration) ([]models.Booking, error)
}

type schedulerPaymentStore interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	MarkDepositReturned(ctx context.Context, id uuid.UUID) error
}

type payoutStore interface {
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error)
	CompleteRelease(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, transferID string, meta json.RawMessage) error
	MarkFailed(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, attemptErr string) error
	Requeue(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) error
}

type propertyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Property, error)
}

// PayoutService is the background settlement engine: it releases the host's
// room-fee share after the hold clears, returns deposits after check-out, and
// sweeps timed-out pending bookings.
type PayoutService struct {
	bookings   schedulerBookingStore
	payments   schedulerPaymentStore
	payouts    payoutStore
	users      userStore
	properties propertyStore
	disputes   disputeStore
	escrowSvc  *EscrowService
	registry   providerRegistry
	bookingSvc *BookingService
	publisher  events.Publisher
	notify     *NotifyClient
	cfg        *config.Config
	log        *zap.Logger
	now        func() time.Time

	releaseBusy atomic.Bool
	depositBusy atomic.Bool
}

func NewPayoutService(
	bookings schedulerBookingStore,
	payments schedulerPaymentStore,
	payouts payoutStore,
	users userStore,
	properties propertyStore,
	disputes disputeStore,
	escrowSvc *EscrowService,
	registry providerRegistry,
	bookingSvc *BookingService,
	publisher events.Publisher,
	notify *NotifyClient,
	cfg *config.Config,
	log *zap.Logger,
) *PayoutService {
	return &PayoutService{
		bookings:   bookings,
		payments:   payments,
		payouts:    payouts,
		users:      users,
		properties: properties,
		disputes:   disputes,
		escrowSvc:  escrowSvc,
		registry:   registry,
		bookingSvc: bookingSvc,
		publisher:  publisher,
		notify:     notify,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// RunReleaseCycle processes due payouts once. Overlapping cycles are skipped;
// each booking fails independently so one bad transfer never stalls the batch.
func (s *PayoutService) RunReleaseCycle(ctx context.Context) error {
	if !s.releaseBusy.CompareAndSwap(false, true) {
		s.log.Debug("release cycle already running, skipping")
		return nil
	}
	defer s.releaseBusy.Store(false)

	candidates, err := s.bookings.GetReleaseCandidates(ctx, s.now(), s.cfg.ReleaseBatchSize)
	if err != nil {
		return err
	}
	for _, booking := range candidates {
		if err := s.releaseOne(ctx, &booking); err != nil {
			s.log.Error("payout release failed",
				zap.String("booking_id", booking.ID.String()),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (s *PayoutService) releaseOne(ctx context.Context, booking *models.Booking) error {
	// Re-check eligibility: the candidate query ran earlier and a dispute may
	// have opened since.
	disputeOpen, err := s.disputes.HasOpenDispute(ctx, booking.ID)
	if err != nil {
		return err
	}
	if !escrow.ReleaseEligible(s.now(), booking.PayoutReleaseDate, booking.PayoutHoldUntil, disputeOpen) {
		return nil
	}

	payment, err := s.payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return err
	}
	if payment.PayoutReleased || payment.Status != models.PaymentStatusCompleted {
		return nil
	}

	// The transfer carries both host components; the ledger entry only adds
	// the room fee since the cleaning passthrough was posted at payment time.
	if err := s.escrowSvc.CheckConservation(ctx, booking.ID, payment.Amount, booking.RoomFee); err != nil {
		return err
	}

	host, err := s.hostFor(ctx, booking)
	if err != nil {
		return err
	}
	if host.BankCode == nil || host.AccountNumber == nil {
		return s.payouts.MarkFailed(ctx, booking.ID, payment.ID, payment.HostEarnings, payment.Currency, "host has no bank details")
	}

	result, err := s.transferToHost(ctx, payment.Provider, host, providers.TransferRequest{
		Amount:        payment.HostEarnings,
		Currency:      payment.Currency,
		Reference:     fmt.Sprintf("po-%s", payment.ID),
		Reason:        "booking payout",
		BankCode:      *host.BankCode,
		AccountNumber: *host.AccountNumber,
		AccountName:   host.Name,
	})
	if err != nil {
		if ferr := s.payouts.MarkFailed(ctx, booking.ID, payment.ID, payment.HostEarnings, payment.Currency, err.Error()); ferr != nil {
			s.log.Error("failed to record payout failure", zap.Error(ferr))
		}
		return err
	}

	if err := s.escrowSvc.Record(ctx, booking, escrow.Action{
		EventType:   escrow.EventSplitRelease,
		Amount:      booking.RoomFee,
		Source:      escrow.PartyEscrow,
		Destination: escrow.PartyHost,
		Purpose:     "room fee released to host",
	}, &result.TransferID, nil); err != nil {
		return err
	}

	meta, _ := json.Marshal(map[string]any{"transfer_status": result.Status})
	if err := s.payouts.CompleteRelease(ctx, booking.ID, payment.ID, payment.HostEarnings, payment.Currency, result.TransferID, meta); err != nil {
		return err
	}

	_ = s.publisher.Publish(ctx, events.StreamPayouts, events.Event{
		Type: events.EventPayoutReleased,
		Payload: map[string]any{
			"booking_id": booking.ID.String(),
			"amount":     payment.HostEarnings,
			"currency":   payment.Currency,
		},
	})
	if s.notify != nil {
		s.notify.Send(ctx, Notification{
			UserID:    host.ID.String(),
			Template:  "payout_released",
			BookingID: booking.ID.String(),
			Data:      map[string]any{"amount": payment.HostEarnings, "currency": payment.Currency},
		})
	}

	s.log.Info("payout released",
		zap.String("booking_id", booking.ID.String()),
		zap.String("transfer_id", result.TransferID),
		zap.Int64("amount", payment.HostEarnings),
	)
	return nil
}

// RunDepositReturnCycle refunds security deposits for completed stays past
// the return offset.
func (s *PayoutService) RunDepositReturnCycle(ctx context.Context) error {
	if !s.depositBusy.CompareAndSwap(false, true) {
		return nil
	}
	defer s.depositBusy.Store(false)

	candidates, err := s.bookings.GetDepositReturnCandidates(ctx, s.now(), s.cfg.DepositReturnOffset, s.cfg.ReleaseBatchSize)
	if err != nil {
		return err
	}
	for _, booking := range candidates {
		if err := s.returnDeposit(ctx, &booking); err != nil {
			s.log.Error("deposit return failed",
				zap.String("booking_id", booking.ID.String()),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (s *PayoutService) returnDeposit(ctx context.Context, booking *models.Booking) error {
	disputeOpen, err := s.disputes.HasOpenDispute(ctx, booking.ID)
	if err != nil {
		return err
	}
	returnDate := escrow.DepositReturnDate(booking.CheckOutDate, s.cfg.DepositReturnOffset)
	if !escrow.DepositReturnEligible(s.now(), returnDate, disputeOpen) {
		return nil
	}

	payment, err := s.payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return err
	}
	if payment.DepositReturned || booking.SecurityDeposit == 0 {
		return nil
	}

	if err := s.escrowSvc.CheckConservation(ctx, booking.ID, payment.Amount, booking.SecurityDeposit); err != nil {
		return err
	}

	client, ok := s.registry.Get(payment.Provider)
	if !ok {
		return &ProviderError{Provider: payment.Provider, Op: "refund", Err: errors.New("no client configured")}
	}
	callCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	refund, err := client.ProcessRefund(callCtx, providers.RefundRequest{
		Reference: payment.ProviderRef,
		Amount:    booking.SecurityDeposit,
	})
	if err != nil {
		return &ProviderError{Provider: payment.Provider, Op: "refund", Err: err}
	}

	if err := s.escrowSvc.Record(ctx, booking, escrow.Action{
		EventType:   escrow.EventDepositReturn,
		Amount:      booking.SecurityDeposit,
		Source:      escrow.PartyEscrow,
		Destination: escrow.PartyGuest,
		Purpose:     "security deposit returned",
	}, &refund.RefundRef, nil); err != nil {
		return err
	}
	if err := s.payments.MarkDepositReturned(ctx, payment.ID); err != nil {
		return err
	}

	_ = s.publisher.Publish(ctx, events.StreamPayouts, events.Event{
		Type: events.EventDepositReturned,
		Payload: map[string]any{
			"booking_id": booking.ID.String(),
			"amount":     booking.SecurityDeposit,
		},
	})

	s.log.Info("deposit returned",
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("amount", booking.SecurityDeposit),
	)
	return nil
}

// RunPendingTimeoutCycle cancels bookings whose payment never arrived.
func (s *PayoutService) RunPendingTimeoutCycle(ctx context.Context) error {
	stale, err := s.bookings.GetTimedOutPending(ctx, s.cfg.PendingPaymentTimeout)
	if err != nil {
		return err
	}
	for _, booking := range stale {
		if err := s.bookingSvc.SafeTransition(ctx, booking.ID, models.BookingStatusCancelled, nil, "system"); err != nil {
			s.log.Error("pending timeout cancel failed",
				zap.String("booking_id", booking.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// transferToHost runs the provider transfer under its own deadline and caches
// a newly created recipient handle.
func (s *PayoutService) transferToHost(ctx context.Context, providerName string, host *models.User, req providers.TransferRequest) (*providers.TransferResult, error) {
	client, ok := s.registry.Get(providerName)
	if !ok {
		return nil, &ProviderError{Provider: providerName, Op: "transfer", Err: errors.New("no client configured")}
	}
	if host.TransferRecipient != nil {
		req.RecipientCode = *host.TransferRecipient
	}

	callCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	result, err := client.InitiateTransfer(callCtx, req)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Op: "transfer", Err: err}
	}

	if result.RecipientCode != "" && (host.TransferRecipient == nil || *host.TransferRecipient != result.RecipientCode) {
		if cerr := s.users.CacheTransferRecipient(ctx, host.ID, result.RecipientCode); cerr != nil {
			s.log.Warn("failed to cache transfer recipient", zap.Error(cerr))
		}
	}
	return result, nil
}

func (s *PayoutService) hostFor(ctx context.Context, booking *models.Booking) (*models.User, error) {
	property, err := s.properties.GetByID(ctx, booking.PropertyID)
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, property.HostID)
}
