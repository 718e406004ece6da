package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
)

type userStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateBankDetails(ctx context.Context, id uuid.UUID, bankCode, accountNumber string) error
	CacheTransferRecipient(ctx context.Context, id uuid.UUID, recipient string) error
}

// PaymentService owns the charge side of a booking: creating the provider
// checkout, verifying its outcome, and the host bank-account utilities.
type PaymentService struct {
	bookings bookingStore
	payments paymentStore
	users    userStore
	registry providerRegistry
	booking  *BookingService
	cfg      *config.Config
	log      *zap.Logger
}

func NewPaymentService(
	bookings bookingStore,
	payments paymentStore,
	users userStore,
	registry providerRegistry,
	booking *BookingService,
	cfg *config.Config,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		bookings: bookings,
		payments: payments,
		users:    users,
		registry: registry,
		booking:  booking,
		cfg:      cfg,
		log:      log,
	}
}

// InitializePayment creates the payment row and the provider checkout session
// for a pending booking. Reference format: bk-<booking id>.
func (s *PaymentService) InitializePayment(ctx context.Context, bookingID uuid.UUID, providerName string) (*providers.InitChargeResult, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, &StatusConflictError{BookingID: bookingID, Expected: models.BookingStatusPending, Actual: booking.Status}
	}

	if existing, perr := s.payments.GetByBookingID(ctx, bookingID); perr == nil {
		if existing.Status == models.PaymentStatusCompleted {
			return nil, &BusinessRuleError{Rule: "already_paid", Detail: "booking already has a completed payment"}
		}
	} else if !errors.Is(perr, repositories.ErrNotFound) {
		return nil, perr
	}

	if providerName == "" {
		providerName = s.cfg.DefaultProvider
	}
	client, ok := s.registry.Get(providerName)
	if !ok {
		return nil, &ProviderError{Provider: providerName, Op: "initialize", Err: errors.New("no client configured")}
	}

	guest, err := s.users.GetByID(ctx, booking.GuestID)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("bk-%s", booking.ID)
	result, err := client.InitializeCharge(ctx, providers.InitChargeRequest{
		Email:     guest.Email,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
		Reference: reference,
	})
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Op: "initialize", Err: err}
	}

	payment := &models.Payment{
		BookingID:    booking.ID,
		Provider:     providerName,
		ProviderRef:  result.Reference,
		Amount:       booking.TotalPrice,
		Currency:     booking.Currency,
		Status:       models.PaymentStatusPending,
		HostEarnings: booking.RoomFee + booking.CleaningFee,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	return result, nil
}

// VerifyPayment re-checks a charge against the provider and, on success,
// applies the same confirmation path the webhook would. Used when the webhook
// is delayed and the guest lands on the return URL first.
func (s *PaymentService) VerifyPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return payment, nil
	}

	client, ok := s.registry.Get(payment.Provider)
	if !ok {
		return nil, &ProviderError{Provider: payment.Provider, Op: "verify", Err: errors.New("no client configured")}
	}
	verification, err := client.VerifyCharge(ctx, payment.ProviderRef)
	if err != nil {
		return nil, &ProviderError{Provider: payment.Provider, Op: "verify", Err: err}
	}
	if !verification.Succeeded {
		return payment, nil
	}
	if verification.Amount != payment.Amount {
		return nil, &BusinessRuleError{
			Rule:   "amount_mismatch",
			Detail: fmt.Sprintf("provider reports %d, expected %d", verification.Amount, payment.Amount),
		}
	}

	if err := s.confirmPaid(ctx, payment); err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusCompleted
	return payment, nil
}

// confirmPaid flips the payment to completed, posts the ledger split, and
// confirms the booking. Conditional writes keep the path idempotent against
// a concurrent webhook.
func (s *PaymentService) confirmPaid(ctx context.Context, payment *models.Payment) error {
	affected, err := s.payments.UpdateStatusIf(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusCompleted)
	if err != nil {
		return err
	}
	if affected == 0 {
		// The webhook won; nothing left to do.
		return nil
	}

	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return err
	}
	if err := s.booking.escrowSvc.RecordPaymentSplit(ctx, booking, &payment.ProviderRef, nil); err != nil {
		return err
	}
	return s.booking.SafeTransition(ctx, payment.BookingID, models.BookingStatusConfirmed, nil, "system")
}

// ListBanks proxies the provider's bank directory for the host settings UI.
func (s *PaymentService) ListBanks(ctx context.Context, providerName string) ([]providers.Bank, error) {
	if providerName == "" {
		providerName = s.cfg.DefaultProvider
	}
	client, ok := s.registry.Get(providerName)
	if !ok {
		return nil, &ProviderError{Provider: providerName, Op: "list_banks", Err: errors.New("no client configured")}
	}
	banks, err := client.ListBanks(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Op: "list_banks", Err: err}
	}
	return banks, nil
}

// SetBankDetails resolves the account against the provider before storing it,
// so hosts cannot save a payout destination that transfers would bounce on.
func (s *PaymentService) SetBankDetails(ctx context.Context, userID uuid.UUID, bankCode, accountNumber string) (*providers.ResolvedAccount, error) {
	client, ok := s.registry.Get(s.cfg.DefaultProvider)
	if !ok {
		return nil, &ProviderError{Provider: s.cfg.DefaultProvider, Op: "resolve_account", Err: errors.New("no client configured")}
	}
	resolved, err := client.ResolveAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return nil, &ProviderError{Provider: s.cfg.DefaultProvider, Op: "resolve_account", Err: err}
	}
	if err := s.users.UpdateBankDetails(ctx, userID, bankCode, accountNumber); err != nil {
		return nil, err
	}
	return resolved, nil
}
