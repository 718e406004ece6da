package services

import (
	"context"
	"errors"
	"fmt"
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

// Narrow views of the repositories, so tests can swap in fakes.
type bookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetStatus(ctx context.Context, id uuid.UUID) (string, error)
	GetByIDWithRelations(ctx context.Context, id uuid.UUID) (*models.BookingWithRelations, error)
	List(ctx context.Context, f repositories.BookingFilter) ([]models.Booking, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string, extra *repositories.PayoutFields) (int64, error)
}

type paymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string) (int64, error)
	HasProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error)
	AppendProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) error
}

type disputeStore interface {
	HasOpenDispute(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

type auditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// providerRegistry resolves the gateway client for a payment row.
type providerRegistry interface {
	Get(name string) (providers.Client, bool)
}

type BookingService struct {
	bookings  bookingStore
	payments  paymentStore
	disputes  disputeStore
	escrowSvc *EscrowService
	registry  providerRegistry
	audit     auditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewBookingService(
	bookings bookingStore,
	payments paymentStore,
	disputes disputeStore,
	escrowSvc *EscrowService,
	registry providerRegistry,
	audit auditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		payments:  payments,
		disputes:  disputes,
		escrowSvc: escrowSvc,
		registry:  registry,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// transition validates the edge, checks the domain gates, and performs the
// conditional status write. A zero-row update means another actor moved the
// booking first and surfaces as StatusConflictError.
func (s *BookingService) transition(ctx context.Context, booking *models.Booking, target string, extra *repositories.PayoutFields, actorID *uuid.UUID, actorType string) error {
	if !models.IsValidTransition(booking.Status, target) {
		return &InvalidTransitionError{BookingID: booking.ID, From: booking.Status, To: target}
	}
	if err := s.checkTransitionRules(ctx, booking, target); err != nil {
		return err
	}

	affected, err := s.bookings.UpdateStatusIf(ctx, booking.ID, booking.Status, target, extra)
	if err != nil {
		return err
	}
	if affected == 0 {
		actual, gerr := s.bookings.GetStatus(ctx, booking.ID)
		if gerr != nil {
			actual = "unknown"
		}
		return &StatusConflictError{BookingID: booking.ID, Expected: booking.Status, Actual: actual}
	}

	oldStatus := booking.Status
	booking.Status = target

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("booking_status_%s_to_%s", oldStatus, target),
		EntityType:  "booking",
		EntityID:    &booking.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": target},
	})

	_ = s.publisher.Publish(ctx, events.StreamBookings, events.Event{
		Type: events.EventBookingStatusChanged,
		Payload: map[string]any{
			"booking_id": booking.ID.String(),
			"old_status": oldStatus,
			"new_status": target,
		},
	})

	return nil
}

// checkTransitionRules enforces the gates that the transition table alone
// cannot express.
func (s *BookingService) checkTransitionRules(ctx context.Context, booking *models.Booking, target string) error {
	switch target {
	case models.BookingStatusConfirmed:
		payment, err := s.payments.GetByBookingID(ctx, booking.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return &BusinessRuleError{Rule: "payment_required", Detail: "booking has no payment"}
			}
			return err
		}
		if payment.Status != models.PaymentStatusCompleted {
			return &BusinessRuleError{Rule: "payment_required", Detail: fmt.Sprintf("payment status is %s", payment.Status)}
		}
	case models.BookingStatusCheckedIn:
		if s.now().Before(booking.CheckInDate) {
			return &BusinessRuleError{Rule: "too_early", Detail: "check-in date has not arrived"}
		}
	case models.BookingStatusCompleted:
		if s.now().Before(booking.CheckInDate) {
			return &BusinessRuleError{Rule: "too_early", Detail: "stay has not started"}
		}
	}

	// Leaving the dispute state requires the dispute itself be resolved first.
	if booking.Status == models.BookingStatusDisputeOpened {
		open, err := s.disputes.HasOpenDispute(ctx, booking.ID)
		if err != nil {
			return err
		}
		if open {
			return &BusinessRuleError{Rule: "dispute_open", Detail: "resolve the dispute before moving the booking"}
		}
	}

	return nil
}

// Transition applies one table-validated status change on behalf of a user
// and returns the booking as it stands afterwards. Cancellation of a funded
// booking must go through CancelBooking, which owns the refund math.
func (s *BookingService) Transition(ctx context.Context, bookingID uuid.UUID, target string, actorID *uuid.UUID, actorType string) (*models.BookingWithRelations, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if target == models.BookingStatusCancelled && booking.Status != models.BookingStatusPending {
		return nil, &BusinessRuleError{Rule: "use_cancellation_flow", Detail: "funded bookings are cancelled through the cancellation endpoint"}
	}

	extra := s.payoutFieldsFor(booking, target)
	if err := s.transition(ctx, booking, target, extra, actorID, actorType); err != nil {
		return nil, err
	}
	return s.bookings.GetByIDWithRelations(ctx, bookingID)
}

// SafeTransition is Transition with idempotent semantics: losing the race to
// an actor who already applied the same target reports success.
func (s *BookingService) SafeTransition(ctx context.Context, bookingID uuid.UUID, target string, actorID *uuid.UUID, actorType string) error {
	_, err := s.Transition(ctx, bookingID, target, actorID, actorType)
	return ignoreAlreadyApplied(err, target)
}

// settleTransition applies a status change the settlement engine itself
// decided on. The cancellation-flow guard does not apply because the refund
// math already ran, and the payout axis is left exactly as the caller set
// it. Idempotent like SafeTransition.
func (s *BookingService) settleTransition(ctx context.Context, bookingID uuid.UUID, target string, actorID *uuid.UUID) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	return ignoreAlreadyApplied(s.transition(ctx, booking, target, nil, actorID, "system"), target)
}

// ignoreAlreadyApplied reports success when the error means another actor
// already moved the booking to the same target.
func ignoreAlreadyApplied(err error, target string) error {
	if err == nil {
		return nil
	}
	var conflict *StatusConflictError
	if errors.As(err, &conflict) && conflict.Actual == target {
		return nil
	}
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) && invalid.From == target {
		return nil
	}
	return err
}

// BatchResult is the per-booking outcome of a BatchTransition.
type BatchResult struct {
	BookingID uuid.UUID `json:"booking_id"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
	OK        bool      `json:"ok"`
}

// BatchTransition applies the same target to many bookings, isolating
// failures per booking.
func (s *BookingService) BatchTransition(ctx context.Context, bookingIDs []uuid.UUID, target string, actorID *uuid.UUID, actorType string) []BatchResult {
	results := make([]BatchResult, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		_, err := s.Transition(ctx, id, target, actorID, actorType)
		r := BatchResult{BookingID: id, Err: err, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// ForceTransition moves a booking to any status, bypassing the transition
// table and the domain gates. Admin-only; always audited with the override
// flag and the reason.
func (s *BookingService) ForceTransition(ctx context.Context, bookingID uuid.UUID, target string, actorID *uuid.UUID, reason string) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	affected, err := s.bookings.UpdateStatusIf(ctx, booking.ID, booking.Status, target, s.payoutFieldsFor(booking, target))
	if err != nil {
		return err
	}
	if affected == 0 {
		actual, gerr := s.bookings.GetStatus(ctx, booking.ID)
		if gerr != nil {
			actual = "unknown"
		}
		return &StatusConflictError{BookingID: booking.ID, Expected: booking.Status, Actual: actual}
	}

	oldStatus := booking.Status
	booking.Status = target

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   "admin",
		Action:      fmt.Sprintf("booking_force_%s_to_%s", oldStatus, target),
		EntityType:  "booking",
		EntityID:    &booking.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": target, "forced": true, "reason": reason},
	})
	_ = s.publisher.Publish(ctx, events.StreamBookings, events.Event{
		Type: events.EventBookingStatusChanged,
		Payload: map[string]any{
			"booking_id": booking.ID.String(),
			"old_status": oldStatus,
			"new_status": target,
			"forced":     true,
		},
	})
	return nil
}

// AssertStatus fails with StatusConflictError unless the booking currently
// holds expected.
func (s *BookingService) AssertStatus(ctx context.Context, bookingID uuid.UUID, expected string) error {
	actual, err := s.bookings.GetStatus(ctx, bookingID)
	if err != nil {
		return err
	}
	if actual != expected {
		return &StatusConflictError{BookingID: bookingID, Expected: expected, Actual: actual}
	}
	return nil
}

// AllowedNextStatuses returns the statuses the booking may move to from its
// current state.
func (s *BookingService) AllowedNextStatuses(ctx context.Context, bookingID uuid.UUID) ([]string, error) {
	status, err := s.bookings.GetStatus(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return models.AllowedNextStatuses(status), nil
}

// payoutFieldsFor derives the payout-axis columns a status change must set
// alongside the status itself.
func (s *BookingService) payoutFieldsFor(booking *models.Booking, target string) *repositories.PayoutFields {
	switch target {
	case models.BookingStatusConfirmed:
		release := escrow.ReleaseDate(booking.CheckInDate, s.cfg.PayoutReleaseOffset)
		status := models.PayoutStatusPending
		return &repositories.PayoutFields{PayoutStatus: &status, PayoutReleaseDate: &release}
	case models.BookingStatusCancelled:
		status := models.PayoutStatusReleased
		return &repositories.PayoutFields{PayoutStatus: &status, ClearHold: true}
	default:
		return nil
	}
}

type CreateBookingInput struct {
	PropertyID      uuid.UUID
	GuestID         uuid.UUID
	CheckInDate     time.Time
	CheckOutDate    time.Time
	Currency        string
	RoomFee         int64
	CleaningFee     int64
	SecurityDeposit int64
	ServiceFee      int64
}

// CreateBooking records a pending booking with its full fee breakdown. The
// platform fee comes off the room fee by the configured basis points.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if !in.CheckOutDate.After(in.CheckInDate) {
		return nil, &BusinessRuleError{Rule: "invalid_dates", Detail: "check-out must be after check-in"}
	}
	if !in.CheckInDate.After(s.now()) {
		return nil, &BusinessRuleError{Rule: "invalid_dates", Detail: "check-in must be in the future"}
	}
	if in.RoomFee <= 0 {
		return nil, &BusinessRuleError{Rule: "invalid_amount", Detail: "room fee must be positive"}
	}
	if in.CleaningFee < 0 || in.SecurityDeposit < 0 || in.ServiceFee < 0 {
		return nil, &BusinessRuleError{Rule: "invalid_amount", Detail: "fee components cannot be negative"}
	}

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	platformFee := in.RoomFee * int64(s.cfg.PlatformFeeBPS) / 10000

	booking := &models.Booking{
		PropertyID:      in.PropertyID,
		GuestID:         in.GuestID,
		Status:          models.BookingStatusPending,
		CheckInDate:     in.CheckInDate,
		CheckOutDate:    in.CheckOutDate,
		Currency:        currency,
		RoomFee:         in.RoomFee,
		CleaningFee:     in.CleaningFee,
		SecurityDeposit: in.SecurityDeposit,
		ServiceFee:      in.ServiceFee,
		PlatformFee:     platformFee,
		TotalPrice:      in.RoomFee + in.CleaningFee + in.SecurityDeposit + in.ServiceFee + platformFee,
		PayoutStatus:    models.PayoutStatusPending,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &in.GuestID,
		ActorType:   "guest",
		Action:      "booking_created",
		EntityType:  "booking",
		EntityID:    &booking.ID,
		Meta:        map[string]any{"total_price": booking.TotalPrice, "currency": currency},
	})

	return booking, nil
}

// CancelBooking runs the tiered cancellation of a funded booking: compute the
// refund split from time-to-check-in, execute the provider refund, then flip
// the status and post the ledger entries. At or after check-in the request is
// refused.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID, actorID *uuid.UUID, actorType string) (*escrow.CancellationOutcome, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingStatusPending {
		// Nothing was charged; a plain transition suffices.
		if err := s.transition(ctx, booking, models.BookingStatusCancelled, s.payoutFieldsFor(booking, models.BookingStatusCancelled), actorID, actorType); err != nil {
			return nil, err
		}
		return &escrow.CancellationOutcome{}, nil
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, &InvalidTransitionError{BookingID: booking.ID, From: booking.Status, To: models.BookingStatusCancelled}
	}

	outcome, err := escrow.CancellationSplit(Fees(booking), s.now(), booking.CheckInDate, s.cfg.CancellationFeeBPS)
	if err != nil {
		if errors.Is(err, escrow.ErrCancellationClosed) {
			return nil, &BusinessRuleError{Rule: "cancellation_closed", Detail: "check-in has started"}
		}
		return nil, err
	}

	payment, err := s.payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	client, ok := s.registry.Get(payment.Provider)
	if !ok {
		return nil, &ProviderError{Provider: payment.Provider, Op: "refund", Err: errors.New("no client configured")}
	}

	var refundRef *string
	if outcome.GuestRefund > 0 {
		refund, rerr := client.ProcessRefund(ctx, providers.RefundRequest{
			Reference: payment.ProviderRef,
			Amount:    outcome.GuestRefund,
		})
		if rerr != nil {
			return nil, &ProviderError{Provider: payment.Provider, Op: "refund", Err: rerr}
		}
		refundRef = &refund.RefundRef
	}

	if err := s.transition(ctx, booking, models.BookingStatusCancelled, s.payoutFieldsFor(booking, models.BookingStatusCancelled), actorID, actorType); err != nil {
		return nil, err
	}

	if err := s.escrowSvc.RecordAll(ctx, booking, outcome.Actions(), refundRef, nil); err != nil {
		return nil, err
	}
	if outcome.GuestRefund > 0 {
		_ = s.payments.MarkRefunded(ctx, payment.ID)
	}

	// The host share of the retained remainder pays out immediately.
	if outcome.HostShare > 0 {
		s.log.Info("cancellation host share due",
			zap.String("booking_id", booking.ID.String()),
			zap.Int64("amount", outcome.HostShare),
		)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      "booking_cancelled",
		EntityType:  "booking",
		EntityID:    &booking.ID,
		Meta: map[string]any{
			"refund_percent": outcome.RefundPercent,
			"guest_refund":   outcome.GuestRefund,
			"host_share":     outcome.HostShare,
			"platform_fee":   outcome.PlatformFeeShare,
		},
	})

	return &outcome, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.BookingWithRelations, error) {
	booking, err := s.bookings.GetByIDWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment, perr := s.payments.GetByBookingID(ctx, id); perr == nil {
		booking.Payment = payment
	}
	return booking, nil
}

func (s *BookingService) ListBookings(ctx context.Context, f repositories.BookingFilter) ([]models.Booking, error) {
	return s.bookings.List(ctx, f)
}

// GetBookingEvents returns the audit trail for a booking, newest first.
func (s *BookingService) GetBookingEvents(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, "booking", bookingID, 100, 0)
}
