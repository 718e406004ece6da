package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/repositories"
)

func TestReleaseCycleTransfersHostEarnings(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, payment := e.fundedBooking(time.Now().Add(-48 * time.Hour))
	release := time.Now().Add(-time.Hour)
	if err := e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release}); err != nil {
		t.Fatal(err)
	}

	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatalf("RunReleaseCycle: %v", err)
	}

	if len(e.provider.transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(e.provider.transfers))
	}
	tr := e.provider.transfers[0]
	if tr.Amount != payment.HostEarnings {
		t.Fatalf("transfer amount = %d, want %d", tr.Amount, payment.HostEarnings)
	}

	got, _ := e.bookings.GetByID(ctx, booking.ID)
	if got.PayoutStatus != models.PayoutStatusReleased {
		t.Fatalf("payout status = %s, want released", got.PayoutStatus)
	}
	gotPayment, _ := e.payments.GetByBookingID(ctx, booking.ID)
	if !gotPayment.PayoutReleased {
		t.Fatal("payment not marked released")
	}
	payout, err := e.payouts.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if payout.Status != models.PayoutRecordReleased || payout.ProviderTransferID == nil {
		t.Fatalf("payout = %+v", payout)
	}
	if n := e.ledger.count(booking.ID, escrow.EventSplitRelease); n != 1 {
		t.Fatalf("split entries = %d, want 1", n)
	}

	// Recipient handle cached after the first transfer.
	property, _ := e.properties.GetByID(ctx, booking.PropertyID)
	host, _ := e.users.GetByID(ctx, property.HostID)
	if host.TransferRecipient == nil || *host.TransferRecipient != "RCP_1" {
		t.Fatalf("recipient not cached: %+v", host.TransferRecipient)
	}
}

func TestReleaseCycleSecondRunIsNoOp(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, _ := e.fundedBooking(time.Now().Add(-48 * time.Hour))
	release := time.Now().Add(-time.Hour)
	_ = e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release})

	for i := 0; i < 2; i++ {
		if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if len(e.provider.transfers) != 1 {
		t.Fatalf("transfers = %d, want 1 after repeat cycle", len(e.provider.transfers))
	}
}

func TestReleaseSkipsUntilDue(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, _ := e.fundedBooking(time.Now().Add(-time.Hour))
	release := time.Now().Add(23 * time.Hour)
	_ = e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release})

	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(e.provider.transfers) != 0 {
		t.Fatal("transfer ran before the release date")
	}
}

func TestReleaseBlockedByOpenDispute(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, _ := e.fundedBooking(time.Now().Add(-48 * time.Hour))
	release := time.Now().Add(-time.Hour)
	_ = e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release})

	if _, err := e.bookingSvc.Transition(ctx, booking.ID, models.BookingStatusCheckedIn, nil, "guest"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.disputeSvc.OpenDispute(ctx, booking.ID, nil, "property damage"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(e.provider.transfers) != 0 {
		t.Fatal("payout released while a dispute was open")
	}
	got, _ := e.bookings.GetByID(ctx, booking.ID)
	if got.PayoutStatus != models.PayoutStatusOnHold {
		t.Fatalf("payout status = %s, want on_hold", got.PayoutStatus)
	}
}

func TestReleaseFailureRecordedAndRetried(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, payment := e.fundedBooking(time.Now().Add(-48 * time.Hour))
	release := time.Now().Add(-time.Hour)
	_ = e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release})

	e.provider.transferErr = errors.New("gateway timeout")
	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatal(err)
	}
	payout, err := e.payouts.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if payout.Status != models.PayoutRecordFailed || payout.LastError == nil {
		t.Fatalf("payout = %+v, want failed with error", payout)
	}

	// The next cycle retries after the provider recovers.
	e.provider.transferErr = nil
	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatal(err)
	}
	payout, _ = e.payouts.GetByPaymentID(ctx, payment.ID)
	if payout.Status != models.PayoutRecordReleased {
		t.Fatalf("payout status = %s after retry, want released", payout.Status)
	}
	if payout.AttemptCount != 2 {
		t.Fatalf("attempts = %d, want 2", payout.AttemptCount)
	}
}

func TestConservationBoundAbortsOverRelease(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, payment := e.fundedBooking(time.Now().Add(-48 * time.Hour))

	// Poison the ledger with an extra disbursement so the bound trips.
	_ = e.ledger.Append(ctx, &models.EscrowEvent{
		BookingID:   booking.ID,
		EventType:   "manual_adjustment",
		Amount:      100_000,
		Currency:    "NGN",
		SourceParty: escrow.PartyEscrow,
		DestParty:   escrow.PartyGuest,
	})

	err := e.escrowSvc.CheckConservation(ctx, booking.ID, payment.Amount, booking.RoomFee)
	var inv *LedgerInvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want LedgerInvariantError", err)
	}

	release := time.Now().Add(-time.Hour)
	_ = e.bookings.UpdatePayoutFields(ctx, booking.ID, repositories.PayoutFields{PayoutReleaseDate: &release})
	if err := e.payoutSvc.RunReleaseCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(e.provider.transfers) != 0 {
		t.Fatal("transfer ran despite ledger invariant violation")
	}
}

func TestDepositReturnCycle(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	booking, _ := e.fundedBooking(time.Now().Add(-200 * time.Hour))
	// Walk the booking to checked_out with the check-out far enough back.
	_, _ = e.bookingSvc.Transition(ctx, booking.ID, models.BookingStatusCheckedIn, nil, "guest")
	_, _ = e.bookingSvc.Transition(ctx, booking.ID, models.BookingStatusCheckedOut, nil, "guest")

	if err := e.payoutSvc.RunDepositReturnCycle(ctx); err != nil {
		t.Fatalf("RunDepositReturnCycle: %v", err)
	}

	if len(e.provider.refunds) != 1 || e.provider.refunds[0].Amount != booking.SecurityDeposit {
		t.Fatalf("refunds = %+v", e.provider.refunds)
	}
	got, _ := e.payments.GetByBookingID(ctx, booking.ID)
	if !got.DepositReturned {
		t.Fatal("payment not marked deposit-returned")
	}
	if n := e.ledger.count(booking.ID, escrow.EventDepositReturn); n != 1 {
		t.Fatalf("deposit entries = %d, want 1", n)
	}

	// A second cycle must not refund twice.
	if err := e.payoutSvc.RunDepositReturnCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(e.provider.refunds) != 1 {
		t.Fatalf("refunds after second cycle = %d, want 1", len(e.provider.refunds))
	}
}

func TestPendingTimeoutCycleCancels(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	booking := &models.Booking{
		Status:       models.BookingStatusPending,
		CheckInDate:  time.Now().Add(72 * time.Hour),
		CheckOutDate: time.Now().Add(120 * time.Hour),
		Currency:     "NGN",
		RoomFee:      100_000,
		TotalPrice:   100_000,
		PayoutStatus: models.PayoutStatusPending,
	}
	booking.CreatedAt = time.Now().Add(-2 * time.Hour)
	e.bookings.put(booking)

	if err := e.payoutSvc.RunPendingTimeoutCycle(ctx); err != nil {
		t.Fatal(err)
	}
	status, _ := e.bookings.GetStatus(ctx, booking.ID)
	if status != models.BookingStatusCancelled {
		t.Fatalf("status = %s, want cancelled", status)
	}
}
