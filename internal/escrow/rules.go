// Package escrow holds the pure decision rules for fee-component splits and
// release eligibility. It never touches storage or payment providers: callers
// get back action descriptors and execute them.
package escrow

import (
	"errors"
	"fmt"
	"time"
)

// Ledger parties.
const (
	PartyGuest    = "guest"
	PartyHost     = "host"
	PartyPlatform = "platform"
	PartyEscrow   = "escrow"
)

// Ledger event types.
const (
	EventHold                = "hold"
	EventCleaningPassthrough = "cleaning_passthrough"
	EventPlatformFeeCapture  = "platform_fee_capture"
	EventSplitRelease        = "split_release"
	EventDepositReturn       = "deposit_return"
	EventRefundToGuest       = "refund_to_guest"
	EventPayHostFromDeposit  = "pay_host_from_deposit"
	EventCancellationFee     = "cancellation_fee"
	EventTransferReversal    = "transfer_reversal"
)

var ErrCancellationClosed = errors.New("cancellation window closed: check-in has started")

// FeeBreakdown is a booking's price components in integer minor units.
type FeeBreakdown struct {
	RoomFee         int64
	CleaningFee     int64
	SecurityDeposit int64
	ServiceFee      int64
	PlatformFee     int64
}

func (f FeeBreakdown) Total() int64 {
	return f.RoomFee + f.CleaningFee + f.SecurityDeposit + f.ServiceFee + f.PlatformFee
}

// Held is the portion retained in escrow after a successful payment.
func (f FeeBreakdown) Held() int64 {
	return f.RoomFee + f.SecurityDeposit
}

// Action describes one money movement for the caller to record and, where the
// destination is external, execute.
type Action struct {
	EventType   string
	Amount      int64
	Source      string
	Destination string
	Purpose     string
}

// PaymentSplit returns the ledger actions due the moment a payment is
// verified successful: room fee + deposit held, cleaning fee credited to the
// host, service + platform fees captured by the platform.
func PaymentSplit(f FeeBreakdown) []Action {
	actions := []Action{
		{EventType: EventHold, Amount: f.Held(), Source: PartyGuest, Destination: PartyEscrow, Purpose: "room fee and security deposit held in escrow"},
	}
	if f.CleaningFee > 0 {
		actions = append(actions, Action{EventType: EventCleaningPassthrough, Amount: f.CleaningFee, Source: PartyGuest, Destination: PartyHost, Purpose: "cleaning fee credited to host"})
	}
	if f.ServiceFee+f.PlatformFee > 0 {
		actions = append(actions, Action{EventType: EventPlatformFeeCapture, Amount: f.ServiceFee + f.PlatformFee, Source: PartyGuest, Destination: PartyPlatform, Purpose: "service and platform fees"})
	}
	return actions
}

// SignedAmount maps an event to its contribution against the original payment
// amount. Escrow-internal retention counts zero; disbursements to a terminal
// party count positive; reversals bring funds back and count negative.
func SignedAmount(eventType, destination string, amount int64) int64 {
	if eventType == EventTransferReversal {
		return -amount
	}
	if destination == PartyEscrow {
		return 0
	}
	return amount
}

// ReleaseDate schedules the host's room-fee share.
func ReleaseDate(checkIn time.Time, offset time.Duration) time.Time {
	return checkIn.Add(offset)
}

// DepositReturnDate schedules the guest's deposit refund.
func DepositReturnDate(checkOut time.Time, offset time.Duration) time.Time {
	return checkOut.Add(offset)
}

// ResumedReleaseDate recomputes a release date after a dispute hold is lifted.
// The date is never allowed to be earlier than now.
func ResumedReleaseDate(original *time.Time, now time.Time) time.Time {
	if original != nil && original.After(now) {
		return *original
	}
	return now
}

// ReleaseEligible reports whether the room-fee share may be transferred.
func ReleaseEligible(now time.Time, releaseDate, holdUntil *time.Time, disputeOpen bool) bool {
	if disputeOpen {
		return false
	}
	if releaseDate == nil || now.Before(*releaseDate) {
		return false
	}
	if holdUntil != nil && now.Before(*holdUntil) {
		return false
	}
	return true
}

// DepositReturnEligible reports whether the deposit may be refunded.
func DepositReturnEligible(now, returnDate time.Time, disputeOpen bool) bool {
	return !disputeOpen && !now.Before(returnDate)
}

// RefundPercent maps time-to-check-in to the cancellation refund tier.
// Exactly 24h before check-in still earns the 90% tier; exactly 12h the 70%
// tier. At or after check-in, cancellation is refused.
func RefundPercent(now, checkIn time.Time) (int, error) {
	until := checkIn.Sub(now)
	if until <= 0 {
		return 0, ErrCancellationClosed
	}
	switch {
	case until >= 24*time.Hour:
		return 90, nil
	case until >= 12*time.Hour:
		return 70, nil
	default:
		return 0, nil
	}
}

// CancellationOutcome is the exact split of a funded booking's money on
// cancellation. GuestRefund + HostShare + PlatformFeeShare equals
// room fee + deposit; the cleaning, service and platform fees keep their
// original passthrough destinations.
type CancellationOutcome struct {
	RefundPercent    int
	GuestRefund      int64 // refunded room-fee share + full deposit
	HostShare        int64 // retained room-fee remainder less the platform cut
	PlatformFeeShare int64 // cancellation-fee cut of the retained remainder
}

// CancellationSplit applies the refund tier to the room fee. The deposit is
// always returned in full (no stay happened); the retained remainder splits
// host/platform by feeBPS so the amounts conserve exactly.
func CancellationSplit(f FeeBreakdown, now, checkIn time.Time, feeBPS int) (CancellationOutcome, error) {
	pct, err := RefundPercent(now, checkIn)
	if err != nil {
		return CancellationOutcome{}, err
	}
	refunded := f.RoomFee * int64(pct) / 100
	remainder := f.RoomFee - refunded
	platformCut := remainder * int64(feeBPS) / 10000
	return CancellationOutcome{
		RefundPercent:    pct,
		GuestRefund:      refunded + f.SecurityDeposit,
		HostShare:        remainder - platformCut,
		PlatformFeeShare: platformCut,
	}, nil
}

// Actions turns a cancellation outcome into ledger actions against the held
// funds.
func (o CancellationOutcome) Actions() []Action {
	var actions []Action
	if o.GuestRefund > 0 {
		actions = append(actions, Action{EventType: EventRefundToGuest, Amount: o.GuestRefund, Source: PartyEscrow, Destination: PartyGuest, Purpose: fmt.Sprintf("cancellation refund (%d%% tier) plus deposit", o.RefundPercent)})
	}
	if o.HostShare > 0 {
		actions = append(actions, Action{EventType: EventSplitRelease, Amount: o.HostShare, Source: PartyEscrow, Destination: PartyHost, Purpose: "host share of cancelled booking"})
	}
	if o.PlatformFeeShare > 0 {
		actions = append(actions, Action{EventType: EventCancellationFee, Amount: o.PlatformFeeShare, Source: PartyEscrow, Destination: PartyPlatform, Purpose: "platform cancellation fee"})
	}
	return actions
}

// DisputeSplit maps a dispute resolution to ledger actions against the held
// funds (room fee + deposit). A nil action list with nil error means normal
// release resumes (no immediate movement).
func DisputeSplit(f FeeBreakdown, resolution string, guestShare, hostShare int64) ([]Action, error) {
	held := f.Held()
	switch resolution {
	case "full_refund":
		return []Action{
			{EventType: EventRefundToGuest, Amount: held, Source: PartyEscrow, Destination: PartyGuest, Purpose: "dispute resolved: full refund of held funds"},
		}, nil
	case "partial_refund":
		if guestShare < 0 || hostShare < 0 || guestShare+hostShare != held {
			return nil, fmt.Errorf("partial refund split %d/%d does not cover held amount %d", guestShare, hostShare, held)
		}
		var actions []Action
		if guestShare > 0 {
			actions = append(actions, Action{EventType: EventRefundToGuest, Amount: guestShare, Source: PartyEscrow, Destination: PartyGuest, Purpose: "dispute resolved: partial refund"})
		}
		if hostShare > 0 {
			actions = append(actions, Action{EventType: EventPayHostFromDeposit, Amount: hostShare, Source: PartyEscrow, Destination: PartyHost, Purpose: "dispute resolved: host share of held funds"})
		}
		return actions, nil
	case "no_refund":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown dispute resolution %q", resolution)
	}
}
