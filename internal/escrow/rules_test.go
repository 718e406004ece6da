package escrow

import (
	"errors"
	"testing"
	"time"
)

var fees = FeeBreakdown{
	RoomFee:         100_000,
	CleaningFee:     15_000,
	SecurityDeposit: 50_000,
	ServiceFee:      8_000,
	PlatformFee:     5_000,
}

func TestFeeBreakdownTotals(t *testing.T) {
	if got := fees.Total(); got != 178_000 {
		t.Fatalf("Total() = %d, want 178000", got)
	}
	if got := fees.Held(); got != 150_000 {
		t.Fatalf("Held() = %d, want 150000", got)
	}
}

func TestPaymentSplitConserves(t *testing.T) {
	actions := PaymentSplit(fees)

	var gross int64
	for _, a := range actions {
		gross += a.Amount
	}
	if gross != fees.Total() {
		t.Errorf("split actions sum to %d, want total %d", gross, fees.Total())
	}

	// Only the passthroughs disburse; the hold stays inside escrow.
	var disbursed int64
	for _, a := range actions {
		disbursed += SignedAmount(a.EventType, a.Destination, a.Amount)
	}
	want := fees.CleaningFee + fees.ServiceFee + fees.PlatformFee
	if disbursed != want {
		t.Errorf("disbursed = %d, want %d", disbursed, want)
	}
}

func TestPaymentSplitOmitsZeroComponents(t *testing.T) {
	actions := PaymentSplit(FeeBreakdown{RoomFee: 1000, SecurityDeposit: 500})
	if len(actions) != 1 {
		t.Fatalf("expected only the hold action, got %d actions", len(actions))
	}
	if actions[0].EventType != EventHold || actions[0].Amount != 1500 {
		t.Errorf("unexpected hold action %+v", actions[0])
	}
}

func TestSignedAmount(t *testing.T) {
	if got := SignedAmount(EventHold, PartyEscrow, 500); got != 0 {
		t.Errorf("hold should contribute 0, got %d", got)
	}
	if got := SignedAmount(EventSplitRelease, PartyHost, 500); got != 500 {
		t.Errorf("release should contribute +amount, got %d", got)
	}
	if got := SignedAmount(EventTransferReversal, PartyEscrow, 500); got != -500 {
		t.Errorf("reversal should contribute -amount, got %d", got)
	}
}

func TestRefundPercentTiers(t *testing.T) {
	checkIn := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		now     time.Time
		want    int
		wantErr bool
	}{
		{"exactly 24h before", checkIn.Add(-24 * time.Hour), 90, false},
		{"well before", checkIn.Add(-30 * 24 * time.Hour), 90, false},
		{"23h59m before", checkIn.Add(-23*time.Hour - 59*time.Minute), 70, false},
		{"exactly 12h before", checkIn.Add(-12 * time.Hour), 70, false},
		{"11h59m before", checkIn.Add(-11*time.Hour - 59*time.Minute), 0, false},
		{"one second before", checkIn.Add(-time.Second), 0, false},
		{"at check-in", checkIn, 0, true},
		{"after check-in", checkIn.Add(time.Hour), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RefundPercent(tt.now, checkIn)
			if tt.wantErr {
				if !errors.Is(err, ErrCancellationClosed) {
					t.Fatalf("expected ErrCancellationClosed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RefundPercent = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCancellationSplitConserves(t *testing.T) {
	checkIn := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	const feeBPS = 1000 // 10% of the retained remainder

	for _, hoursBefore := range []time.Duration{48 * time.Hour, 18 * time.Hour, 6 * time.Hour} {
		now := checkIn.Add(-hoursBefore)
		out, err := CancellationSplit(fees, now, checkIn, feeBPS)
		if err != nil {
			t.Fatalf("CancellationSplit at -%v: %v", hoursBefore, err)
		}
		// The held funds must be fully distributed.
		sum := out.GuestRefund + out.HostShare + out.PlatformFeeShare
		if sum != fees.Held() {
			t.Errorf("at -%v split sums to %d, want held %d", hoursBefore, sum, fees.Held())
		}
		if out.GuestRefund < fees.SecurityDeposit {
			t.Errorf("deposit must always be returned in full, guest refund %d < deposit %d", out.GuestRefund, fees.SecurityDeposit)
		}
	}
}

func TestCancellationSplitZeroTierHostShare(t *testing.T) {
	checkIn := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	now := checkIn.Add(-2 * time.Hour)

	out, err := CancellationSplit(fees, now, checkIn, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if out.RefundPercent != 0 {
		t.Fatalf("expected 0%% tier, got %d%%", out.RefundPercent)
	}
	// Guest still gets the deposit back; the host's share is reduced by the
	// platform's cancellation cut.
	if out.GuestRefund != fees.SecurityDeposit {
		t.Errorf("guest refund = %d, want deposit only %d", out.GuestRefund, fees.SecurityDeposit)
	}
	wantCut := fees.RoomFee * 1000 / 10000
	if out.PlatformFeeShare != wantCut {
		t.Errorf("platform cut = %d, want %d", out.PlatformFeeShare, wantCut)
	}
	if out.HostShare != fees.RoomFee-wantCut {
		t.Errorf("host share = %d, want %d", out.HostShare, fees.RoomFee-wantCut)
	}
}

func TestCancellationRefusedAtCheckIn(t *testing.T) {
	checkIn := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	if _, err := CancellationSplit(fees, checkIn, checkIn, 1000); !errors.Is(err, ErrCancellationClosed) {
		t.Fatalf("expected ErrCancellationClosed at check-in, got %v", err)
	}
}

func TestCancellationActionsCoverOutcome(t *testing.T) {
	checkIn := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	out, err := CancellationSplit(fees, checkIn.Add(-48*time.Hour), checkIn, 1000)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, a := range out.Actions() {
		if a.Source != PartyEscrow {
			t.Errorf("cancellation actions draw from escrow, got source %q", a.Source)
		}
		sum += a.Amount
	}
	if sum != fees.Held() {
		t.Errorf("actions sum to %d, want %d", sum, fees.Held())
	}
}

func TestReleaseEligible(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name        string
		releaseDate *time.Time
		holdUntil   *time.Time
		disputeOpen bool
		want        bool
	}{
		{"due", &past, nil, false, true},
		{"due at exact instant", &now, nil, false, true},
		{"not yet due", &future, nil, false, false},
		{"no date scheduled", nil, nil, false, false},
		{"dispute blocks", &past, nil, true, false},
		{"active hold blocks", &past, &future, false, false},
		{"expired hold releases", &past, &past, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReleaseEligible(now, tt.releaseDate, tt.holdUntil, tt.disputeOpen); got != tt.want {
				t.Errorf("ReleaseEligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDepositReturnEligible(t *testing.T) {
	now := time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)
	if !DepositReturnEligible(now, now.Add(-time.Hour), false) {
		t.Error("past return date should be eligible")
	}
	if DepositReturnEligible(now, now.Add(time.Hour), false) {
		t.Error("future return date should not be eligible")
	}
	if DepositReturnEligible(now, now.Add(-time.Hour), true) {
		t.Error("open dispute must block deposit return")
	}
}

func TestResumedReleaseDateNeverInPast(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	if got := ResumedReleaseDate(&past, now); !got.Equal(now) {
		t.Errorf("backdated release must clamp to now, got %v", got)
	}
	if got := ResumedReleaseDate(&future, now); !got.Equal(future) {
		t.Errorf("future release date must be kept, got %v", got)
	}
	if got := ResumedReleaseDate(nil, now); !got.Equal(now) {
		t.Errorf("missing release date resumes at now, got %v", got)
	}
}

func TestDisputeSplit(t *testing.T) {
	held := fees.Held()

	t.Run("full refund", func(t *testing.T) {
		actions, err := DisputeSplit(fees, "full_refund", 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(actions) != 1 || actions[0].Amount != held || actions[0].Destination != PartyGuest {
			t.Errorf("unexpected actions %+v", actions)
		}
	})

	t.Run("partial refund conserves", func(t *testing.T) {
		actions, err := DisputeSplit(fees, "partial_refund", held-30_000, 30_000)
		if err != nil {
			t.Fatal(err)
		}
		var sum int64
		for _, a := range actions {
			sum += a.Amount
		}
		if sum != held {
			t.Errorf("partial refund actions sum to %d, want %d", sum, held)
		}
	})

	t.Run("partial refund rejects bad split", func(t *testing.T) {
		if _, err := DisputeSplit(fees, "partial_refund", 100, 100); err == nil {
			t.Error("expected error for split not covering held amount")
		}
		if _, err := DisputeSplit(fees, "partial_refund", -1, held+1); err == nil {
			t.Error("expected error for negative share")
		}
	})

	t.Run("no refund resumes release", func(t *testing.T) {
		actions, err := DisputeSplit(fees, "no_refund", 0, 0)
		if err != nil || actions != nil {
			t.Errorf("no_refund should yield no actions, got %v, %v", actions, err)
		}
	})

	t.Run("unknown resolution", func(t *testing.T) {
		if _, err := DisputeSplit(fees, "split_the_difference", 0, 0); err == nil {
			t.Error("expected error for unknown resolution")
		}
	})
}
