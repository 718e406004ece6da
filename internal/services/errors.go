package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InvalidTransitionError is returned when a requested status change is not an
// edge of the transition table.
type InvalidTransitionError struct {
	BookingID uuid.UUID
	From      string
	To        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s for booking %s", e.From, e.To, e.BookingID)
}

// StatusConflictError is returned when a valid transition loses the
// compare-and-swap race: the booking's status changed after it was read.
type StatusConflictError struct {
	BookingID uuid.UUID
	Expected  string
	Actual    string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("status conflict on booking %s: expected %s, found %s", e.BookingID, e.Expected, e.Actual)
}

// BusinessRuleError is returned when a transition edge exists but a domain
// precondition blocks it (unpaid confirmation, early completion, frozen payout).
type BusinessRuleError struct {
	Rule   string
	Detail string
}

func (e *BusinessRuleError) Error() string {
	if e.Detail == "" {
		return e.Rule
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

// ProviderError wraps a payment-gateway failure so callers can decide between
// retry and fail-fast.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// LedgerInvariantError is returned when the escrow ledger's signed sum no
// longer reconciles with the payment amount. It aborts disbursement.
type LedgerInvariantError struct {
	BookingID uuid.UUID
	Expected  int64
	Actual    int64
}

func (e *LedgerInvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for booking %s: disbursed %d exceeds bound %d", e.BookingID, e.Actual, e.Expected)
}

func IsStatusConflict(err error) bool {
	var sc *StatusConflictError
	return errors.As(err, &sc)
}

func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

func IsBusinessRule(err error) bool {
	var br *BusinessRuleError
	return errors.As(err, &br)
}
