// Package providers wraps the payment gateways the platform settles through.
// Each client normalizes provider-specific JSON into the shared types here
// before anything else sees it.
package providers

import (
	"context"
	"encoding/json"
)

// Semantic webhook event kinds, shared across providers.
const (
	KindChargeSucceeded   = "charge_succeeded"
	KindChargeFailed      = "charge_failed"
	KindTransferSucceeded = "transfer_succeeded"
	KindTransferFailed    = "transfer_failed"
	KindTransferReversed  = "transfer_reversed"
	KindDisputeOpened     = "dispute_opened"
	KindDisputeClosed     = "dispute_closed"
	KindAccountUpdated    = "account_updated"
)

// Dispute outcomes carried by KindDisputeClosed events.
const (
	DisputeOutcomeWon  = "won"
	DisputeOutcomeLost = "lost"
)

// Event is a provider notification normalized to the fields the core reads.
// Raw keeps the full payload for the audit trail.
type Event struct {
	Provider       string
	ID             string // provider event id, the idempotency token
	Kind           string
	Reference      string // charge/transaction reference
	TransferRef    string
	Amount         int64 // minor units
	Currency       string
	DisputeOutcome string
	Raw            json.RawMessage
}

type InitChargeRequest struct {
	Email     string
	Amount    int64 // minor units
	Currency  string
	Reference string
}

type InitChargeResult struct {
	CheckoutURL string
	Reference   string
}

type ChargeVerification struct {
	Succeeded bool
	Amount    int64
	Currency  string
	Reference string
}

type TransferRequest struct {
	Amount        int64
	Currency      string
	Reference     string
	Reason        string
	BankCode      string
	AccountNumber string
	AccountName   string
	// RecipientCode is a cached provider-side recipient handle; clients that
	// need one create it when empty.
	RecipientCode string
}

type TransferResult struct {
	TransferID    string
	Status        string
	RecipientCode string
}

type RefundRequest struct {
	Reference string // original charge reference
	Amount    int64  // minor units; 0 means full refund
}

type RefundResult struct {
	RefundRef string
	Status    string
}

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// Client is one payment gateway. Implementations bound every call with the
// caller's context; the scheduler applies its own transfer timeout.
type Client interface {
	Name() string
	InitializeCharge(ctx context.Context, req InitChargeRequest) (*InitChargeResult, error)
	VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
}

// Registry resolves a client by the provider name stored on a payment.
type Registry map[string]Client

func (r Registry) Get(name string) (Client, bool) {
	c, ok := r[name]
	return c, ok
}
