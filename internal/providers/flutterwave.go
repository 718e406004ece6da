package providers

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const flutterwaveBaseURL = "https://api.flutterwave.com/v3"

// FlutterwaveClient talks to the Flutterwave v3 REST API. Transfers here are
// the direct family: one call moves funds, no recipient object needed.
type FlutterwaveClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewFlutterwaveClient(secretKey string, log *zap.Logger) *FlutterwaveClient {
	return &FlutterwaveClient{
		baseURL:   flutterwaveBaseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (c *FlutterwaveClient) Name() string { return "flutterwave" }

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *FlutterwaveClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("flutterwave unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env flutterwaveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("flutterwave returned %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 || env.Status != "success" {
		return fmt.Errorf("flutterwave returned %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *FlutterwaveClient) InitializeCharge(ctx context.Context, req InitChargeRequest) (*InitChargeResult, error) {
	var data struct {
		Link string `json:"link"`
	}
	err := c.do(ctx, http.MethodPost, "/payments", map[string]any{
		"tx_ref":   req.Reference,
		"amount":   minorToMajor(req.Amount),
		"currency": req.Currency,
		"customer": map[string]any{"email": req.Email},
	}, &data)
	if err != nil {
		return nil, err
	}
	return &InitChargeResult{CheckoutURL: data.Link, Reference: req.Reference}, nil
}

func (c *FlutterwaveClient) VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error) {
	var data struct {
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		TxRef    string  `json:"tx_ref"`
	}
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &ChargeVerification{
		Succeeded: strings.EqualFold(data.Status, "successful"),
		Amount:    majorToMinor(data.Amount),
		Currency:  data.Currency,
		Reference: data.TxRef,
	}, nil
}

func (c *FlutterwaveClient) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "/transfers", map[string]any{
		"account_bank":   req.BankCode,
		"account_number": req.AccountNumber,
		"amount":         minorToMajor(req.Amount),
		"currency":       req.Currency,
		"reference":      req.Reference,
		"narration":      req.Reason,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &TransferResult{TransferID: fmt.Sprintf("%d", data.ID), Status: strings.ToLower(data.Status)}, nil
}

func (c *FlutterwaveClient) VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	var data []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	path := "/transfers?reference=" + url.QueryEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no transfer found for reference %s", reference)
	}
	return &TransferResult{TransferID: fmt.Sprintf("%d", data[0].ID), Status: strings.ToLower(data[0].Status)}, nil
}

func (c *FlutterwaveClient) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	// Refunds key off the numeric transaction id, so resolve the reference
	// first.
	var tx struct {
		ID int64 `json:"id"`
	}
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(req.Reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}

	body := map[string]any{}
	if req.Amount > 0 {
		body["amount"] = minorToMajor(req.Amount)
	}
	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	refundPath := fmt.Sprintf("/transactions/%d/refund", tx.ID)
	if err := c.do(ctx, http.MethodPost, refundPath, body, &data); err != nil {
		return nil, err
	}
	return &RefundResult{RefundRef: fmt.Sprintf("%d", data.ID), Status: strings.ToLower(data.Status)}, nil
}

func (c *FlutterwaveClient) ListBanks(ctx context.Context) ([]Bank, error) {
	var banks []Bank
	if err := c.do(ctx, http.MethodGet, "/banks/NG", nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (c *FlutterwaveClient) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	var acct ResolvedAccount
	err := c.do(ctx, http.MethodPost, "/accounts/resolve", map[string]any{
		"account_number": accountNumber,
		"account_bank":   bankCode,
	}, &acct)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// VerifyFlutterwaveHash checks the verif-hash header: plain shared-secret
// equality, compared in constant time.
func VerifyFlutterwaveHash(header, secretHash string) bool {
	if header == "" || secretHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secretHash)) == 1
}

type flutterwaveWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64   `json:"id"`
		TxRef     string  `json:"tx_ref"`
		FlwRef    string  `json:"flw_ref"`
		Reference string  `json:"reference"`
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		Status    string  `json:"status"`
	} `json:"data"`
}

// ParseFlutterwaveWebhook normalizes a verified Flutterwave payload. ok=false
// means the event carries no meaning for the core and should be acknowledged
// without processing.
func ParseFlutterwaveWebhook(body []byte) (Event, bool, error) {
	var wh flutterwaveWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return Event{}, false, fmt.Errorf("malformed flutterwave payload: %w", err)
	}

	ev := Event{
		Provider:    "flutterwave",
		ID:          fmt.Sprintf("%s:%d", wh.Event, wh.Data.ID),
		Reference:   wh.Data.TxRef,
		TransferRef: wh.Data.Reference,
		Amount:      majorToMinor(wh.Data.Amount),
		Currency:    wh.Data.Currency,
		Raw:         json.RawMessage(body),
	}

	status := strings.ToLower(wh.Data.Status)
	switch wh.Event {
	case "charge.completed":
		if status == "successful" {
			ev.Kind = KindChargeSucceeded
		} else {
			ev.Kind = KindChargeFailed
		}
	case "transfer.completed":
		// Transfer payloads carry the merchant reference in data.reference,
		// not tx_ref, so the correlation key has to come from there.
		ev.Reference = wh.Data.Reference
		switch status {
		case "successful":
			ev.Kind = KindTransferSucceeded
		case "reversed":
			ev.Kind = KindTransferReversed
		default:
			ev.Kind = KindTransferFailed
		}
	case "charge.dispute.create":
		ev.Kind = KindDisputeOpened
	case "charge.dispute.resolve":
		ev.Kind = KindDisputeClosed
		if status == "won" {
			ev.DisputeOutcome = DisputeOutcomeWon
		} else {
			ev.DisputeOutcome = DisputeOutcomeLost
		}
	default:
		return ev, false, nil
	}
	return ev, true, nil
}

// Flutterwave amounts are major units; the core works in minor units.
func minorToMajor(minor int64) float64 { return float64(minor) / 100 }
func majorToMinor(major float64) int64 { return int64(math.Round(major * 100)) }
