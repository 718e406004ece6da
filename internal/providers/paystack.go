package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const paystackBaseURL = "https://api.paystack.co"

// PaystackClient talks to the Paystack REST API. Transfers are the
// recipient-then-transfer family: a transfer recipient is created (or reused)
// before the transfer itself is initiated.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewPaystackClient(secretKey string, log *zap.Logger) *PaystackClient {
	return &PaystackClient{
		baseURL:   paystackBaseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (c *PaystackClient) Name() string { return "paystack" }

// paystackEnvelope is the uniform {status, message, data} wrapper.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *PaystackClient) do(ctx context.Context, method, path string, body any, out any) error {
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
		return fmt.Errorf("paystack unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("paystack returned %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 || !env.Status {
		return fmt.Errorf("paystack returned %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *PaystackClient) InitializeCharge(ctx context.Context, req InitChargeRequest) (*InitChargeResult, error) {
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	err := c.do(ctx, http.MethodPost, "/transaction/initialize", map[string]any{
		"email":     req.Email,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"reference": req.Reference,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &InitChargeResult{CheckoutURL: data.AuthorizationURL, Reference: data.Reference}, nil
}

func (c *PaystackClient) VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error) {
	var data struct {
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Reference string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	return &ChargeVerification{
		Succeeded: data.Status == "success",
		Amount:    data.Amount,
		Currency:  data.Currency,
		Reference: data.Reference,
	}, nil
}

func (c *PaystackClient) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	recipient := req.RecipientCode
	if recipient == "" {
		var rec struct {
			RecipientCode string `json:"recipient_code"`
		}
		err := c.do(ctx, http.MethodPost, "/transferrecipient", map[string]any{
			"type":           "nuban",
			"name":           req.AccountName,
			"account_number": req.AccountNumber,
			"bank_code":      req.BankCode,
			"currency":       req.Currency,
		}, &rec)
		if err != nil {
			return nil, fmt.Errorf("create transfer recipient: %w", err)
		}
		recipient = rec.RecipientCode
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    req.Amount,
		"currency":  req.Currency,
		"recipient": recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &TransferResult{TransferID: data.TransferCode, Status: data.Status, RecipientCode: recipient}, nil
}

func (c *PaystackClient) VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	return &TransferResult{TransferID: data.TransferCode, Status: data.Status}, nil
}

func (c *PaystackClient) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]any{"transaction": req.Reference}
	if req.Amount > 0 {
		body["amount"] = req.Amount
	}
	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/refund", body, &data); err != nil {
		return nil, err
	}
	return &RefundResult{RefundRef: fmt.Sprintf("%d", data.ID), Status: data.Status}, nil
}

func (c *PaystackClient) ListBanks(ctx context.Context) ([]Bank, error) {
	var banks []Bank
	if err := c.do(ctx, http.MethodGet, "/bank", nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (c *PaystackClient) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	var acct ResolvedAccount
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s",
		url.QueryEscape(accountNumber), url.QueryEscape(bankCode))
	if err := c.do(ctx, http.MethodGet, path, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// VerifyPaystackSignature checks the x-paystack-signature header: an
// HMAC-SHA-512 of the raw body keyed with the secret, hex encoded.
func VerifyPaystackSignature(body []byte, signature, secretKey string) bool {
	if signature == "" || secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		// Transfer payloads nest the recipient; dispute payloads nest the
		// disputed transaction.
		TransferCode string `json:"transfer_code"`
		Transaction  struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
		Resolution string `json:"resolution"`
	} `json:"data"`
}

// ParsePaystackWebhook normalizes a verified Paystack payload. ok=false means
// the event type carries no meaning for the core and should be acknowledged
// without processing.
func ParsePaystackWebhook(body []byte) (Event, bool, error) {
	var wh paystackWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return Event{}, false, fmt.Errorf("malformed paystack payload: %w", err)
	}

	ev := Event{
		Provider:    "paystack",
		ID:          fmt.Sprintf("%s:%d", wh.Event, wh.Data.ID),
		Reference:   wh.Data.Reference,
		TransferRef: wh.Data.TransferCode,
		Amount:      wh.Data.Amount,
		Currency:    wh.Data.Currency,
		Raw:         json.RawMessage(body),
	}

	switch wh.Event {
	case "charge.success":
		ev.Kind = KindChargeSucceeded
	case "charge.failed":
		ev.Kind = KindChargeFailed
	case "transfer.success":
		ev.Kind = KindTransferSucceeded
	case "transfer.failed":
		ev.Kind = KindTransferFailed
	case "transfer.reversed":
		ev.Kind = KindTransferReversed
	case "charge.dispute.create":
		ev.Kind = KindDisputeOpened
		if ev.Reference == "" {
			ev.Reference = wh.Data.Transaction.Reference
		}
	case "charge.dispute.resolve":
		ev.Kind = KindDisputeClosed
		if ev.Reference == "" {
			ev.Reference = wh.Data.Transaction.Reference
		}
		// A declined chargeback resolves in the host's favor; anything else
		// (merchant-accepted, auto-accepted) counts against the host.
		if wh.Data.Resolution == "declined" {
			ev.DisputeOutcome = DisputeOutcomeWon
		} else {
			ev.DisputeOutcome = DisputeOutcomeLost
		}
	case "customeridentification.success", "customeridentification.failed":
		ev.Kind = KindAccountUpdated
	default:
		return ev, false, nil
	}
	return ev, true, nil
}
