package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NotifyClient communicates with the internal notification service that
// delivers guest and host emails.
type NotifyClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewNotifyClient(baseURL string, log *zap.Logger) *NotifyClient {
	return &NotifyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type Notification struct {
	UserID    string         `json:"user_id"`
	Template  string         `json:"template"`
	BookingID string         `json:"booking_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Send delivers one notification. Failures are logged and swallowed: booking
// flow never blocks on the notify service.
func (c *NotifyClient) Send(ctx context.Context, n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		c.log.Warn("failed to marshal notification", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/internal/notify", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		c.log.Warn("failed to build notify request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("notify service unavailable", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warn("notify service returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(b)),
		)
	}
}
