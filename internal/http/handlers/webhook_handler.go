package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

// WebhookHandler terminates the provider callbacks. Signature checks run
// against the raw body before any parsing; unsigned requests get a 401 and
// never reach the core. A non-nil error from the core returns 500 so the
// provider redelivers.
type WebhookHandler struct {
	webhookService *services.WebhookService
	cfg            *config.Config
	log            *zap.Logger
}

func NewWebhookHandler(webhookService *services.WebhookService, cfg *config.Config, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, cfg: cfg, log: log}
}

func (h *WebhookHandler) Paystack(c *fiber.Ctx) error {
	body := c.Body()

	if !providers.VerifyPaystackSignature(body, c.Get("x-paystack-signature"), h.cfg.PaystackWebhookSecret) {
		h.log.Warn("paystack webhook signature rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	ev, known, err := providers.ParsePaystackWebhook(body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "malformed payload"})
	}
	if !known {
		// Unhandled event type, acknowledge so the provider stops retrying.
		return c.SendStatus(fiber.StatusOK)
	}

	return h.dispatch(c, ev)
}

func (h *WebhookHandler) Flutterwave(c *fiber.Ctx) error {
	body := c.Body()

	if !providers.VerifyFlutterwaveHash(c.Get("verif-hash"), h.cfg.FlutterwaveWebhookSecret) {
		h.log.Warn("flutterwave webhook hash rejected", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	ev, known, err := providers.ParseFlutterwaveWebhook(body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "malformed payload"})
	}
	if !known {
		return c.SendStatus(fiber.StatusOK)
	}

	return h.dispatch(c, ev)
}

func (h *WebhookHandler) dispatch(c *fiber.Ctx, ev providers.Event) error {
	if err := h.webhookService.HandleEvent(c.Context(), ev); err != nil {
		h.log.Error("webhook processing failed",
			zap.String("provider", ev.Provider),
			zap.String("event_id", ev.ID),
			zap.String("kind", ev.Kind),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	}
	return c.SendStatus(fiber.StatusOK)
}
