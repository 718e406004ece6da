package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/middleware"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

func (h *PaymentHandler) InitializePayment(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.InitializePaymentRequest
	_ = c.BodyParser(&req)

	result, err := h.paymentService.InitializePayment(c.Context(), bookingID, req.Provider)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.InitializePaymentResponse{
		BookingID:   bookingID.String(),
		CheckoutURL: result.CheckoutURL,
		Reference:   result.Reference,
	}})
}

// VerifyPayment re-checks the charge with the provider. Fallback path for
// when the webhook is delayed or lost.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	payment, err := h.paymentService.VerifyPayment(c.Context(), bookingID)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) ListBanks(c *fiber.Ctx) error {
	banks, err := h.paymentService.ListBanks(c.Context(), c.Query("provider"))
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: banks})
}

func (h *PaymentHandler) SetBankDetails(c *fiber.Ctx) error {
	var req dto.SetBankDetailsRequest
	if err := c.BodyParser(&req); err != nil || req.BankCode == "" || req.AccountNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "bank_code and account_number are required"})
	}

	userID := middleware.GetUserID(c)
	resolved, err := h.paymentService.SetBankDetails(c.Context(), userID, req.BankCode, req.AccountNumber)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: resolved})
}
