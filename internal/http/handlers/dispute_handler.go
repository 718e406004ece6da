package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/middleware"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
	log            *zap.Logger
}

func NewDisputeHandler(disputeService *services.DisputeService, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService, log: log}
}

func (h *DisputeHandler) OpenDispute(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.OpenDisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	actorID := middleware.GetUserID(c)
	dispute, err := h.disputeService.OpenDispute(c.Context(), bookingID, &actorID, req.Reason)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) ResolveDispute(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Resolution == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "resolution is required"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.disputeService.ResolveDispute(c.Context(), bookingID, req.Resolution, req.GuestShare, req.HostShare, &actorID); err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}
