package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/middleware"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

// AdminHandler exposes the override surface: forced and bulk transitions plus
// status assertions. Every route behind it is gated on the admin role.
type AdminHandler struct {
	bookingService *services.BookingService
	log            *zap.Logger
}

func NewAdminHandler(bookingService *services.BookingService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{bookingService: bookingService, log: log}
}

func (h *AdminHandler) Transition(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil || req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "target is required"})
	}

	actorID := middleware.GetUserID(c)
	booking, err := h.bookingService.Transition(c.Context(), bookingID, req.Target, &actorID, "admin")
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: booking})
}

func (h *AdminHandler) ForceTransition(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.ForceTransitionRequest
	if err := c.BodyParser(&req); err != nil || req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "target is required"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.bookingService.ForceTransition(c.Context(), bookingID, req.Target, &actorID, req.Reason); err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) BatchTransition(c *fiber.Ctx) error {
	var req dto.BatchTransitionRequest
	if err := c.BodyParser(&req); err != nil || req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "target is required"})
	}

	ids := make([]uuid.UUID, 0, len(req.BookingIDs))
	for _, raw := range req.BookingIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id: " + raw})
		}
		ids = append(ids, id)
	}

	actorID := middleware.GetUserID(c)
	results := h.bookingService.BatchTransition(c.Context(), ids, req.Target, &actorID, "admin")

	out := dto.BatchTransitionResponse{Target: req.Target}
	for _, r := range results {
		out.Results = append(out.Results, dto.BatchItemResult{
			BookingID: r.BookingID.String(),
			OK:        r.OK,
			Error:     r.Error,
		})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *AdminHandler) AssertStatus(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	var req dto.AssertStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Expected == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "expected is required"})
	}

	if err := h.bookingService.AssertStatus(c.Context(), bookingID, req.Expected); err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}
