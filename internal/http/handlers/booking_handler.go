package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/middleware"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/repositories"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

type BookingHandler struct {
	bookingService *services.BookingService
	escrowService  *services.EscrowService
	log            *zap.Logger
}

func NewBookingHandler(bookingService *services.BookingService, escrowService *services.EscrowService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, escrowService: escrowService, log: log}
}

func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	var req dto.CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid property_id"})
	}

	input := services.CreateBookingInput{
		PropertyID:      propertyID,
		GuestID:         middleware.GetUserID(c),
		CheckInDate:     req.CheckInDate,
		CheckOutDate:    req.CheckOutDate,
		Currency:        req.Currency,
		RoomFee:         req.RoomFee,
		CleaningFee:     req.CleaningFee,
		SecurityDeposit: req.SecurityDeposit,
		ServiceFee:      req.ServiceFee,
	}

	booking, err := h.bookingService.CreateBooking(c.Context(), input)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: booking})
}

func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	booking, err := h.bookingService.GetBooking(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: booking})
}

func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter := repositories.BookingFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("property_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.PropertyID = &id
		}
	}

	switch c.Query("role") {
	case "host":
		filter.HostID = &userID
	default:
		filter.GuestID = &userID
	}

	bookings, err := h.bookingService.ListBookings(c.Context(), filter)
	if err != nil {
		h.log.Error("list bookings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: bookings})
}

func (h *BookingHandler) CheckIn(c *fiber.Ctx) error {
	return h.transitionTo(c, models.BookingStatusCheckedIn)
}

func (h *BookingHandler) CheckOut(c *fiber.Ctx) error {
	return h.transitionTo(c, models.BookingStatusCheckedOut)
}

func (h *BookingHandler) transitionTo(c *fiber.Ctx, target string) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	actorID := middleware.GetUserID(c)
	booking, err := h.bookingService.Transition(c.Context(), id, target, &actorID, middleware.GetUserRole(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: booking})
}

func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	actorID := middleware.GetUserID(c)
	outcome, err := h.bookingService.CancelBooking(c.Context(), id, &actorID, middleware.GetUserRole(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.CancellationResponse{
		BookingID:     id.String(),
		RefundPercent: outcome.RefundPercent,
		GuestRefund:   outcome.GuestRefund,
		HostShare:     outcome.HostShare,
		PlatformShare: outcome.PlatformFeeShare,
	}})
}

func (h *BookingHandler) AllowedTransitions(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	allowed, err := h.bookingService.AllowedNextStatuses(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	status := ""
	if booking, err := h.bookingService.GetBooking(c.Context(), id); err == nil {
		status = booking.Status
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AllowedTransitionsResponse{
		BookingID: id.String(),
		Status:    status,
		Allowed:   allowed,
	}})
}

func (h *BookingHandler) GetBookingEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	events, err := h.bookingService.GetBookingEvents(c.Context(), id)
	if err != nil {
		h.log.Error("get booking events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}

func (h *BookingHandler) GetEscrowHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid booking id"})
	}

	entries, err := h.escrowService.History(c.Context(), id)
	if err != nil {
		h.log.Error("get escrow history failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
