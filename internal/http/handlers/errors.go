package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/repositories"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

// serviceError maps domain errors to HTTP responses. Conflicts and invalid
// transitions are 409, rule violations 422, everything unrecognized is a 500
// so it surfaces in alerts instead of being swallowed as a client error.
func serviceError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var conflict *services.StatusConflictError
	if errors.As(err, &conflict) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error(), Reason: "status_conflict"})
	}

	var invalid *services.InvalidTransitionError
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error(), Reason: "invalid_transition"})
	}

	var rule *services.BusinessRuleError
	if errors.As(err, &rule) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error(), Reason: rule.Rule})
	}

	if errors.Is(err, repositories.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})
	}

	var provider *services.ProviderError
	if errors.As(err, &provider) {
		log.Error("provider call failed", zap.String("provider", provider.Provider), zap.String("op", provider.Op), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment provider error", Reason: "provider_error"})
	}

	log.Error("request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
