package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/staymarket/backend/internal/auth"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/http/dto"
	"github.com/staymarket/backend/internal/middleware"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues tokens for accounts provisioned elsewhere. Registration
// and profile management are not part of this service.
type AuthHandler struct {
	userRepo *repositories.UserRepo
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthHandler(userRepo *repositories.UserRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, cfg: cfg, log: log}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "email and password are required"})
	}

	user, err := h.userRepo.GetByEmail(c.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
		}
		h.log.Error("login lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{
		Token: token,
		User:  user,
	})
}

func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.userRepo.GetByID(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}
