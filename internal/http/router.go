package http

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/http/handlers"
	"github.com/staymarket/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	bookingHandler *handlers.BookingHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	adminHandler *handlers.AdminHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	allowOrigins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Provider webhooks: signature-authenticated, never JWT, never rate
	// limited (the providers retry aggressively and must not see 429).
	api.Post("/webhooks/paystack", webhookHandler.Paystack)
	api.Post("/webhooks/flutterwave", webhookHandler.Flutterwave)

	// Auth (public)
	api.Post("/auth/login", authHandler.Login)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", authHandler.GetMe)
	protected.Get("/meta/banks", paymentHandler.ListBanks)
	protected.Post("/me/bank-details", paymentHandler.SetBankDetails)

	// Bookings
	protected.Post("/bookings", bookingHandler.CreateBooking)
	protected.Get("/bookings", bookingHandler.ListBookings)
	protected.Get("/bookings/:id", bookingHandler.GetBooking)
	protected.Get("/bookings/:id/transitions", bookingHandler.AllowedTransitions)
	protected.Get("/bookings/:id/events", bookingHandler.GetBookingEvents)
	protected.Get("/bookings/:id/escrow", bookingHandler.GetEscrowHistory)
	protected.Post("/bookings/:id/check-in", bookingHandler.CheckIn)
	protected.Post("/bookings/:id/check-out", bookingHandler.CheckOut)
	protected.Post("/bookings/:id/cancel", bookingHandler.CancelBooking)

	// Payments
	protected.Post("/bookings/:id/payment", paymentHandler.InitializePayment)
	protected.Post("/bookings/:id/payment/verify", paymentHandler.VerifyPayment)

	// Disputes
	protected.Post("/bookings/:id/dispute", disputeHandler.OpenDispute)

	// Admin overrides
	admin := protected.Group("/admin", middleware.AdminMiddleware())
	admin.Post("/bookings/:id/transition", adminHandler.Transition)
	admin.Post("/bookings/:id/force-transition", adminHandler.ForceTransition)
	admin.Post("/bookings/:id/assert-status", adminHandler.AssertStatus)
	admin.Post("/bookings/batch-transition", adminHandler.BatchTransition)
	admin.Post("/bookings/:id/dispute/resolve", disputeHandler.ResolveDispute)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
