package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/db"
	"github.com/staymarket/backend/internal/events"
	apphttp "github.com/staymarket/backend/internal/http"
	"github.com/staymarket/backend/internal/http/handlers"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	propertyRepo := repositories.NewPropertyRepo(pool)
	bookingRepo := repositories.NewBookingRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	disputeRepo := repositories.NewDisputeRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Payment gateways
	registry := providers.Registry{
		"paystack":    providers.NewPaystackClient(cfg.PaystackSecretKey, log),
		"flutterwave": providers.NewFlutterwaveClient(cfg.FlutterwaveSecretKey, log),
	}

	// Services
	notifyClient := services.NewNotifyClient(cfg.NotifyInternalURL, log)
	escrowService := services.NewEscrowService(escrowRepo, log)
	bookingService := services.NewBookingService(bookingRepo, paymentRepo, disputeRepo, escrowService, registry, auditRepo, publisher, cfg, log)
	paymentService := services.NewPaymentService(bookingRepo, paymentRepo, userRepo, registry, bookingService, cfg, log)
	payoutService := services.NewPayoutService(bookingRepo, paymentRepo, payoutRepo, userRepo, propertyRepo, disputeRepo, escrowService, registry, bookingService, publisher, notifyClient, cfg, log)
	disputeService := services.NewDisputeService(disputeRepo, bookingRepo, paymentRepo, escrowService, registry, bookingService, payoutService, auditRepo, publisher, cfg, log)
	webhookService := services.NewWebhookService(paymentRepo, bookingRepo, payoutRepo, escrowService, paymentService, disputeService, auditRepo, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	bookingHandler := handlers.NewBookingHandler(bookingService, escrowService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	disputeHandler := handlers.NewDisputeHandler(disputeService, log)
	adminHandler := handlers.NewAdminHandler(bookingService, log)
	webhookHandler := handlers.NewWebhookHandler(webhookService, cfg, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, bookingHandler, paymentHandler, disputeHandler, adminHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
