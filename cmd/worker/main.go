package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/db"
	"github.com/staymarket/backend/internal/events"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"github.com/staymarket/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	propertyRepo := repositories.NewPropertyRepo(pool)
	bookingRepo := repositories.NewBookingRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	disputeRepo := repositories.NewDisputeRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	registry := providers.Registry{
		"paystack":    providers.NewPaystackClient(cfg.PaystackSecretKey, log),
		"flutterwave": providers.NewFlutterwaveClient(cfg.FlutterwaveSecretKey, log),
	}
	notifyClient := services.NewNotifyClient(cfg.NotifyInternalURL, log)
	escrowService := services.NewEscrowService(escrowRepo, log)
	bookingService := services.NewBookingService(bookingRepo, paymentRepo, disputeRepo, escrowService, registry, auditRepo, publisher, cfg, log)
	payoutService := services.NewPayoutService(bookingRepo, paymentRepo, payoutRepo, userRepo, propertyRepo, disputeRepo, escrowService, registry, bookingService, publisher, notifyClient, cfg, log)

	// Health endpoint so the orchestrator can probe the process
	health := fiber.New(fiber.Config{DisableStartupMessage: true})
	health.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	go func() {
		if err := health.Listen(fmt.Sprintf(":%s", cfg.WorkerPort)); err != nil {
			log.Error("health server error", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.Duration("release_interval", cfg.ReleaseInterval),
		zap.Int("release_batch_size", cfg.ReleaseBatchSize),
	)

	// Run jobs on tickers
	releaseTicker := time.NewTicker(cfg.ReleaseInterval)
	depositTicker := time.NewTicker(cfg.ReleaseInterval)
	timeoutTicker := time.NewTicker(2 * time.Minute)
	defer releaseTicker.Stop()
	defer depositTicker.Stop()
	defer timeoutTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-releaseTicker.C:
			if err := payoutService.RunReleaseCycle(ctx); err != nil {
				log.Error("release cycle failed", zap.Error(err))
			}
		case <-depositTicker.C:
			if err := payoutService.RunDepositReturnCycle(ctx); err != nil {
				log.Error("deposit return cycle failed", zap.Error(err))
			}
		case <-timeoutTicker.C:
			if err := payoutService.RunPendingTimeoutCycle(ctx); err != nil {
				log.Error("pending timeout cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			_ = health.Shutdown()
			return
		case <-ctx.Done():
			_ = health.Shutdown()
			return
		}
	}
}
