package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/config"
	"frontdesk-backend/internal/api"
	"frontdesk-backend/internal/db"
	"frontdesk-backend/internal/identity"
	"frontdesk-backend/internal/lock"
	"frontdesk-backend/internal/logging"
	"frontdesk-backend/internal/notification"
	"frontdesk-backend/internal/oracle"
	"frontdesk-backend/internal/payment"
	"frontdesk-backend/internal/reservation"
	"frontdesk-backend/internal/stay"
	"frontdesk-backend/internal/store"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.WithField("path", configPath).Info("configuration loaded")

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	gate, err := identity.NewGate(oracle.NewClient(cfg.Oracle, cfg.Identity.Timeout, logger), identity.Options{
		Patterns:       cfg.Identity.DocumentPatterns,
		MatchThreshold: cfg.Identity.MatchThreshold,
		Timeout:        cfg.Identity.Timeout,
	})
	if err != nil {
		logger.Fatalf("failed to build identity gate: %v", err)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to reach redis at %s: %v", cfg.Lock.RedisAddr, err)
		}
		locker = lock.NewRedis(rdb, cfg.Lock.TTL, logger)
	}
	logger.WithField("driver", cfg.Lock.Driver).Info("stay lock ready")

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	var listeners []stay.Listener
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn("VAPID keys are not configured; housekeeping notifications are disabled")
	} else {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, logger)
		workerPool.Start(ctx)
		listeners = append(listeners, workerPool)
	}

	reservations := reservation.NewCached(appStore, cfg.Engine.ReservationCacheTTL)
	payments := payment.NewRecorder(gormDB, cfg.Payment.TerminalID, logger)
	engine := stay.NewEngine(stay.Config{
		TaxRate:               cfg.Engine.Rate(),
		CurrencyPlaces:        cfg.Engine.CurrencyPlaces,
		InventoryTimeout:      cfg.Engine.InventoryTimeout,
		PaymentTimeout:        cfg.Engine.PaymentTimeout,
		AllowIdentityOverride: cfg.Engine.AllowIdentityOverride,
	}, stay.Deps{
		Repo:          appStore,
		Reservations:  reservations,
		Inventory:     appStore,
		Verifier:      gate,
		Payments:      payments,
		Locker:        locker,
		DepositPolicy: stay.MinimumExtraDeposit(cfg.Engine.MinimumExtraDeposit()),
		Listeners:     listeners,
		Logger:        logger,
	})

	handler := api.NewHandler(engine, appStore, webpushOptions, logger).
		WithReservationCache(reservations).
		WithPayments(payments)
	router := api.NewRouter(handler, api.RouterOptions{
		OperatorHeader:  cfg.Server.OperatorHeader,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Info("server gracefully stopped")
}
