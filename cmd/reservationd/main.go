package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"device-reservation-backend/config"
	"device-reservation-backend/internal/api"
	"device-reservation-backend/internal/booking"
	"device-reservation-backend/internal/clock"
	"device-reservation-backend/internal/db"
	"device-reservation-backend/internal/notification"
	"device-reservation-backend/internal/reaper"
	"device-reservation-backend/internal/store"
	"device-reservation-backend/internal/timeutil"
)

func main() {
	logger := log.New(os.Stdout, "reservationd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// All persisted times live in the canonical zone.
	loc, err := time.LoadLocation(cfg.Reservation.Timezone)
	if err != nil {
		logger.Fatalf("invalid canonical timezone %q: %v", cfg.Reservation.Timezone, err)
	}
	appClock := clock.NewReal(loc)
	normalizer := timeutil.NewNormalizer(loc)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	bookingService := booking.NewService(appStore, appClock)
	logger.Println("data store initialized")

	// Optional web-push fan-out for reaped reservations.
	var notifier reaper.Notifier
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		notifier = workerPool
	}

	// The expiry reaper and status refresh run on their own goroutine,
	// isolated from request handling.
	sweeper := reaper.New(appStore, appClock, cfg.Reservation.Retention, notifier)
	scheduler := reaper.NewScheduler(cfg.Reservation.ReaperInterval,
		reaper.Job{Name: "reap", Run: func(ctx context.Context) error {
			_, err := sweeper.Reap(ctx)
			return err
		}},
		reaper.Job{Name: "refresh", Run: func(ctx context.Context) error {
			_, err := sweeper.Refresh(ctx)
			return err
		}},
		reaper.Job{Name: "purge", Run: func(ctx context.Context) error {
			_, err := sweeper.Purge(ctx)
			return err
		}},
	)
	scheduler.Start(ctx)

	router := api.NewRouter(appStore, bookingService, normalizer, webpushOptions, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// New ticks stop first, then in-flight work drains.
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
