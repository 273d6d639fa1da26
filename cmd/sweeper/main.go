package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/internal/booking"
	appconfig "github.com/tidebook/booking-engine/internal/config"
	"github.com/tidebook/booking-engine/internal/holds"
	"github.com/tidebook/booking-engine/internal/notify"
	"github.com/tidebook/booking-engine/internal/timeouts"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Standalone sweep/timeout worker for deployments that keep background
// processing out of the API process.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine sweeper", "interval", cfg.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	availRepo := availability.NewRepository(pool)
	holdsRepo := holds.NewRepository(pool)
	availSvc := availability.NewService(availRepo, holdsRepo, nil, availability.Defaults{
		GranularityMinutes: cfg.SlotGranularityMinutes,
		MinimumNoticeHours: cfg.MinimumNoticeHours,
		MaxAdvanceDays:     cfg.MaxAdvanceDays,
		Timezone:           cfg.DefaultTimezone,
	}, logger)

	holdManager := holds.NewManager(holdsRepo, availSvc, logger, nil)
	timeoutStore := timeouts.NewStore(pool)
	outboxStore := notify.NewOutboxStore(pool)

	bookingSvc := booking.NewService(pool, booking.NewRepository(pool), holdManager, timeoutStore, outboxStore, booking.Config{
		PlatformFeePercent:  cfg.PlatformFeePercent,
		HoldDurationMinutes: cfg.HoldDurationMinutes,
		PaymentTimeout:      cfg.PaymentTimeout,
		ReminderLeadTime:    cfg.ReminderLeadTime,
	}, logger, nil)

	timeoutWorker := timeouts.NewWorker(timeoutStore, bookingSvc, logger)
	sweeper := holds.NewSweeper(holdManager, timeoutWorker, logger).WithInterval(cfg.SweepInterval)

	sweeper.Start(ctx)
	logger.Info("sweeper stopped")
}
