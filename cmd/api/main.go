package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/internal/booking"
	appconfig "github.com/tidebook/booking-engine/internal/config"
	"github.com/tidebook/booking-engine/internal/holds"
	"github.com/tidebook/booking-engine/internal/notify"
	"github.com/tidebook/booking-engine/internal/observability/metrics"
	"github.com/tidebook/booking-engine/internal/server"
	"github.com/tidebook/booking-engine/internal/timeouts"
	"github.com/tidebook/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

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

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(registry)

	var cache *availability.Cache
	if redisClient != nil {
		cache = availability.NewCache(redisClient, cfg.AvailabilityCacheTTL, logger, m)
	}

	availRepo := availability.NewRepository(pool)
	holdsRepo := holds.NewRepository(pool)
	availSvc := availability.NewService(availRepo, holdsRepo, cache, availability.Defaults{
		GranularityMinutes: cfg.SlotGranularityMinutes,
		MinimumNoticeHours: cfg.MinimumNoticeHours,
		MaxAdvanceDays:     cfg.MaxAdvanceDays,
		Timezone:           cfg.DefaultTimezone,
	}, logger)

	holdManager := holds.NewManager(holdsRepo, availSvc, logger, m)
	timeoutStore := timeouts.NewStore(pool)
	outboxStore := notify.NewOutboxStore(pool)

	bookingRepo := booking.NewRepository(pool)
	bookingSvc := booking.NewService(pool, bookingRepo, holdManager, timeoutStore, outboxStore, booking.Config{
		PlatformFeePercent:  cfg.PlatformFeePercent,
		HoldDurationMinutes: cfg.HoldDurationMinutes,
		PaymentTimeout:      cfg.PaymentTimeout,
		ReminderLeadTime:    cfg.ReminderLeadTime,
	}, logger, m)

	notifier := notify.NewEffectNotifier(emailSender(ctx, cfg, logger), logger)
	deliverer := notify.NewDeliverer(outboxStore, notifier, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)

	timeoutWorker := timeouts.NewWorker(timeoutStore, bookingSvc, logger)
	sweeper := holds.NewSweeper(holdManager, timeoutWorker, logger).WithInterval(cfg.SweepInterval)
	go sweeper.Start(ctx)

	routerCfg := &server.Config{
		Logger:              logger,
		BookingHandler:      booking.NewHandler(bookingSvc, holdManager, logger),
		HoldsHandler:        holds.NewHandler(holdManager, logger),
		AvailabilityHandler: availability.NewHandler(availRepo, availSvc, logger),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Database:            server.PingFunc(pool.Ping),
	}
	if redisClient != nil {
		routerCfg.Redis = server.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func emailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender
		}
		logger.Error("sendgrid selected but not configured, falling back to log delivery")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, falling back to log delivery", "error", err)
			break
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if sender != nil {
			return sender
		}
	}
	// The "log" provider and any misconfigured real provider fall through to
	// the stub, which logs instead of sending.
	return notify.NewStubEmailSender(logger)
}
