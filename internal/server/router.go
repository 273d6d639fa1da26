package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/internal/booking"
	"github.com/tidebook/booking-engine/internal/holds"
	servermiddleware "github.com/tidebook/booking-engine/internal/server/middleware"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Pinger reports backend liveness; the pgx pool and redis client both
// provide a compatible Ping through small adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	BookingHandler      *booking.Handler
	HoldsHandler        *holds.Handler
	AvailabilityHandler *availability.Handler
	MetricsHandler      http.Handler

	// Readiness dependencies; nil entries are skipped.
	Database Pinger
	Redis    Pinger
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(servermiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg))

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.BookingHandler != nil {
		r.Mount("/bookings", cfg.BookingHandler.Routes())
	}
	if cfg.HoldsHandler != nil {
		r.Mount("/holds", cfg.HoldsHandler.Routes())
	}
	if cfg.AvailabilityHandler != nil {
		r.Mount("/providers/{providerID}", cfg.AvailabilityHandler.Routes())
	}

	return r
}

func readiness(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if cfg.Database != nil {
			if err := cfg.Database.Ping(ctx); err != nil {
				checks["database"] = err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}
		if cfg.Redis != nil {
			if err := cfg.Redis.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(checks)
	}
}
