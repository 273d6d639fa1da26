package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/internal/holds"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Handler handles HTTP requests for the booking lifecycle.
type Handler struct {
	svc    *Service
	holds  *holds.Manager
	logger *logging.Logger
}

// NewHandler creates a new booking handler.
func NewHandler(svc *Service, hm *holds.Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, holds: hm, logger: logger}
}

// Routes returns the booking route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListBookings)
	r.Post("/", h.CreateBooking)
	r.Route("/{bookingID}", func(r chi.Router) {
		r.Get("/", h.GetBooking)
		r.Get("/history", h.GetHistory)
		r.Get("/events", h.GetAvailableEvents)
		r.Post("/events", h.SendEvent)
	})
	return r
}

type createBookingPayload struct {
	ProviderID      uuid.UUID  `json:"provider_id"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	GuestSessionID  string     `json:"guest_session_id,omitempty"`
	ServiceName     string     `json:"service_name"`
	UnitPriceCents  int64      `json:"unit_price_cents"`
	DurationMinutes int        `json:"duration_minutes"`
	ServiceDate     string     `json:"service_date"`
	StartTime       string     `json:"start_time"`
}

// CreateBooking handles POST /bookings requests.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), CreateBookingRequest{
		ProviderID:      req.ProviderID,
		CustomerID:      req.CustomerID,
		GuestSessionID:  req.GuestSessionID,
		ServiceName:     req.ServiceName,
		UnitPriceCents:  req.UnitPriceCents,
		DurationMinutes: req.DurationMinutes,
		ServiceDate:     req.ServiceDate,
		StartTime:       req.StartTime,
	})
	if err != nil {
		h.logger.Error("failed to create booking", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

// ListBookings handles GET /bookings?provider_id=...&date=... requests,
// returning a provider's bookings for one date ordered by start time.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
	if err != nil {
		http.Error(w, "invalid provider_id", http.StatusBadRequest)
		return
	}
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	bookings, err := h.svc.ListBookings(r.Context(), providerID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_id": providerID,
		"date":        date,
		"bookings":    bookings,
		"count":       len(bookings),
	})
}

// GetBooking handles GET /bookings/{bookingID} requests.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

// GetHistory handles GET /bookings/{bookingID}/history requests.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.GetHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"booking_id": id,
		"history":    entries,
		"count":      len(entries),
	})
}

// GetAvailableEvents handles GET /bookings/{bookingID}/events requests.
func (h *Handler) GetAvailableEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	state, events, err := h.svc.GetAvailableEvents(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"booking_id": id,
		"state":      state,
		"events":     events,
	})
}

// SendEvent handles POST /bookings/{bookingID}/events requests. A transition
// that lost the slot race returns 409 with alternative slots.
func (h *Handler) SendEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if cmd.Event == "" {
		http.Error(w, "missing event", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Send(r.Context(), id, cmd)
	if err != nil {
		if errors.Is(err, holds.ErrSlotTaken) {
			h.writeSlotTaken(w, r, id, result)
			return
		}
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// writeSlotTaken answers a lost hold race with alternative open slots on the
// same date.
func (h *Handler) writeSlotTaken(w http.ResponseWriter, r *http.Request, id uuid.UUID, result *TransitionResult) {
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	alternatives, err := h.holds.FindAlternativeSlots(r.Context(), b.ProviderID, b.ServiceDate, b.DurationMinutes, "", 5)
	if err != nil {
		h.logger.Error("failed to find alternative slots", "error", err, "booking_id", id)
		alternatives = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]any{
		"error":        "slot no longer available",
		"result":       result,
		"alternatives": alternatives,
	})
}

func (h *Handler) bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "bookingID")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBookingNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidRequester):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("booking request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
