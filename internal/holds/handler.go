package holds

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/internal/availability"
	"github.com/tidebook/booking-engine/pkg/logging"
)

// Handler exposes direct hold manipulation for clients that reserve a slot
// before creating a booking.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates a new holds handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// Routes returns the holds route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.PlaceHold)
	r.Route("/{holdID}", func(r chi.Router) {
		r.Get("/", h.GetHold)
		r.Delete("/", h.ReleaseHold)
	})
	return r
}

type placeHoldPayload struct {
	ProviderID      uuid.UUID  `json:"provider_id"`
	Date            string     `json:"date"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	GuestSessionID  string     `json:"guest_session_id,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

// PlaceHold handles POST /holds requests. Losing the race returns 409 with
// alternative open slots on the same date.
func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	var req placeHoldPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	hold, err := h.manager.PlaceHold(r.Context(), nil, PlaceHoldRequest{
		ProviderID: req.ProviderID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Requester: Requester{
			CustomerID:     req.CustomerID,
			GuestSessionID: req.GuestSessionID,
		},
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			h.writeSlotTaken(w, r, req)
			return
		}
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(hold)
}

// GetHold handles GET /holds/{holdID} requests.
func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	hold, err := h.manager.GetHold(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hold)
}

// ReleaseHold handles DELETE /holds/{holdID} requests. Releasing an already
// released or expired hold succeeds.
func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	if err := h.manager.ReleaseHold(r.Context(), nil, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSlotTaken(w http.ResponseWriter, r *http.Request, req placeHoldPayload) {
	duration := 0
	start, startErr := availability.ClockToMinutes(req.StartTime)
	end, endErr := availability.ClockToMinutes(req.EndTime)
	if startErr == nil && endErr == nil && end > start {
		duration = end - start
	}
	alternatives, err := h.manager.FindAlternativeSlots(r.Context(), req.ProviderID, req.Date, duration, "", 5)
	if err != nil {
		h.logger.Error("failed to find alternative slots", "error", err, "provider_id", req.ProviderID)
		alternatives = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]any{
		"error":        "slot no longer available",
		"alternatives": alternatives,
	})
}

func (h *Handler) holdID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "holdID")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid hold id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrHoldNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrHoldNotFoundOrExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, ErrInvalidRequester):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("hold request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
