package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// Handler handles HTTP requests for provider schedules and slot queries.
type Handler struct {
	repo   *Repository
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new availability handler.
func NewHandler(repo *Repository, svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, svc: svc, logger: logger}
}

// Routes returns the provider-scoped availability route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/availability", h.GetAvailability)
	r.Get("/availability/check", h.CheckSlot)
	r.Get("/windows", h.ListWindows)
	r.Put("/windows", h.ReplaceWindows)
	r.Post("/blocks", h.CreateBlock)
	r.Delete("/blocks/{blockID}", h.DeleteBlock)
	return r
}

// GetAvailability handles GET /providers/{providerID}/availability requests.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "missing date", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	days := 1
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 && d <= 31 {
			days = d
		}
	}
	q := SlotQuery{}
	if durStr := r.URL.Query().Get("duration"); durStr != "" {
		if d, err := strconv.Atoi(durStr); err == nil && d > 0 {
			q.DurationMinutes = d
		}
	}
	if granStr := r.URL.Query().Get("granularity"); granStr != "" {
		if g, err := strconv.Atoi(granStr); err == nil && g > 0 {
			q.GranularityMinutes = g
		}
	}
	q.Timezone = r.URL.Query().Get("tz")

	availability, err := h.svc.GetAvailability(r.Context(), providerID, date, days, q)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_id": providerID,
		"days":        availability,
	})
}

// CheckSlot handles GET /providers/{providerID}/availability/check requests.
func (h *Handler) CheckSlot(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	date, start, end := query.Get("date"), query.Get("start"), query.Get("end")
	if date == "" || start == "" || end == "" {
		http.Error(w, "missing date, start, or end", http.StatusBadRequest)
		return
	}

	available, err := h.svc.CheckSlot(r.Context(), providerID, date, start, end, query.Get("tz"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_id": providerID,
		"date":        date,
		"start_time":  start,
		"end_time":    end,
		"available":   available,
	})
}

// ListWindows handles GET /providers/{providerID}/windows requests.
func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	windows, err := h.repo.ListWindows(r.Context(), providerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if windows == nil {
		windows = []Window{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_id": providerID,
		"windows":     windows,
	})
}

type replaceWindowsPayload struct {
	Windows []Window `json:"windows"`
}

// ReplaceWindows handles PUT /providers/{providerID}/windows requests. The
// full weekly schedule is replaced in one transaction.
func (h *Handler) ReplaceWindows(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req replaceWindowsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for _, win := range req.Windows {
		if err := validateWindow(win); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.repo.ReplaceWindows(r.Context(), providerID, req.Windows); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("windows replaced", "provider_id", providerID, "count", len(req.Windows))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_id": providerID,
		"count":       len(req.Windows),
	})
}

func validateWindow(win Window) error {
	if win.Weekday < 0 || win.Weekday > 6 {
		return errors.New("weekday must be 0-6")
	}
	start, err := ClockToMinutes(win.StartTime)
	if err != nil {
		return err
	}
	end, err := ClockToMinutes(win.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return ErrInvalidInterval
	}
	return nil
}

type createBlockPayload struct {
	Date      string  `json:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// CreateBlock handles POST /providers/{providerID}/blocks requests. A block
// over an interval with an occupying booking is rejected.
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req createBlockPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		http.Error(w, "missing date", http.StatusBadRequest)
		return
	}
	if (req.StartTime == nil) != (req.EndTime == nil) {
		http.Error(w, "start_time and end_time must both be set or both omitted", http.StatusBadRequest)
		return
	}

	block := &BlockedSlot{
		ProviderID: providerID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
	}
	if err := h.repo.CreateBlock(r.Context(), block); err != nil {
		h.writeError(w, err)
		return
	}
	h.svc.Invalidate(r.Context(), providerID, req.Date)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(block)
}

// DeleteBlock handles DELETE /providers/{providerID}/blocks/{blockID}
// requests. An optional date query param targets the cache purge.
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		http.Error(w, "invalid block id", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteBlock(r.Context(), providerID, blockID); err != nil {
		h.writeError(w, err)
		return
	}
	if date := r.URL.Query().Get("date"); date != "" {
		h.svc.Invalidate(r.Context(), providerID, date)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) providerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "providerID")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBlockNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrBlockConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrMalformedTime), errors.Is(err, ErrInvalidInterval):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("availability request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
