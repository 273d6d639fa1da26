package holds

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebook/booking-engine/internal/availability"
)

func newTestHandler(t *testing.T) (*Handler, pgxmock.PgxPoolIface, *stubAvailability) {
	t.Helper()
	mgr, mock, avail := newTestManager(t)
	return NewHandler(mgr, nil), mock, avail
}

func placeHoldBody(providerID, customerID uuid.UUID) string {
	payload, _ := json.Marshal(map[string]any{
		"provider_id": providerID,
		"date":        "2026-09-07",
		"start_time":  "14:00",
		"end_time":    "15:00",
		"customer_id": customerID,
	})
	return string(payload)
}

func TestHandlerPlaceHold(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	providerID := uuid.New()
	customerID := uuid.New()
	now := time.Now()

	mock.ExpectExec("UPDATE holds").
		WithArgs(providerID, "2026-09-07", "14:00", "15:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("INSERT INTO holds").
		WithArgs(pgxmock.AnyArg(), providerID, "2026-09-07", "14:00", "15:00",
			&customerID, "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(placeHoldBody(providerID, customerID)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var hold Hold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hold))
	assert.Equal(t, providerID, hold.ProviderID)
	assert.Equal(t, StatusActive, hold.Status)
}

func TestHandlerPlaceHoldLostRace(t *testing.T) {
	h, mock, avail := newTestHandler(t)
	providerID := uuid.New()
	customerID := uuid.New()
	avail.slots = []availability.Slot{
		{StartTime: "09:00", Available: true},
		{StartTime: "10:00", Available: true},
	}

	mock.ExpectExec("UPDATE holds").
		WithArgs(providerID, "2026-09-07", "14:00", "15:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("INSERT INTO holds").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(placeHoldBody(providerID, customerID)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error        string              `json:"error"`
		Alternatives []availability.Slot `json:"alternatives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "slot no longer available", body.Error)
	require.Len(t, body.Alternatives, 2)
	assert.Equal(t, "09:00", body.Alternatives[0].StartTime)
}

func TestHandlerPlaceHoldMissingRequester(t *testing.T) {
	h, _, _ := newTestHandler(t)

	payload, _ := json.Marshal(map[string]any{
		"provider_id": uuid.New(),
		"date":        "2026-09-07",
		"start_time":  "14:00",
		"end_time":    "15:00",
	})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReleaseHold(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	holdID := uuid.New()
	providerID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows([]string{
		"id", "provider_id", "date", "start", "end", "customer_id", "guest", "status", "locked_until", "created_at", "updated_at",
	}).AddRow(holdID, providerID, "2026-09-07", "14:00", "15:00", nil, "", StatusActive, now, now, now)
	mock.ExpectQuery("SELECT id, provider_id").WithArgs(holdID).WillReturnRows(rows)
	mock.ExpectExec("UPDATE holds").WithArgs(holdID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	req := httptest.NewRequest(http.MethodDelete, "/"+holdID.String(), nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerReleaseHoldNotFound(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	holdID := uuid.New()

	mock.ExpectQuery("SELECT id, provider_id").
		WithArgs(holdID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "provider_id", "date", "start", "end", "customer_id", "guest", "status", "locked_until", "created_at", "updated_at",
		}))

	req := httptest.NewRequest(http.MethodDelete, "/"+holdID.String(), nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerGetHoldInvalidID(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
