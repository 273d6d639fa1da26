package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockOutbox(t *testing.T) (*OutboxStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewOutboxStore(mock), mock
}

func TestOutboxInsert(t *testing.T) {
	store, mock := newMockOutbox(t)
	bookingID := uuid.New()
	providerID := uuid.New()

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), bookingID, providerID, "2026-09-07", "Customer notified", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Insert(context.Background(), nil, bookingID, providerID, "2026-09-07", "Customer notified",
		EffectPayload{Event: "PROVIDER_ACCEPT", State: "CONFIRMED"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
}

func TestOutboxFetchPending(t *testing.T) {
	store, mock := newMockOutbox(t)
	payload, _ := json.Marshal(EffectPayload{Event: "PLACE_HOLD", State: "HOLD"})
	now := time.Now()

	rows := pgxmock.NewRows([]string{"id", "booking_id", "provider_id", "slot_date", "effect", "payload", "created_at"}).
		AddRow(uuid.New(), uuid.New(), uuid.New(), "2026-09-07", "Slot hold placed", payload, now)
	mock.ExpectQuery("FROM outbox").WithArgs(int32(25)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Slot hold placed", entries[0].Effect)
}

func TestOutboxMarkDeliveredIdempotent(t *testing.T) {
	store, mock := newMockOutbox(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second delivery attempt loses the race and reports not-delivered.
	ok, err = store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

type recordingDeliveryHandler struct {
	handled []string
}

func (h *recordingDeliveryHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.handled = append(h.handled, entry.Effect)
	return nil
}

func TestDelivererDrain(t *testing.T) {
	store, mock := newMockOutbox(t)
	handler := &recordingDeliveryHandler{}
	deliverer := NewDeliverer(store, handler, nil).WithBatchSize(10)

	entryID := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "booking_id", "provider_id", "slot_date", "effect", "payload", "created_at"}).
		AddRow(entryID, uuid.New(), uuid.New(), "2026-09-07", "Provider notified", []byte(`{}`), time.Now())
	mock.ExpectQuery("FROM outbox").WithArgs(int32(10)).WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox").
		WithArgs(entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	deliverer.drain(context.Background())
	assert.Equal(t, []string{"Provider notified"}, handler.handled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
