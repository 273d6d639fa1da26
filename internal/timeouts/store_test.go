package timeouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestSchedule(t *testing.T) {
	store, mock := newMockStore(t)
	bookingID := uuid.New()
	due := time.Now().Add(10 * time.Minute)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO timeouts").
		WithArgs(pgxmock.AnyArg(), bookingID, KindHoldExpiry, due).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	timeout := &Timeout{BookingID: bookingID, Kind: KindHoldExpiry, DueAt: due}
	require.NoError(t, store.Schedule(context.Background(), nil, timeout))
	assert.NotEqual(t, uuid.Nil, timeout.ID)
	assert.Equal(t, StatusPending, timeout.Status)
}

func TestCancelPendingAll(t *testing.T) {
	store, mock := newMockStore(t)
	bookingID := uuid.New()

	mock.ExpectExec("UPDATE timeouts").
		WithArgs(bookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, store.CancelPending(context.Background(), nil, bookingID))
}

func TestCancelPendingByKind(t *testing.T) {
	store, mock := newMockStore(t)
	bookingID := uuid.New()

	mock.ExpectExec("UPDATE timeouts").
		WithArgs(bookingID, []string{KindReminder}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.CancelPending(context.Background(), nil, bookingID, KindReminder))
}

func TestFetchDue(t *testing.T) {
	store, mock := newMockStore(t)
	bookingID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}).
		AddRow(uuid.New(), bookingID, KindHoldExpiry, now, StatusPending, now).
		AddRow(uuid.New(), bookingID, KindReminder, now, StatusPending, now)
	mock.ExpectQuery("FROM timeouts").WithArgs(50).WillReturnRows(rows)

	due, err := store.FetchDue(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, KindHoldExpiry, due[0].Kind)
	assert.Equal(t, StatusPending, due[0].Status)
}

func TestFetchDueEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM timeouts").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}))

	due, err := store.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkFiredIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE timeouts").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE timeouts").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.MarkFired(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second worker racing on the same row finds it already fired.
	ok, err = store.MarkFired(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}
