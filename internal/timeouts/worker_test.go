package timeouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	fired  []string
	failOn string
}

func (h *recordingHandler) HandleTimeout(ctx context.Context, bookingID uuid.UUID, kind string) error {
	if kind == h.failOn {
		return errors.New("boom")
	}
	h.fired = append(h.fired, kind)
	return nil
}

func TestProcessDue(t *testing.T) {
	store, mock := newMockStore(t)
	handler := &recordingHandler{}
	worker := NewWorker(store, handler, nil)
	now := time.Now()
	first, second := uuid.New(), uuid.New()

	rows := pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}).
		AddRow(first, uuid.New(), KindHoldExpiry, now, StatusPending, now).
		AddRow(second, uuid.New(), KindPaymentTimeout, now, StatusPending, now)
	mock.ExpectQuery("FROM timeouts").WithArgs(50).WillReturnRows(rows)
	mock.ExpectExec("UPDATE timeouts").WithArgs(first).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE timeouts").WithArgs(second).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	fired, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
	assert.Equal(t, []string{KindHoldExpiry, KindPaymentTimeout}, handler.fired)
}

func TestProcessDueHandlerFailureLeavesRowPending(t *testing.T) {
	store, mock := newMockStore(t)
	handler := &recordingHandler{failOn: KindHoldExpiry}
	worker := NewWorker(store, handler, nil)
	now := time.Now()
	failing, succeeding := uuid.New(), uuid.New()

	// Only the succeeding timeout is marked fired; the failing one is left
	// pending so the next sweep retries it.
	rows := pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}).
		AddRow(failing, uuid.New(), KindHoldExpiry, now, StatusPending, now).
		AddRow(succeeding, uuid.New(), KindReminder, now, StatusPending, now)
	mock.ExpectQuery("FROM timeouts").WithArgs(50).WillReturnRows(rows)
	mock.ExpectExec("UPDATE timeouts").WithArgs(succeeding).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	fired, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, []string{KindReminder}, handler.fired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueLostMarkRaceNotCounted(t *testing.T) {
	store, mock := newMockStore(t)
	handler := &recordingHandler{}
	worker := NewWorker(store, handler, nil)
	now := time.Now()
	id := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}).
		AddRow(id, uuid.New(), KindPaymentTimeout, now, StatusPending, now)
	mock.ExpectQuery("FROM timeouts").WithArgs(50).WillReturnRows(rows)
	mock.ExpectExec("UPDATE timeouts").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	fired, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Equal(t, []string{KindPaymentTimeout}, handler.fired)
}

func TestProcessDueBatchSize(t *testing.T) {
	store, mock := newMockStore(t)
	worker := NewWorker(store, &recordingHandler{}, nil).WithBatchSize(5)

	mock.ExpectQuery("FROM timeouts").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "booking_id", "kind", "due_at", "status", "created_at"}))

	fired, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fired)
}
