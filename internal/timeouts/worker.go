package timeouts

import (
	"context"

	"github.com/google/uuid"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// Handler reacts to a fired timeout. The booking service implements it by
// sending the matching lifecycle event.
type Handler interface {
	HandleTimeout(ctx context.Context, bookingID uuid.UUID, kind string) error
}

// Worker drains due timeouts and hands each to the handler.
type Worker struct {
	store     *Store
	handler   Handler
	logger    *logging.Logger
	batchSize int
}

// NewWorker creates a timeout worker.
func NewWorker(store *Store, handler Handler, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{store: store, handler: handler, logger: logger, batchSize: 50}
}

// WithBatchSize overrides how many timeouts one pass claims.
func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

// ProcessDue fires everything overdue. Each timeout is handled first and
// marked fired only after the handler succeeds; a failure or crash leaves
// the row pending for the next sweep to retry. Duplicate handling across
// concurrent workers is safe because the handler treats a booking that
// already moved on as a no-op.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.store.FetchDue(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, t := range due {
		if err := w.handler.HandleTimeout(ctx, t.BookingID, t.Kind); err != nil {
			w.logger.Error("timeout handling failed",
				"timeout_id", t.ID,
				"booking_id", t.BookingID,
				"kind", t.Kind,
				"error", err,
			)
			continue
		}
		ok, err := w.store.MarkFired(ctx, t.ID)
		if err != nil {
			w.logger.Error("failed to mark timeout fired",
				"timeout_id", t.ID,
				"booking_id", t.BookingID,
				"error", err,
			)
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, nil
}
