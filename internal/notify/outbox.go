package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// OutboxEntry is one side effect recorded during a transition, pending
// delivery. Effects commit with the transition and are delivered after it;
// a transition that rolls back leaves no entries behind.
type OutboxEntry struct {
	ID         uuid.UUID
	BookingID  uuid.UUID
	ProviderID uuid.UUID
	SlotDate   string
	Effect     string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// DeliveryHandler emits recorded effects to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// Querier is the subset of pgx both the pool and an open transaction
// satisfy; inserts run inside the transition's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OutboxStore persists side effects for reliable delivery.
type OutboxStore struct {
	pool Querier
}

func NewOutboxStore(pool Querier) *OutboxStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// Insert records one effect. When q is non-nil the insert joins that
// transaction.
func (s *OutboxStore) Insert(ctx context.Context, q Querier, bookingID, providerID uuid.UUID, slotDate, effect string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("notify: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbox (id, booking_id, provider_id, slot_date, effect, payload)
		VALUES ($1, $2, $3, $4::date, $5, $6)
	`
	if _, err := s.querier(q).Exec(ctx, query, id, bookingID, providerID, slotDate, effect, data); err != nil {
		return uuid.Nil, fmt.Errorf("notify: insert outbox: %w", err)
	}
	return id, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, booking_id, provider_id, to_char(slot_date, 'YYYY-MM-DD'), effect, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.BookingID, &entry.ProviderID, &entry.SlotDate, &entry.Effect, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered stamps the entry; the IS NULL predicate makes concurrent
// deliverers idempotent, exactly one wins.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("notify: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "entry_id", entry.ID, "effect", entry.Effect)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "entry_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "entry_id", entry.ID, "effect", entry.Effect)
		}
	}
}
