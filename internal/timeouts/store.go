package timeouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Timeout kinds. hold_expiry and payment_timeout drive state transitions;
// reminder only triggers a notification.
const (
	KindHoldExpiry     = "hold_expiry"
	KindPaymentTimeout = "payment_timeout"
	KindReminder       = "reminder"
)

// Timeout statuses.
const (
	StatusPending  = "pending"
	StatusFired    = "fired"
	StatusCanceled = "canceled"
)

// Timeout is one persisted due-at row. Timeouts survive process restarts;
// the worker claims and fires whatever is overdue.
type Timeout struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	Kind      string
	DueAt     time.Time
	Status    string
	CreatedAt time.Time
}

// Querier is the subset of pgx both the pool and an open transaction
// satisfy.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists timeouts.
type Store struct {
	pool Querier
}

// NewStore creates a timeout store backed by a pgx pool.
func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("timeouts: pgx pool required")
	}
	return &Store{pool: pool}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// Schedule inserts a pending timeout. Run inside the transaction of the
// transition that arms it so the two commit together.
func (s *Store) Schedule(ctx context.Context, q Querier, t *Timeout) error {
	db := s.querier(q)
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	insert := `
		INSERT INTO timeouts (id, booking_id, kind, due_at, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING created_at
	`
	if err := db.QueryRow(ctx, insert, t.ID, t.BookingID, t.Kind, t.DueAt).Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("timeouts: schedule %s: %w", t.Kind, err)
	}
	t.Status = StatusPending
	return nil
}

// CancelPending cancels all pending timeouts for a booking, or only the
// given kinds when any are named. A transition leaving a state disarms the
// timers that state armed.
func (s *Store) CancelPending(ctx context.Context, q Querier, bookingID uuid.UUID, kinds ...string) error {
	db := s.querier(q)
	var err error
	if len(kinds) == 0 {
		_, err = db.Exec(ctx, `
			UPDATE timeouts SET status = 'canceled'
			WHERE booking_id = $1 AND status = 'pending'
		`, bookingID)
	} else {
		_, err = db.Exec(ctx, `
			UPDATE timeouts SET status = 'canceled'
			WHERE booking_id = $1 AND status = 'pending' AND kind = ANY($2)
		`, bookingID, kinds)
	}
	if err != nil {
		return fmt.Errorf("timeouts: cancel pending: %w", err)
	}
	return nil
}

// FetchDue returns overdue pending timeouts, oldest first. Rows stay
// pending until MarkFired, so a worker that fails or dies mid-batch leaves
// them for the next sweep to pick up again.
func (s *Store) FetchDue(ctx context.Context, limit int) ([]Timeout, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, booking_id, kind, due_at, status, created_at
		FROM timeouts
		WHERE status = 'pending' AND due_at <= now()
		ORDER BY due_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("timeouts: fetch due: %w", err)
	}
	defer rows.Close()

	var due []Timeout
	for rows.Next() {
		var t Timeout
		if err := rows.Scan(&t.ID, &t.BookingID, &t.Kind, &t.DueAt, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("timeouts: scan due: %w", err)
		}
		due = append(due, t)
	}
	return due, rows.Err()
}

// MarkFired stamps a handled timeout. The status predicate makes concurrent
// workers idempotent, exactly one marks a given row.
func (s *Store) MarkFired(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE timeouts SET status = 'fired'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("timeouts: mark fired: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
