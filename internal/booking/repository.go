package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx both the pool and an open transaction
// satisfy.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB extends Querier with transaction support; satisfied by *pgxpool.Pool
// and the pgx mock.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists bookings and their append-only lifecycle history.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{pool: pool}
}

func (r *Repository) querier(q Querier) Querier {
	if q == nil {
		return r.pool
	}
	return q
}

const bookingColumns = `
	id, provider_id, customer_id, COALESCE(guest_session_id, ''),
	service_name, unit_price_cents, duration_minutes,
	to_char(service_date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	total_cents, fee_cents, payout_cents, state, metadata,
	created_at, updated_at`

// Create inserts a booking and its first history row in the caller's
// transaction.
func (r *Repository) Create(ctx context.Context, q Querier, b *Booking) error {
	db := r.querier(q)
	insert := `
		INSERT INTO bookings (id, provider_id, customer_id, guest_session_id,
			service_name, unit_price_cents, duration_minutes,
			service_date, start_time, end_time,
			total_cents, fee_cents, payout_cents, state, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8::date, $9::time, $10::time, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	err := db.QueryRow(ctx, insert,
		b.ID, b.ProviderID, b.CustomerID, b.GuestSessionID,
		b.ServiceName, b.UnitPriceCents, b.DurationMinutes,
		b.ServiceDate, b.StartTime, b.EndTime,
		b.TotalCents, b.FeeCents, b.PayoutCents, b.State, b.Metadata,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("booking: create: %w", err)
	}
	return nil
}

// GetByID loads a booking.
func (r *Repository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*Booking, error) {
	return r.get(ctx, q, id, "")
}

// GetForUpdate loads a booking with a row lock so concurrent transitions on
// the same booking serialize. Must run inside a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*Booking, error) {
	return r.get(ctx, q, id, " FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, q Querier, id uuid.UUID, suffix string) (*Booking, error) {
	db := r.querier(q)
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1` + suffix

	var b Booking
	err := db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.ProviderID, &b.CustomerID, &b.GuestSessionID,
		&b.ServiceName, &b.UnitPriceCents, &b.DurationMinutes,
		&b.ServiceDate, &b.StartTime, &b.EndTime,
		&b.TotalCents, &b.FeeCents, &b.PayoutCents, &b.State, &b.Metadata,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: load: %w", err)
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	return &b, nil
}

// UpdateState writes the booking's new state and metadata.
func (r *Repository) UpdateState(ctx context.Context, q Querier, id uuid.UUID, state State, metadata map[string]any) error {
	db := r.querier(q)
	update := `
		UPDATE bookings
		SET state = $2, metadata = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := db.Exec(ctx, update, id, state, metadata)
	if err != nil {
		return fmt.Errorf("booking: update state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// AppendHistory records one lifecycle entry. History rows are never updated
// or deleted.
func (r *Repository) AppendHistory(ctx context.Context, q Querier, e *HistoryEntry) error {
	db := r.querier(q)
	insert := `
		INSERT INTO booking_history (booking_id, state, event, actor_type, actor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, occurred_at
	`
	err := db.QueryRow(ctx, insert, e.BookingID, e.State, e.Event, e.ActorType, e.ActorID).
		Scan(&e.ID, &e.OccurredAt)
	if err != nil {
		return fmt.Errorf("booking: append history: %w", err)
	}
	return nil
}

// History returns a booking's lifecycle entries in insertion order.
func (r *Repository) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, booking_id, state, event, actor_type, actor_id, occurred_at
		FROM booking_history
		WHERE booking_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("booking: history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.State, &e.Event, &e.ActorType, &e.ActorID, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("booking: scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListByProviderAndDate returns bookings for a provider on a service date,
// ordered by start time.
func (r *Repository) ListByProviderAndDate(ctx context.Context, providerID uuid.UUID, date string) ([]Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE provider_id = $1 AND service_date = $2::date
		ORDER BY start_time`
	rows, err := r.pool.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: list by provider: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.ProviderID, &b.CustomerID, &b.GuestSessionID,
			&b.ServiceName, &b.UnitPriceCents, &b.DurationMinutes,
			&b.ServiceDate, &b.StartTime, &b.EndTime,
			&b.TotalCents, &b.FeeCents, &b.PayoutCents, &b.State, &b.Metadata,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("booking: scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
