package holds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tidebook/booking-engine/internal/availability"
)

// Booking states that no longer occupy their slot. Kept in sync with the
// lifecycle table in internal/booking.
const vacatedStatesSQL = `('REJECTED','PAYMENT_FAILED','CANCELED_CUSTOMER','CANCELED_PROVIDER','REFUNDED_PARTIAL','REFUNDED_FULL','EXPIRED')`

// Querier is the subset of pgx both the pool and an open transaction
// satisfy; hold mutations run inside the caller's transaction when one is
// supplied.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CacheKey identifies one (provider, date) availability entry affected by a
// sweep.
type CacheKey struct {
	ProviderID uuid.UUID
	Date       string
}

// Repository persists holds. The atomic acquire relies on the table's
// exclusion constraint rather than a read-then-write pair, so it stays
// correct across concurrent process instances.
type Repository struct {
	pool Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool Querier) *Repository {
	if pool == nil {
		panic("holds: pgx pool required")
	}
	return &Repository{pool: pool}
}

func (r *Repository) querier(q Querier) Querier {
	if q == nil {
		return r.pool
	}
	return q
}

// Acquire inserts the hold, succeeding only if no overlapping active hold or
// converted booking occupies the interval. Stale expired-but-unswept holds
// on the interval are reclaimed first so they cannot block the insert.
func (r *Repository) Acquire(ctx context.Context, q Querier, hold *Hold) error {
	db := r.querier(q)

	reclaim := `
		UPDATE holds
		SET status = 'expired', updated_at = now()
		WHERE provider_id = $1
		  AND slot_date = $2::date
		  AND status = 'active'
		  AND locked_until < now()
		  AND period && tsrange($2::date + $3::time, $2::date + $4::time, '[)')
	`
	if _, err := db.Exec(ctx, reclaim, hold.ProviderID, hold.Date, hold.StartTime, hold.EndTime); err != nil {
		return fmt.Errorf("holds: reclaim stale: %w", err)
	}

	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	insert := `
		INSERT INTO holds (id, provider_id, slot_date, start_time, end_time, customer_id, guest_session_id, status, locked_until)
		VALUES ($1, $2, $3::date, $4::time, $5::time, $6, NULLIF($7, ''), 'active', $8)
		RETURNING created_at, updated_at
	`
	err := db.QueryRow(ctx, insert,
		hold.ID,
		hold.ProviderID,
		hold.Date,
		hold.StartTime,
		hold.EndTime,
		hold.CustomerID,
		hold.GuestSessionID,
		hold.LockedUntil,
	).Scan(&hold.CreatedAt, &hold.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
			return ErrSlotTaken
		}
		return fmt.Errorf("holds: acquire: %w", err)
	}
	hold.Status = StatusActive
	return nil
}

// Convert flips an active, unexpired hold to converted. Run inside the same
// transaction that finalizes the booking's CONFIRMED state.
func (r *Repository) Convert(ctx context.Context, q Querier, holdID uuid.UUID) error {
	db := r.querier(q)
	update := `
		UPDATE holds
		SET status = 'converted', updated_at = now()
		WHERE id = $1 AND status = 'active' AND locked_until > now()
	`
	ct, err := db.Exec(ctx, update, holdID)
	if err != nil {
		return fmt.Errorf("holds: convert: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrHoldNotFoundOrExpired
	}
	return nil
}

// Release marks a hold released. Idempotent: releasing an already
// released or expired hold succeeds; only a missing hold is an error.
func (r *Repository) Release(ctx context.Context, q Querier, holdID uuid.UUID) error {
	db := r.querier(q)
	update := `
		UPDATE holds
		SET status = 'released', updated_at = now()
		WHERE id = $1 AND status IN ('active', 'converted')
	`
	ct, err := db.Exec(ctx, update, holdID)
	if err != nil {
		return fmt.Errorf("holds: release: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM holds WHERE id = $1)`, holdID).Scan(&exists); err != nil {
		return fmt.Errorf("holds: release lookup: %w", err)
	}
	if !exists {
		return ErrHoldNotFound
	}
	return nil
}

// GetByID loads a hold.
func (r *Repository) GetByID(ctx context.Context, q Querier, holdID uuid.UUID) (*Hold, error) {
	db := r.querier(q)
	query := `
		SELECT id, provider_id, to_char(slot_date, 'YYYY-MM-DD'),
		       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       customer_id, COALESCE(guest_session_id, ''), status, locked_until,
		       created_at, updated_at
		FROM holds
		WHERE id = $1
	`
	var h Hold
	err := db.QueryRow(ctx, query, holdID).Scan(
		&h.ID, &h.ProviderID, &h.Date, &h.StartTime, &h.EndTime,
		&h.CustomerID, &h.GuestSessionID, &h.Status, &h.LockedUntil,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("holds: load: %w", err)
	}
	return &h, nil
}

// SweepExpired marks every overdue active hold expired in one conditional
// update and returns the affected (provider, date) keys. The predicate makes
// concurrent sweeps safe: a hold is counted by exactly one of them.
func (r *Repository) SweepExpired(ctx context.Context) ([]CacheKey, error) {
	update := `
		UPDATE holds
		SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND locked_until < now()
		RETURNING provider_id, to_char(slot_date, 'YYYY-MM-DD')
	`
	rows, err := r.pool.Query(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("holds: sweep expired: %w", err)
	}
	defer rows.Close()

	var keys []CacheKey
	for rows.Next() {
		var k CacheKey
		if err := rows.Scan(&k.ProviderID, &k.Date); err != nil {
			return nil, fmt.Errorf("holds: scan swept: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// OccupiedIntervals returns the spans taken on a date by active unexpired
// holds, converted holds, and bookings still occupying their slot. An
// expired-but-unswept hold reads as free here (lazy reclaim).
func (r *Repository) OccupiedIntervals(ctx context.Context, providerID uuid.UUID, date string) ([]availability.Interval, error) {
	query := `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), 'hold'
		FROM holds
		WHERE provider_id = $1 AND slot_date = $2::date
		  AND (status = 'converted' OR (status = 'active' AND locked_until > now()))
		UNION ALL
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), 'booking'
		FROM bookings
		WHERE provider_id = $1 AND service_date = $2::date
		  AND state NOT IN ` + vacatedStatesSQL + `
	`
	rows, err := r.pool.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("holds: occupied intervals: %w", err)
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var startClock, endClock, kind string
		if err := rows.Scan(&startClock, &endClock, &kind); err != nil {
			return nil, fmt.Errorf("holds: scan interval: %w", err)
		}
		start, err := availability.ClockToMinutes(startClock)
		if err != nil {
			return nil, err
		}
		end, err := availability.ClockToMinutes(endClock)
		if err != nil {
			return nil, err
		}
		k := availability.KindHold
		if kind == "booking" {
			k = availability.KindBooking
		}
		intervals = append(intervals, availability.Interval{StartMinute: start, EndMinute: end, Kind: k})
	}
	return intervals, rows.Err()
}
