package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrBlockConflict is returned when a new block would orphan a
	// non-cancelled booking on that date.
	ErrBlockConflict = errors.New("block conflicts with an existing booking")

	// ErrBlockNotFound is returned when deleting a block that does not exist.
	ErrBlockNotFound = errors.New("blocked slot not found")
)

// Booking states that no longer occupy their slot. Kept in sync with the
// lifecycle table in internal/booking.
const vacatedStatesSQL = `('REJECTED','PAYMENT_FAILED','CANCELED_CUSTOMER','CANCELED_PROVIDER','REFUNDED_PARTIAL','REFUNDED_FULL','EXPIRED')`

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists availability windows and blocked slots.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("availability: pgx pool required")
	}
	return &Repository{db: db}
}

// ListWindows returns all of a provider's recurring windows.
func (r *Repository) ListWindows(ctx context.Context, providerID uuid.UUID) ([]Window, error) {
	query := `
		SELECT id, provider_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), active
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY weekday, start_time
	`
	rows, err := r.db.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("availability: list windows: %w", err)
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.ID, &w.ProviderID, &w.Weekday, &w.StartTime, &w.EndTime, &w.Active); err != nil {
			return nil, fmt.Errorf("availability: scan window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// WindowForWeekday returns the active window covering a weekday, or nil when
// the provider has no hours that day.
func (r *Repository) WindowForWeekday(ctx context.Context, providerID uuid.UUID, weekday int) (*Window, error) {
	query := `
		SELECT id, provider_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), active
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2 AND active
		ORDER BY start_time
		LIMIT 1
	`
	var w Window
	err := r.db.QueryRow(ctx, query, providerID, weekday).Scan(
		&w.ID, &w.ProviderID, &w.Weekday, &w.StartTime, &w.EndTime, &w.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: window for weekday: %w", err)
	}
	return &w, nil
}

// ReplaceWindows swaps a provider's full recurring schedule in one
// transaction.
func (r *Repository) ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []Window) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin replace windows: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("availability: clear windows: %w", err)
	}
	insert := `
		INSERT INTO availability_windows (id, provider_id, weekday, start_time, end_time, active)
		VALUES ($1, $2, $3, $4::time, $5::time, $6)
	`
	for _, w := range windows {
		id := w.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx, insert, id, providerID, w.Weekday, w.StartTime, w.EndTime, w.Active); err != nil {
			return fmt.Errorf("availability: insert window: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit replace windows: %w", err)
	}
	return nil
}

// BlocksForDate returns the provider's blocks on a date.
func (r *Repository) BlocksForDate(ctx context.Context, providerID uuid.UUID, date string) ([]BlockedSlot, error) {
	query := `
		SELECT id, provider_id, to_char(block_date, 'YYYY-MM-DD'),
		       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       COALESCE(reason, ''), created_at
		FROM blocked_slots
		WHERE provider_id = $1 AND block_date = $2::date
		ORDER BY start_time NULLS FIRST
	`
	rows, err := r.db.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("availability: list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []BlockedSlot
	for rows.Next() {
		var b BlockedSlot
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Date, &b.StartTime, &b.EndTime, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("availability: scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// CreateBlock inserts a block after verifying it would not orphan a
// non-cancelled booking on the same interval.
func (r *Repository) CreateBlock(ctx context.Context, block *BlockedSlot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin create block: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conflictQuery := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE provider_id = $1
			  AND service_date = $2::date
			  AND state NOT IN ` + vacatedStatesSQL + `
			  AND ($3::time IS NULL OR (start_time < $4::time AND $3::time < end_time))
		)
	`
	var conflict bool
	if err := tx.QueryRow(ctx, conflictQuery, block.ProviderID, block.Date, block.StartTime, block.EndTime).Scan(&conflict); err != nil {
		return fmt.Errorf("availability: check block conflict: %w", err)
	}
	if conflict {
		return ErrBlockConflict
	}

	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}
	insert := `
		INSERT INTO blocked_slots (id, provider_id, block_date, start_time, end_time, reason)
		VALUES ($1, $2, $3::date, $4::time, $5::time, NULLIF($6, ''))
	`
	if _, err := tx.Exec(ctx, insert, block.ID, block.ProviderID, block.Date, block.StartTime, block.EndTime, block.Reason); err != nil {
		return fmt.Errorf("availability: insert block: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit create block: %w", err)
	}
	return nil
}

// DeleteBlock removes a provider's block.
func (r *Repository) DeleteBlock(ctx context.Context, providerID, blockID uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM blocked_slots WHERE id = $1 AND provider_id = $2`, blockID, providerID)
	if err != nil {
		return fmt.Errorf("availability: delete block: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}
