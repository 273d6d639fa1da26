package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestWindowForWeekday(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()
	windowID := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "provider_id", "weekday", "start", "end", "active"}).
		AddRow(windowID, providerID, 1, "09:00", "17:00", true)
	mock.ExpectQuery("SELECT id, provider_id, weekday").
		WithArgs(providerID, 1).
		WillReturnRows(rows)

	w, err := repo.WindowForWeekday(context.Background(), providerID, 1)
	if err != nil {
		t.Fatalf("WindowForWeekday returned error: %v", err)
	}
	if w == nil || w.StartTime != "09:00" || w.EndTime != "17:00" {
		t.Fatalf("unexpected window: %#v", w)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWindowForWeekdayNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()

	mock.ExpectQuery("SELECT id, provider_id, weekday").
		WithArgs(providerID, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "provider_id", "weekday", "start", "end", "active"}))

	w, err := repo.WindowForWeekday(context.Background(), providerID, 3)
	if err != nil {
		t.Fatalf("WindowForWeekday returned error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil window for closed day, got %#v", w)
	}
}

func TestReplaceWindows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM availability_windows").
		WithArgs(providerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO availability_windows").
		WithArgs(pgxmock.AnyArg(), providerID, 1, "09:00", "17:00", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	windows := []Window{{Weekday: 1, StartTime: "09:00", EndTime: "17:00", Active: true}}
	if err := repo.ReplaceWindows(context.Background(), providerID, windows); err != nil {
		t.Fatalf("ReplaceWindows returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBlockRejectsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(providerID, "2026-09-07", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	block := &BlockedSlot{ProviderID: providerID, Date: "2026-09-07"}
	err = repo.CreateBlock(context.Background(), block)
	if !errors.Is(err, ErrBlockConflict) {
		t.Fatalf("expected ErrBlockConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateBlockInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()
	start, end := "12:00", "13:00"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(providerID, "2026-09-07", &start, &end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO blocked_slots").
		WithArgs(pgxmock.AnyArg(), providerID, "2026-09-07", &start, &end, "lunch").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	block := &BlockedSlot{ProviderID: providerID, Date: "2026-09-07", StartTime: &start, EndTime: &end, Reason: "lunch"}
	if err := repo.CreateBlock(context.Background(), block); err != nil {
		t.Fatalf("CreateBlock returned error: %v", err)
	}
	if block.ID == uuid.Nil {
		t.Fatalf("expected block ID to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteBlockNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	providerID := uuid.New()
	blockID := uuid.New()

	mock.ExpectExec("DELETE FROM blocked_slots").
		WithArgs(blockID, providerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = repo.DeleteBlock(context.Background(), providerID, blockID)
	if !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}
