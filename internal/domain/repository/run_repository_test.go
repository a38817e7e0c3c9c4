package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

func newRun(t *testing.T) *entity.StrategyRun {
	t.Helper()
	intent := entity.Intent{
		Symbol:        "BTCUSDT",
		Side:          entity.SideBuy,
		TotalQuantity: decimal.RequireFromString("0.5"),
		Kind:          entity.KindMarket,
	}
	return entity.NewRun(intent, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestInMemoryRunRepository_SaveAndGetByID(t *testing.T) {
	repo := NewInMemoryRunRepository()
	run := newRun(t)

	if err := repo.Save(run); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("got run %s, want %s", got.ID, run.ID)
	}
}

func TestInMemoryRunRepository_GetByID_NotFound(t *testing.T) {
	repo := NewInMemoryRunRepository()

	_, err := repo.GetByID("no-such-run")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetByID() error = %v, want ErrRunNotFound", err)
	}
}

func TestInMemoryRunRepository_List_InsertionOrder(t *testing.T) {
	repo := NewInMemoryRunRepository()
	first, second := newRun(t), newRun(t)

	if err := repo.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(second); err != nil {
		t.Fatal(err)
	}
	// Re-saving must not duplicate the entry
	if err := repo.Save(first); err != nil {
		t.Fatal(err)
	}

	runs := repo.List()
	if len(runs) != 2 {
		t.Fatalf("List() len = %d, want 2", len(runs))
	}
	if runs[0].ID != first.ID || runs[1].ID != second.ID {
		t.Errorf("List() order = [%s %s], want [%s %s]", runs[0].ID, runs[1].ID, first.ID, second.ID)
	}
}
