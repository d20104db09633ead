package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db, err := OpenMySQL(ctx, dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		t.Fatalf("migrate failed: %v", err)
	}
	return adapter, db
}

func resetMySQLItem(t *testing.T, db *sql.DB, itemID string) {
	t.Helper()
	ctx := context.Background()
	db.ExecContext(ctx, `DELETE FROM inventory WHERE item_id = ?`, itemID)
	db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE item_id = ?`, itemID)
}

func TestMySQLCreateAndGet(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	resetMySQLItem(t, db, "mysql-get-item")

	inv := mustAggregate(t, "mysql-get-item", 50, 5)
	if err := adapter.Create(ctx, inv); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := adapter.Get(ctx, "mysql-get-item")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected inventory, got nil")
	}
	if got.Snapshot() != inv.Snapshot() {
		t.Errorf("expected %+v, got %+v", inv.Snapshot(), got.Snapshot())
	}

	if err := adapter.Create(ctx, mustAggregate(t, "mysql-get-item", 1, 0)); !errors.Is(err, port.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
}

func TestMySQLGet_NotFound(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	inv, err := adapter.Get(context.Background(), "nonexistent-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv != nil {
		t.Error("expected nil for nonexistent item")
	}
}

func TestMySQLSave_OptimisticLock(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	resetMySQLItem(t, db, "lock-test-item")

	if err := adapter.Create(ctx, mustAggregate(t, "lock-test-item", 100, 0)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fresh, _ := adapter.Get(ctx, "lock-test-item")
	stale, _ := adapter.Get(ctx, "lock-test-item")

	fresh.Allocate(10)
	if err := adapter.Save(ctx, fresh); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify version incremented
	var version int
	db.QueryRowContext(ctx, `SELECT version FROM inventory WHERE item_id = 'lock-test-item'`).Scan(&version)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}

	// Try update with stale version
	stale.Allocate(1)
	if err := adapter.Save(ctx, stale); !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}
}

func TestMySQLMovements(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	resetMySQLItem(t, db, "movement-item")

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, kind := range []domain.MovementKind{domain.MovementAllocate, domain.MovementFulfill} {
		err := adapter.RecordMovement(ctx, domain.Movement{
			ID:            uuid.NewString(),
			ItemID:        "movement-item",
			Kind:          kind,
			Amount:        5,
			QuantityAfter: 100 - 5*i,
			ReservedAfter: 5 - 5*i,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordMovement failed: %v", err)
		}
	}

	got, err := adapter.ListMovements(ctx, "movement-item", 10)
	if err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(got))
	}
	if got[0].Kind != domain.MovementFulfill {
		t.Errorf("expected newest movement first, got %s", got[0].Kind)
	}

	db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE item_id = 'movement-item'`)
}
