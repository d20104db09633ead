package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		item_id VARCHAR(64) NOT NULL PRIMARY KEY,
		quantity INT NOT NULL,
		reserved_quantity INT NOT NULL DEFAULT 0,
		location VARCHAR(128) NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT chk_inventory_reserved CHECK (reserved_quantity >= 0 AND reserved_quantity <= quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		id CHAR(36) NOT NULL PRIMARY KEY,
		request_id VARCHAR(128) NOT NULL DEFAULT '',
		item_id VARCHAR(64) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		amount INT NOT NULL,
		quantity_after INT NOT NULL,
		reserved_after INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_movements_item_created (item_id, created_at)
	)`,
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// OpenMySQL opens a pooled connection, forcing parseTime so DATETIME scans into time.Time.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Create(ctx context.Context, inv *domain.InventoryAggregate) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (item_id, quantity, reserved_quantity, location, version)
		VALUES (?, ?, ?, ?, 1)`,
		inv.ItemID(), inv.Quantity(), inv.ReservedQuantity(), inv.Location(),
	)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return port.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	inv.SetVersion(1)
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error) {
	var snap domain.InventorySnapshot
	err := m.db.QueryRowContext(ctx, `
		SELECT item_id, quantity, reserved_quantity, location, version
		FROM inventory WHERE item_id = ?`, itemID,
	).Scan(&snap.ItemID, &snap.Quantity, &snap.ReservedQuantity, &snap.Location, &snap.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	inv, err := snap.Restore()
	if err != nil {
		return nil, fmt.Errorf("corrupt inventory row %s: %w", itemID, err)
	}
	return inv, nil
}

func (m *MySQLAdapter) Save(ctx context.Context, inv *domain.InventoryAggregate) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = ?, reserved_quantity = ?, location = ?, version = version + 1, updated_at = NOW(6)
		WHERE item_id = ? AND version = ?`,
		inv.Quantity(), inv.ReservedQuantity(), inv.Location(), inv.ItemID(), inv.Version(),
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}

	inv.SetVersion(inv.Version() + 1)
	return nil
}

func (m *MySQLAdapter) List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, quantity, reserved_quantity, location, version
		FROM inventory ORDER BY item_id LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	result := []*domain.InventoryAggregate{}
	for rows.Next() {
		var snap domain.InventorySnapshot
		if err := rows.Scan(&snap.ItemID, &snap.Quantity, &snap.ReservedQuantity, &snap.Location, &snap.Version); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		inv, err := snap.Restore()
		if err != nil {
			return nil, fmt.Errorf("corrupt inventory row %s: %w", snap.ItemID, err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (m *MySQLAdapter) RecordMovement(ctx context.Context, mv domain.Movement) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory_movements
			(id, request_id, item_id, kind, amount, quantity_after, reserved_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.RequestID, mv.ItemID, string(mv.Kind), mv.Amount,
		mv.QuantityAfter, mv.ReservedAfter, mv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, request_id, item_id, kind, amount, quantity_after, reserved_after, created_at
		FROM inventory_movements WHERE item_id = ?
		ORDER BY created_at DESC LIMIT ?`, itemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	result := []domain.Movement{}
	for rows.Next() {
		var mv domain.Movement
		var kind string
		if err := rows.Scan(&mv.ID, &mv.RequestID, &mv.ItemID, &kind, &mv.Amount,
			&mv.QuantityAfter, &mv.ReservedAfter, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		mv.Kind = domain.MovementKind(kind)
		result = append(result, mv)
	}
	return result, rows.Err()
}

// Ping reports database reachability for health checks.
func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}
