package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

// inventoryRecord mirrors the MySQL schema; AutoMigrate adds missing named checks to existing tables.
type inventoryRecord struct {
	ItemID           string `gorm:"primaryKey;size:64"`
	Quantity         int    `gorm:"not null;check:quantity >= 0"`
	ReservedQuantity int    `gorm:"not null;default:0;check:chk_inventory_reserved_within_quantity,reserved_quantity >= 0 AND reserved_quantity <= quantity"`
	Location         string `gorm:"size:128;not null;default:''"`
	Version          int    `gorm:"not null;default:1"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (inventoryRecord) TableName() string {
	return "inventory"
}

type movementRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	RequestID     string    `gorm:"size:128;not null;default:''"`
	ItemID        string    `gorm:"size:64;not null;index:idx_movements_item_created,priority:1"`
	Kind          string    `gorm:"size:16;not null"`
	Amount        int       `gorm:"not null"`
	QuantityAfter int       `gorm:"not null"`
	ReservedAfter int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index:idx_movements_item_created,priority:2"`
}

func (movementRecord) TableName() string {
	return "inventory_movements"
}

// GormAdapter is the Postgres backend, with the same optimistic contract as MySQLAdapter.
type GormAdapter struct {
	db *gorm.DB
}

func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

// OpenPostgres opens a gorm connection; gorm's own logger is silenced in favour of ours.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (g *GormAdapter) AutoMigrate() error {
	return g.db.AutoMigrate(&inventoryRecord{}, &movementRecord{})
}

func (g *GormAdapter) Create(ctx context.Context, inv *domain.InventoryAggregate) error {
	rec := inventoryRecord{
		ItemID:           inv.ItemID(),
		Quantity:         inv.Quantity(),
		ReservedQuantity: inv.ReservedQuantity(),
		Location:         inv.Location(),
		Version:          1,
	}

	err := g.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return port.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	inv.SetVersion(1)
	return nil
}

func (g *GormAdapter) Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error) {
	var rec inventoryRecord
	err := g.db.WithContext(ctx).Where("item_id = ?", itemID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	return rec.toAggregate()
}

func (g *GormAdapter) Save(ctx context.Context, inv *domain.InventoryAggregate) error {
	result := g.db.WithContext(ctx).
		Model(&inventoryRecord{}).
		Where("item_id = ? AND version = ?", inv.ItemID(), inv.Version()).
		Updates(map[string]any{
			"quantity":          inv.Quantity(),
			"reserved_quantity": inv.ReservedQuantity(),
			"location":          inv.Location(),
			"version":           gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("update inventory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return port.ErrOptimisticLock
	}

	inv.SetVersion(inv.Version() + 1)
	return nil
}

func (g *GormAdapter) List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error) {
	var recs []inventoryRecord
	err := g.db.WithContext(ctx).Order("item_id").Limit(limit).Offset(offset).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}

	result := make([]*domain.InventoryAggregate, 0, len(recs))
	for _, rec := range recs {
		inv, err := rec.toAggregate()
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (g *GormAdapter) RecordMovement(ctx context.Context, mv domain.Movement) error {
	rec := movementRecord{
		ID:            mv.ID,
		RequestID:     mv.RequestID,
		ItemID:        mv.ItemID,
		Kind:          string(mv.Kind),
		Amount:        mv.Amount,
		QuantityAfter: mv.QuantityAfter,
		ReservedAfter: mv.ReservedAfter,
		CreatedAt:     mv.CreatedAt,
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (g *GormAdapter) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	var recs []movementRecord
	err := g.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	result := make([]domain.Movement, 0, len(recs))
	for _, rec := range recs {
		result = append(result, domain.Movement{
			ID:            rec.ID,
			RequestID:     rec.RequestID,
			ItemID:        rec.ItemID,
			Kind:          domain.MovementKind(rec.Kind),
			Amount:        rec.Amount,
			QuantityAfter: rec.QuantityAfter,
			ReservedAfter: rec.ReservedAfter,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return result, nil
}

func (g *GormAdapter) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (rec inventoryRecord) toAggregate() (*domain.InventoryAggregate, error) {
	snap := domain.InventorySnapshot{
		ItemID:           rec.ItemID,
		Quantity:         rec.Quantity,
		ReservedQuantity: rec.ReservedQuantity,
		Location:         rec.Location,
		Version:          rec.Version,
	}
	inv, err := snap.Restore()
	if err != nil {
		return nil, fmt.Errorf("corrupt inventory row %s: %w", rec.ItemID, err)
	}
	return inv, nil
}
