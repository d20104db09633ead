package port

import (
	"context"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

type InventoryRepository interface {
	// Create persists a new aggregate at version 1, ErrAlreadyExists if the item is taken
	Create(ctx context.Context, inventory *domain.InventoryAggregate) error

	// Get retrieves an aggregate by item ID, returns nil when not found
	Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error)

	// Save writes the aggregate if the stored version matches, then bumps its version
	Save(ctx context.Context, inventory *domain.InventoryAggregate) error

	// List returns aggregates ordered by item ID
	List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error)
}
