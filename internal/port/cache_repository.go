package port

import (
	"context"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

type CacheRepository interface {
	// GetSnapshot returns the cached snapshot, false on miss
	GetSnapshot(ctx context.Context, itemID string) (domain.InventorySnapshot, bool, error)

	// SetSnapshot stores the snapshot unless a newer version is already cached
	SetSnapshot(ctx context.Context, snapshot domain.InventorySnapshot) error

	// Invalidate drops the cached snapshot so the next read goes to the repository
	Invalidate(ctx context.Context, itemID string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// DeleteIdempotency releases a key so the request can be retried
	DeleteIdempotency(ctx context.Context, key string) error
}
