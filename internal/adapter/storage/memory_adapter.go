package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

// MemoryAdapter keeps inventory, cache entries and movements in process memory.
// It stores snapshots, never the caller's aggregate pointers.
type MemoryAdapter struct {
	mu          sync.RWMutex
	inventory   map[string]domain.InventorySnapshot
	cache       map[string]domain.InventorySnapshot
	idempotency map[string]struct{}
	movements   map[string][]domain.Movement
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		inventory:   make(map[string]domain.InventorySnapshot),
		cache:       make(map[string]domain.InventorySnapshot),
		idempotency: make(map[string]struct{}),
		movements:   make(map[string][]domain.Movement),
	}
}

func (m *MemoryAdapter) Create(ctx context.Context, inv *domain.InventoryAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inventory[inv.ItemID()]; ok {
		return port.ErrAlreadyExists
	}

	inv.SetVersion(1)
	m.inventory[inv.ItemID()] = inv.Snapshot()
	return nil
}

func (m *MemoryAdapter) Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error) {
	m.mu.RLock()
	snap, ok := m.inventory[itemID]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return snap.Restore()
}

func (m *MemoryAdapter) Save(ctx context.Context, inv *domain.InventoryAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.inventory[inv.ItemID()]
	if !ok || stored.Version != inv.Version() {
		return port.ErrOptimisticLock
	}

	inv.SetVersion(inv.Version() + 1)
	m.inventory[inv.ItemID()] = inv.Snapshot()
	return nil
}

func (m *MemoryAdapter) List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.inventory))
	for id := range m.inventory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) || limit <= 0 {
		m.mu.RUnlock()
		return []*domain.InventoryAggregate{}, nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}

	snaps := make([]domain.InventorySnapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, m.inventory[id])
	}
	m.mu.RUnlock()

	result := make([]*domain.InventoryAggregate, 0, len(snaps))
	for _, snap := range snaps {
		inv, err := snap.Restore()
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (m *MemoryAdapter) GetSnapshot(ctx context.Context, itemID string) (domain.InventorySnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.cache[itemID]
	return snap, ok, nil
}

func (m *MemoryAdapter) SetSnapshot(ctx context.Context, snap domain.InventorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.cache[snap.ItemID]; ok && current.Version >= snap.Version {
		return nil
	}
	m.cache[snap.ItemID] = snap
	return nil
}

func (m *MemoryAdapter) Invalidate(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, itemID)
	return nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = struct{}{}
	return true, nil
}

func (m *MemoryAdapter) DeleteIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}

func (m *MemoryAdapter) RecordMovement(ctx context.Context, movement domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.movements[movement.ItemID] = append(m.movements[movement.ItemID], movement)
	return nil
}

func (m *MemoryAdapter) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []domain.Movement{}, nil
	}

	all := m.movements[itemID]
	result := make([]domain.Movement, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		result = append(result, all[i])
	}

	// workers record concurrently, so arrival order is not creation order
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
