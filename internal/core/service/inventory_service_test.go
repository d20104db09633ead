package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

// Mock InventoryRepository
type mockRepo struct {
	mu        sync.Mutex
	items     map[string]domain.InventorySnapshot
	conflicts int // number of Save calls to reject with ErrOptimisticLock
	saves     int
	getErr    error
	saveErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]domain.InventorySnapshot)}
}

func (m *mockRepo) seed(t *testing.T, itemID string, quantity, reserved int) {
	t.Helper()
	inv, err := domain.NewInventoryAggregate(itemID, quantity, reserved, "WAREHOUSE_A")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := m.Create(context.Background(), inv); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func (m *mockRepo) stored(itemID string) domain.InventorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID]
}

func (m *mockRepo) Create(ctx context.Context, inv *domain.InventoryAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[inv.ItemID()]; ok {
		return port.ErrAlreadyExists
	}
	inv.SetVersion(1)
	m.items[inv.ItemID()] = inv.Snapshot()
	return nil
}

func (m *mockRepo) Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	snap, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return snap.Restore()
}

func (m *mockRepo) Save(ctx context.Context, inv *domain.InventoryAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return port.ErrOptimisticLock
	}
	if m.items[inv.ItemID()].Version != inv.Version() {
		return port.ErrOptimisticLock
	}
	inv.SetVersion(inv.Version() + 1)
	m.items[inv.ItemID()] = inv.Snapshot()
	return nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var result []*domain.InventoryAggregate
	for i := offset; i < len(ids) && len(result) < limit; i++ {
		inv, _ := m.items[ids[i]].Restore()
		result = append(result, inv)
	}
	return result, nil
}

// Mock CacheRepository
type mockCache struct {
	mu             sync.Mutex
	snapshots      map[string]domain.InventorySnapshot
	idempotencySet map[string]bool
	reads          int
	setErr         error
	invalidated    []string
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots:      make(map[string]domain.InventorySnapshot),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCache) GetSnapshot(ctx context.Context, itemID string) (domain.InventorySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	snap, ok := m.snapshots[itemID]
	return snap, ok, nil
}

func (m *mockCache) SetSnapshot(ctx context.Context, snap domain.InventorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if current, ok := m.snapshots[snap.ItemID]; ok && current.Version >= snap.Version {
		return nil
	}
	m.snapshots[snap.ItemID] = snap
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, itemID)
	m.invalidated = append(m.invalidated, itemID)
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCache) DeleteIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCache) claimed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

// Mock MovementRepository
type mockJournal struct {
	mu        sync.Mutex
	movements []domain.Movement
	err       error
}

func (m *mockJournal) RecordMovement(ctx context.Context, mv domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.movements = append(m.movements, mv)
	return nil
}

func (m *mockJournal) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Movement
	for i := len(m.movements) - 1; i >= 0 && len(result) < limit; i-- {
		if m.movements[i].ItemID == itemID {
			result = append(result, m.movements[i])
		}
	}
	return result, nil
}

func (m *mockJournal) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.movements)
}

// Mock OperationRecorder
type mockRecorder struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (m *mockRecorder) ObserveOperation(operation, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string][]string)
	}
	m.outcomes[operation] = append(m.outcomes[operation], outcome)
}

type testEnv struct {
	repo    *mockRepo
	cache   *mockCache
	journal *mockJournal
	svc     *InventoryService
}

func newTestEnv(queueSize int, opts ...Option) *testEnv {
	env := &testEnv{
		repo:    newMockRepo(),
		cache:   newMockCache(),
		journal: &mockJournal{},
	}
	env.svc = NewInventoryService(env.repo, env.cache, env.journal, queueSize, opts...)
	return env
}

func drain(svc *InventoryService) {
	go func() {
		for range svc.MovementQueue() {
		}
	}()
}

func TestCreateInventory_Success(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()

	snap, err := env.svc.CreateInventory(context.Background(), CreateInventoryInput{
		ItemID:   "ITEM001",
		Quantity: 100,
		Location: "WAREHOUSE_A",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if snap.AvailableQuantity != 100 || snap.Version != 1 {
		t.Errorf("expected available 100 at version 1, got %+v", snap)
	}
	if cached := env.cache.snapshots["ITEM001"]; cached != snap {
		t.Errorf("expected cache to hold %+v, got %+v", snap, cached)
	}
}

func TestCreateInventory_Validation(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()

	_, err := env.svc.CreateInventory(context.Background(), CreateInventoryInput{
		ItemID:           "ITEM001",
		Quantity:         5,
		ReservedQuantity: 10,
	})
	if !errors.Is(err, domain.ErrReservedExceedsTotal) {
		t.Errorf("expected ErrReservedExceedsTotal, got: %v", err)
	}
	if _, ok := env.repo.items["ITEM001"]; ok {
		t.Error("expected nothing persisted")
	}
}

func TestCreateInventory_Duplicate(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 10, 0)

	_, err := env.svc.CreateInventory(context.Background(), CreateInventoryInput{ItemID: "ITEM001", Quantity: 1})
	if !errors.Is(err, port.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
}

func TestAllocate_Success(t *testing.T) {
	env := newTestEnv(10)
	env.repo.seed(t, "ITEM001", 100, 0)

	snap, err := env.svc.Allocate(context.Background(), "req-1", "ITEM001", 30)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if snap.ReservedQuantity != 30 || snap.AvailableQuantity != 70 {
		t.Errorf("expected reserved 30 available 70, got %+v", snap)
	}
	if stored := env.repo.stored("ITEM001"); stored.ReservedQuantity != 30 || stored.Version != 2 {
		t.Errorf("expected stored reserved 30 at version 2, got %+v", stored)
	}

	env.svc.Close()
	mv := <-env.svc.MovementQueue()
	if mv.Kind != domain.MovementAllocate || mv.Amount != 30 || mv.RequestID != "req-1" {
		t.Errorf("unexpected movement %+v", mv)
	}
	if mv.QuantityAfter != 100 || mv.ReservedAfter != 30 {
		t.Errorf("expected movement after-state 100/30, got %d/%d", mv.QuantityAfter, mv.ReservedAfter)
	}
	if mv.ID == "" {
		t.Error("expected non-empty movement ID")
	}
}

func TestAllocateDeallocateFulfill_Sequence(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 100, 0)

	ctx := context.Background()
	if _, err := env.svc.Allocate(ctx, "", "ITEM001", 30); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	snap, err := env.svc.Deallocate(ctx, "", "ITEM001", 10)
	if err != nil {
		t.Fatalf("deallocate failed: %v", err)
	}
	if snap.ReservedQuantity != 20 || snap.AvailableQuantity != 80 {
		t.Errorf("expected reserved 20 available 80, got %+v", snap)
	}

	snap, err = env.svc.Fulfill(ctx, "", "ITEM001", 10)
	if err != nil {
		t.Fatalf("fulfill failed: %v", err)
	}
	if snap.Quantity != 90 || snap.ReservedQuantity != 10 || snap.AvailableQuantity != 80 {
		t.Errorf("expected 90/10/80, got %+v", snap)
	}
}

func TestAllocate_InsufficientAvailable(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 10, 0)

	_, err := env.svc.Allocate(context.Background(), "req-1", "ITEM001", 20)
	if !errors.Is(err, domain.ErrInsufficientAvailable) {
		t.Fatalf("expected ErrInsufficientAvailable, got: %v", err)
	}

	stored := env.repo.stored("ITEM001")
	if stored.Quantity != 10 || stored.ReservedQuantity != 0 || stored.Version != 1 {
		t.Errorf("expected state unchanged, got %+v", stored)
	}
	if env.repo.saves != 0 {
		t.Errorf("expected no saves, got %d", env.repo.saves)
	}
	if env.cache.claimed(idempotencyKey(domain.MovementAllocate, "ITEM001", "req-1")) {
		t.Error("expected idempotency key released after rejection")
	}
	if len(env.svc.movementQueue) != 0 {
		t.Error("expected no movement queued")
	}
}

func TestOperations_NonPositiveAmount(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 100, 30)

	ctx := context.Background()
	ops := map[string]func(context.Context, string, string, int) (domain.InventorySnapshot, error){
		"allocate":   env.svc.Allocate,
		"deallocate": env.svc.Deallocate,
		"fulfill":    env.svc.Fulfill,
	}

	for name, op := range ops {
		for _, amount := range []int{0, -5} {
			if _, err := op(ctx, "", "ITEM001", amount); !errors.Is(err, domain.ErrNonPositiveAmount) {
				t.Errorf("%s(%d): expected ErrNonPositiveAmount, got: %v", name, amount, err)
			}
		}
	}

	if stored := env.repo.stored("ITEM001"); stored.Quantity != 100 || stored.ReservedQuantity != 30 {
		t.Errorf("expected state unchanged, got %+v", stored)
	}
}

func TestFulfill_ExceedsReserved(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 100, 30)

	_, err := env.svc.Fulfill(context.Background(), "", "ITEM001", 40)
	if !errors.Is(err, domain.ErrExceedsReserved) {
		t.Errorf("expected ErrExceedsReserved, got: %v", err)
	}
}

func TestAllocate_NotFound(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()

	_, err := env.svc.Allocate(context.Background(), "", "missing", 1)
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Errorf("expected ErrInventoryNotFound, got: %v", err)
	}
}

func TestAllocate_DuplicateRequest(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 10, 0)

	ctx := context.Background()
	if _, err := env.svc.Allocate(ctx, "req-1", "ITEM001", 1); err != nil {
		t.Fatalf("first allocate failed: %v", err)
	}

	_, err := env.svc.Allocate(ctx, "req-1", "ITEM001", 1)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Stock should only be reserved once
	if stored := env.repo.stored("ITEM001"); stored.ReservedQuantity != 1 {
		t.Errorf("expected reserved 1, got %d", stored.ReservedQuantity)
	}
}

func TestAllocate_RetriedAfterRejectionWithSameRequestID(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 10, 0)

	ctx := context.Background()
	if _, err := env.svc.Allocate(ctx, "req-1", "ITEM001", 20); !errors.Is(err, domain.ErrInsufficientAvailable) {
		t.Fatalf("expected ErrInsufficientAvailable, got: %v", err)
	}

	if _, err := env.svc.Allocate(ctx, "req-1", "ITEM001", 5); err != nil {
		t.Errorf("expected corrected retry to succeed, got: %v", err)
	}
}

func TestAllocate_RetriesOnOptimisticLock(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 10, 0)
	env.repo.conflicts = maxSaveAttempts - 1

	snap, err := env.svc.Allocate(context.Background(), "", "ITEM001", 4)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if snap.ReservedQuantity != 4 {
		t.Errorf("expected reserved 4, got %d", snap.ReservedQuantity)
	}
	if env.repo.saves != maxSaveAttempts {
		t.Errorf("expected %d saves, got %d", maxSaveAttempts, env.repo.saves)
	}
}

func TestAllocate_GivesUpAfterConflicts(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 10, 0)
	env.repo.conflicts = maxSaveAttempts
	env.cache.snapshots["ITEM001"] = env.repo.stored("ITEM001")

	_, err := env.svc.Allocate(context.Background(), "req-9", "ITEM001", 4)
	if !errors.Is(err, port.ErrOptimisticLock) {
		t.Fatalf("expected ErrOptimisticLock, got: %v", err)
	}
	if stored := env.repo.stored("ITEM001"); stored.ReservedQuantity != 0 {
		t.Errorf("expected nothing reserved, got %d", stored.ReservedQuantity)
	}
	if env.cache.claimed(idempotencyKey(domain.MovementAllocate, "ITEM001", "req-9")) {
		t.Error("expected idempotency key released after failure")
	}
	if _, ok := env.cache.snapshots["ITEM001"]; ok {
		t.Error("expected cached snapshot dropped after failed save")
	}
	if len(env.cache.invalidated) != 1 || env.cache.invalidated[0] != "ITEM001" {
		t.Errorf("expected ITEM001 invalidated once, got %v", env.cache.invalidated)
	}
}

func TestAllocate_SaveErrorInvalidatesCache(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 10, 0)
	env.repo.saveErr = errors.New("connection reset")

	_, err := env.svc.Allocate(context.Background(), "", "ITEM001", 1)
	if err == nil {
		t.Fatal("expected save error")
	}
	if env.repo.saves != 1 {
		t.Errorf("expected no retry on non-conflict errors, got %d saves", env.repo.saves)
	}
	if len(env.cache.invalidated) != 1 {
		t.Errorf("expected cache invalidated, got %v", env.cache.invalidated)
	}
}

func TestRequestID_ScopedByOperationAndItem(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 10, 0)
	env.repo.seed(t, "ITEM002", 10, 0)

	ctx := context.Background()
	if _, err := env.svc.Allocate(ctx, "order-42", "ITEM001", 3); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if _, err := env.svc.Allocate(ctx, "order-42", "ITEM002", 3); err != nil {
		t.Errorf("expected same request id on another item to succeed, got: %v", err)
	}
	if _, err := env.svc.Fulfill(ctx, "order-42", "ITEM001", 3); err != nil {
		t.Errorf("expected same request id for fulfill to succeed, got: %v", err)
	}
	if _, err := env.svc.Fulfill(ctx, "order-42", "ITEM001", 3); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest on repeated fulfill, got: %v", err)
	}

	if stored := env.repo.stored("ITEM001"); stored.Quantity != 7 || stored.ReservedQuantity != 0 {
		t.Errorf("expected ITEM001 at 7/0, got %+v", stored)
	}
	if stored := env.repo.stored("ITEM002"); stored.ReservedQuantity != 3 {
		t.Errorf("expected ITEM002 reserved 3, got %+v", stored)
	}
}

func TestAllocate_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	env := newTestEnv(100)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", initialStock, 0)

	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := env.svc.Allocate(context.Background(), fmt.Sprintf("req-%d", id), "ITEM001", 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientAvailable):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if insufficientCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d rejections, got %d", totalRequests-initialStock, insufficientCount.Load())
	}

	stored := env.repo.stored("ITEM001")
	if stored.ReservedQuantity != initialStock || stored.Quantity != initialStock {
		t.Errorf("expected fully reserved stock, got %+v", stored)
	}
	if env.svc.locks.size() != 0 {
		t.Errorf("expected item locks released, %d remain", env.svc.locks.size())
	}
}

func TestGetInventory_CacheFirst(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.repo.seed(t, "ITEM001", 10, 2)

	ctx := context.Background()
	first, err := env.svc.GetInventory(ctx, "ITEM001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if first.AvailableQuantity != 8 {
		t.Errorf("expected available 8, got %d", first.AvailableQuantity)
	}

	// repository failures are invisible while the cache is warm
	env.repo.getErr = errors.New("db down")
	second, err := env.svc.GetInventory(ctx, "ITEM001")
	if err != nil {
		t.Fatalf("expected cached read, got: %v", err)
	}
	if second != first {
		t.Errorf("expected %+v, got %+v", first, second)
	}
}

func TestGetInventory_NotFound(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()

	_, err := env.svc.GetInventory(context.Background(), "missing")
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Errorf("expected ErrInventoryNotFound, got: %v", err)
	}
}

func TestMutation_CacheFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 10, 0)
	env.cache.setErr = errors.New("redis down")

	if _, err := env.svc.Allocate(context.Background(), "", "ITEM001", 3); err != nil {
		t.Errorf("expected success despite cache failure, got: %v", err)
	}
}

func TestListInventory_Limits(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	for i := 0; i < 120; i++ {
		env.repo.seed(t, fmt.Sprintf("item-%03d", i), 1, 0)
	}

	ctx := context.Background()
	page, err := env.svc.ListInventory(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != defaultListLimit {
		t.Errorf("expected %d items, got %d", defaultListLimit, len(page))
	}

	page, _ = env.svc.ListInventory(ctx, 500, 0)
	if len(page) != maxListLimit {
		t.Errorf("expected %d items, got %d", maxListLimit, len(page))
	}

	page, _ = env.svc.ListInventory(ctx, 5, 118)
	if len(page) != 2 || page[0].ItemID != "item-118" {
		t.Errorf("expected last 2 items, got %+v", page)
	}
}

func TestListMovements(t *testing.T) {
	env := newTestEnv(10)
	defer env.svc.Close()
	env.journal.movements = []domain.Movement{
		{ID: "a", ItemID: "ITEM001"},
		{ID: "b", ItemID: "ITEM002"},
		{ID: "c", ItemID: "ITEM001"},
	}

	got, err := env.svc.ListMovements(context.Background(), "ITEM001", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" {
		t.Errorf("expected [c a], got %+v", got)
	}
}

func TestRecorder_Outcomes(t *testing.T) {
	recorder := &mockRecorder{}
	env := newTestEnv(10, WithRecorder(recorder))
	defer env.svc.Close()
	drain(env.svc)
	env.repo.seed(t, "ITEM001", 5, 0)

	ctx := context.Background()
	env.svc.Allocate(ctx, "r1", "ITEM001", 1)
	env.svc.Allocate(ctx, "r1", "ITEM001", 1)
	env.svc.Allocate(ctx, "", "ITEM001", 100)
	env.svc.Allocate(ctx, "", "missing", 1)
	env.svc.Fulfill(ctx, "", "ITEM001", 1)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	want := []string{OutcomeSuccess, OutcomeDuplicate, OutcomeRejected, OutcomeNotFound}
	got := recorder.outcomes["allocate"]
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if fulfill := recorder.outcomes["fulfill"]; len(fulfill) != 1 || fulfill[0] != OutcomeSuccess {
		t.Errorf("expected one successful fulfill, got %v", fulfill)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeSuccess},
		{fmt.Errorf("wrapped: %w", domain.ErrExceedsReserved), OutcomeRejected},
		{ErrDuplicateRequest, OutcomeDuplicate},
		{port.ErrAlreadyExists, OutcomeDuplicate},
		{fmt.Errorf("%w: x", ErrInventoryNotFound), OutcomeNotFound},
		{errors.New("boom"), OutcomeError},
	}

	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestEnqueueMovement_ContextDone(t *testing.T) {
	env := newTestEnv(0)
	env.repo.seed(t, "ITEM001", 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// unbuffered queue with no reader: the operation still commits
	snap, err := env.svc.Allocate(ctx, "", "ITEM001", 2)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if snap.ReservedQuantity != 2 {
		t.Errorf("expected reserved 2, got %d", snap.ReservedQuantity)
	}
	env.svc.Close()
}
