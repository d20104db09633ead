package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInventoryNotFound = errors.New("inventory not found")
)

const (
	idempotencyKeyPrefix = "idempotency"
	maxSaveAttempts      = 3
	defaultListLimit     = 10
	maxListLimit         = 100
)

const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// QueuedMovement is a committed movement waiting for the worker pool, together
// with the span context of the request that produced it.
type QueuedMovement struct {
	domain.Movement
	SpanContext trace.SpanContext
}

type CreateInventoryInput struct {
	ItemID           string
	Quantity         int
	ReservedQuantity int
	Location         string
}

// InventoryService is the single writer for inventory aggregates in this process.
// Mutations of one item are serialized by a per-item lock; the repository version
// check covers writers in other processes.
type InventoryService struct {
	repo          port.InventoryRepository
	cache         port.CacheRepository
	movements     port.MovementRepository
	recorder      port.OperationRecorder
	locks         *itemLocks
	movementQueue chan QueuedMovement
	now           func() time.Time
}

type Option func(*InventoryService)

func WithRecorder(recorder port.OperationRecorder) Option {
	return func(s *InventoryService) {
		s.recorder = recorder
	}
}

func NewInventoryService(
	repo port.InventoryRepository,
	cache port.CacheRepository,
	movements port.MovementRepository,
	queueSize int,
	opts ...Option,
) *InventoryService {
	s := &InventoryService{
		repo:          repo,
		cache:         cache,
		movements:     movements,
		locks:         newItemLocks(),
		movementQueue: make(chan QueuedMovement, queueSize),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InventoryService) CreateInventory(ctx context.Context, in CreateInventoryInput) (snap domain.InventorySnapshot, err error) {
	start := s.now()
	defer func() { s.observe("create", err, start) }()

	inv, err := domain.NewInventoryAggregate(in.ItemID, in.Quantity, in.ReservedQuantity, in.Location)
	if err != nil {
		return snap, err
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return snap, fmt.Errorf("create inventory %s: %w", in.ItemID, err)
	}

	snap = inv.Snapshot()
	s.refreshCache(ctx, snap)
	return snap, nil
}

func (s *InventoryService) GetInventory(ctx context.Context, itemID string) (domain.InventorySnapshot, error) {
	snap, ok, err := s.cache.GetSnapshot(ctx, itemID)
	if err != nil {
		logger.Warn(ctx).Err(err).Str("item_id", itemID).Msg("cache read failed")
	}
	if err == nil && ok {
		return snap, nil
	}

	inv, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return domain.InventorySnapshot{}, fmt.Errorf("get inventory %s: %w", itemID, err)
	}
	if inv == nil {
		return domain.InventorySnapshot{}, fmt.Errorf("%w: %s", ErrInventoryNotFound, itemID)
	}

	snap = inv.Snapshot()
	s.refreshCache(ctx, snap)
	return snap, nil
}

func (s *InventoryService) ListInventory(ctx context.Context, limit, offset int) ([]domain.InventorySnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	inventories, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}

	snaps := make([]domain.InventorySnapshot, 0, len(inventories))
	for _, inv := range inventories {
		snaps = append(snaps, inv.Snapshot())
	}
	return snaps, nil
}

func (s *InventoryService) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	movements, err := s.movements.ListMovements(ctx, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements %s: %w", itemID, err)
	}
	return movements, nil
}

// Allocate reserves amount units of itemID. A non-empty requestID makes the call idempotent.
func (s *InventoryService) Allocate(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return s.mutate(ctx, domain.MovementAllocate, requestID, itemID, amount, (*domain.InventoryAggregate).Allocate)
}

// Deallocate releases amount reserved units of itemID.
func (s *InventoryService) Deallocate(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return s.mutate(ctx, domain.MovementDeallocate, requestID, itemID, amount, (*domain.InventoryAggregate).Deallocate)
}

// Fulfill ships amount reserved units of itemID.
func (s *InventoryService) Fulfill(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return s.mutate(ctx, domain.MovementFulfill, requestID, itemID, amount, (*domain.InventoryAggregate).Fulfill)
}

func (s *InventoryService) mutate(
	ctx context.Context,
	kind domain.MovementKind,
	requestID, itemID string,
	amount int,
	apply func(*domain.InventoryAggregate, int) error,
) (snap domain.InventorySnapshot, err error) {
	start := s.now()
	defer func() { s.observe(string(kind), err, start) }()

	if requestID != "" {
		key := idempotencyKey(kind, itemID, requestID)

		claimed, claimErr := s.cache.SetIdempotency(ctx, key)
		if claimErr != nil {
			return snap, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !claimed {
			return snap, ErrDuplicateRequest
		}

		defer func() {
			if err == nil {
				return
			}
			if relErr := s.cache.DeleteIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
				logger.Warn(ctx).Err(relErr).Str("request_id", requestID).Msg("failed to release idempotency key")
			}
		}()
	}

	inv, err := s.applyLocked(ctx, itemID, amount, apply)
	if err != nil {
		return snap, err
	}

	snap = inv.Snapshot()
	s.refreshCache(ctx, snap)
	s.enqueueMovement(ctx, domain.Movement{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		ItemID:        itemID,
		Kind:          kind,
		Amount:        amount,
		QuantityAfter: snap.Quantity,
		ReservedAfter: snap.ReservedQuantity,
		CreatedAt:     s.now().UTC(),
	})

	return snap, nil
}

// applyLocked runs load, apply, save under the item lock, reloading on version conflicts.
func (s *InventoryService) applyLocked(
	ctx context.Context,
	itemID string,
	amount int,
	apply func(*domain.InventoryAggregate, int) error,
) (*domain.InventoryAggregate, error) {
	unlock := s.locks.lock(itemID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		inv, err := s.repo.Get(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("load inventory %s: %w", itemID, err)
		}
		if inv == nil {
			return nil, fmt.Errorf("%w: %s", ErrInventoryNotFound, itemID)
		}

		if err := apply(inv, amount); err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, port.ErrOptimisticLock) || attempt >= maxSaveAttempts {
			s.invalidateCache(ctx, itemID)
			return nil, fmt.Errorf("save inventory %s: %w", itemID, err)
		}

		logger.Debug(ctx).Str("item_id", itemID).Int("attempt", attempt).Msg("version conflict, reloading")
	}
}

func (s *InventoryService) refreshCache(ctx context.Context, snap domain.InventorySnapshot) {
	if err := s.cache.SetSnapshot(ctx, snap); err != nil {
		logger.Warn(ctx).Err(err).Str("item_id", snap.ItemID).Msg("cache refresh failed")
	}
}

// invalidateCache drops a snapshot that may be older than what another writer stored.
func (s *InventoryService) invalidateCache(ctx context.Context, itemID string) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), itemID); err != nil {
		logger.Warn(ctx).Err(err).Str("item_id", itemID).Msg("cache invalidation failed")
	}
}

// idempotencyKey scopes a client request id to one operation on one item.
func idempotencyKey(kind domain.MovementKind, itemID, requestID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", idempotencyKeyPrefix, kind, itemID, requestID)
}

func (s *InventoryService) enqueueMovement(ctx context.Context, m domain.Movement) {
	movement := QueuedMovement{Movement: m, SpanContext: trace.SpanContextFromContext(ctx)}

	select {
	case s.movementQueue <- movement:
		return
	default:
	}

	select {
	case s.movementQueue <- movement:
	case <-ctx.Done():
		logger.Warn(ctx).
			Str("item_id", movement.ItemID).
			Str("movement_id", movement.ID).
			Msg("context done before movement was queued, journal entry dropped")
	}
}

func (s *InventoryService) observe(operation string, err error, start time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveOperation(operation, Outcome(err), s.now().Sub(start))
}

// Outcome classifies an operation error for metrics and transports.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case domain.IsValidationError(err):
		return OutcomeRejected
	case errors.Is(err, ErrDuplicateRequest), errors.Is(err, port.ErrAlreadyExists):
		return OutcomeDuplicate
	case errors.Is(err, ErrInventoryNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

func (s *InventoryService) MovementQueue() <-chan QueuedMovement {
	return s.movementQueue
}

// Close stops accepting movements. Call it only after transports have stopped.
func (s *InventoryService) Close() {
	close(s.movementQueue)
}
