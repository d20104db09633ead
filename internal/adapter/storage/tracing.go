package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/port"
)

const tracerName = "inventory-repository"

// TracingInventoryRepository wraps any InventoryRepository with one span per call.
type TracingInventoryRepository struct {
	next   port.InventoryRepository
	tracer trace.Tracer
}

func NewTracingInventoryRepository(next port.InventoryRepository) *TracingInventoryRepository {
	return &TracingInventoryRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingInventoryRepository) Create(ctx context.Context, inv *domain.InventoryAggregate) error {
	ctx, span := r.tracer.Start(ctx, "repository.Create",
		trace.WithAttributes(inventoryAttributes(inv)...),
	)
	defer span.End()

	err := r.next.Create(ctx, inv)
	recordError(span, err)
	return err
}

func (r *TracingInventoryRepository) Get(ctx context.Context, itemID string) (*domain.InventoryAggregate, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Get",
		trace.WithAttributes(attribute.String("inventory.item_id", itemID)),
	)
	defer span.End()

	inv, err := r.next.Get(ctx, itemID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("inventory.found", inv != nil))
	if inv != nil {
		span.SetAttributes(inventoryAttributes(inv)...)
	}
	return inv, nil
}

func (r *TracingInventoryRepository) Save(ctx context.Context, inv *domain.InventoryAggregate) error {
	ctx, span := r.tracer.Start(ctx, "repository.Save",
		trace.WithAttributes(inventoryAttributes(inv)...),
	)
	defer span.End()

	err := r.next.Save(ctx, inv)
	recordError(span, err)
	return err
}

func (r *TracingInventoryRepository) List(ctx context.Context, limit, offset int) ([]*domain.InventoryAggregate, error) {
	ctx, span := r.tracer.Start(ctx, "repository.List",
		trace.WithAttributes(
			attribute.Int("query.limit", limit),
			attribute.Int("query.offset", offset),
		),
	)
	defer span.End()

	inventories, err := r.next.List(ctx, limit, offset)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(inventories)))
	return inventories, nil
}

func inventoryAttributes(inv *domain.InventoryAggregate) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("inventory.item_id", inv.ItemID()),
		attribute.Int("inventory.quantity", inv.Quantity()),
		attribute.Int("inventory.reserved_quantity", inv.ReservedQuantity()),
		attribute.String("inventory.location", inv.Location()),
		attribute.Int("inventory.version", inv.Version()),
	}
}

func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
