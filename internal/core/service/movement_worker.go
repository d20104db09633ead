package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

const (
	movementTimeout  = 5 * time.Second
	workerTracerName  = "movement-worker"
)

// MovementWorker persists and publishes movements drained from the service queue.
// The aggregate change is already committed, so failures are logged and skipped.
type MovementWorker struct {
	journal   port.MovementRepository
	publisher port.MovementPublisher
	tracer    trace.Tracer
}

// NewMovementWorker accepts a nil publisher when no broker is configured.
func NewMovementWorker(journal port.MovementRepository, publisher port.MovementPublisher) *MovementWorker {
	return &MovementWorker{
		journal:   journal,
		publisher: publisher,
		tracer:    otel.Tracer(workerTracerName),
	}
}

// Start runs count workers until the queue is closed.
func (w *MovementWorker) Start(count int, queue <-chan QueuedMovement) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.Run(id, queue)
		}(i)
	}
	return &wg
}

func (w *MovementWorker) Run(id int, queue <-chan QueuedMovement) {
	for movement := range queue {
		w.handle(id, movement)
	}
}

// handle continues the trace of the request that queued the movement, so the
// journal write and the published headers share its trace id.
func (w *MovementWorker) handle(id int, queued QueuedMovement) {
	movement := queued.Movement

	ctx := trace.ContextWithRemoteSpanContext(context.Background(), queued.SpanContext)
	ctx, cancel := context.WithTimeout(ctx, movementTimeout)
	defer cancel()

	ctx, span := w.tracer.Start(ctx, "movement.handle",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("movement.id", movement.ID),
			attribute.String("movement.kind", string(movement.Kind)),
			attribute.String("inventory.item_id", movement.ItemID),
		),
	)
	defer span.End()

	if err := w.journal.RecordMovement(ctx, movement); err != nil {
		logger.Error(ctx).Err(err).
			Int("worker", id).
			Str("movement_id", movement.ID).
			Str("item_id", movement.ItemID).
			Msg("failed to record movement")
		span.RecordError(err)
		span.SetStatus(codes.Error, "record movement")
	}

	if w.publisher == nil {
		return
	}

	if err := w.publisher.Publish(ctx, movement); err != nil {
		logger.Error(ctx).Err(err).
			Int("worker", id).
			Str("movement_id", movement.ID).
			Msg("failed to publish movement")
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish movement")
	}
}
