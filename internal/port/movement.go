package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

type MovementRepository interface {
	RecordMovement(ctx context.Context, movement domain.Movement) error

	// ListMovements returns the newest movements of an item first
	ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error)
}

type MovementPublisher interface {
	Publish(ctx context.Context, movement domain.Movement) error
}

// OperationRecorder observes the outcome of service operations.
type OperationRecorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
}
