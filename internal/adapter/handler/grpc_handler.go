package handler

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-allocation/internal/core/domain"
	"github.com/rl1809/stock-allocation/internal/core/service"
	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

type GRPCHandler struct {
	inventoryService *service.InventoryService
}

func NewGRPCHandler(inventoryService *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventoryService: inventoryService}
}

// NewGRPCServer builds a server carrying the inventory service and the standard health service.
func NewGRPCServer(h *GRPCHandler) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(RecoveryInterceptor, LoggingInterceptor),
	)
	RegisterInventoryServiceServer(s, h)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(InventoryServiceName, healthpb.HealthCheckResponse_SERVING)

	return s, healthServer
}

func (h *GRPCHandler) CreateInventory(ctx context.Context, req *CreateInventoryRequest) (*InventoryResponse, error) {
	snap, err := h.inventoryService.CreateInventory(ctx, service.CreateInventoryInput{
		ItemID:           req.ItemID,
		Quantity:         req.Quantity,
		ReservedQuantity: req.ReservedQuantity,
		Location:         req.Location,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &InventoryResponse{Inventory: snap}, nil
}

func (h *GRPCHandler) GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryResponse, error) {
	snap, err := h.inventoryService.GetInventory(ctx, req.ItemID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &InventoryResponse{Inventory: snap}, nil
}

func (h *GRPCHandler) Allocate(ctx context.Context, req *StockRequest) (*InventoryResponse, error) {
	return h.stock(ctx, h.inventoryService.Allocate, req)
}

func (h *GRPCHandler) Deallocate(ctx context.Context, req *StockRequest) (*InventoryResponse, error) {
	return h.stock(ctx, h.inventoryService.Deallocate, req)
}

func (h *GRPCHandler) Fulfill(ctx context.Context, req *StockRequest) (*InventoryResponse, error) {
	return h.stock(ctx, h.inventoryService.Fulfill, req)
}

func (h *GRPCHandler) ListMovements(ctx context.Context, req *ListMovementsRequest) (*ListMovementsResponse, error) {
	movements, err := h.inventoryService.ListMovements(ctx, req.ItemID, req.Limit)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ListMovementsResponse{Movements: movements}, nil
}

func (h *GRPCHandler) stock(ctx context.Context, op stockOperation, req *StockRequest) (*InventoryResponse, error) {
	snap, err := op(ctx, req.RequestID, req.ItemID, req.Amount)
	if err != nil {
		return nil, grpcError(err)
	}
	return &InventoryResponse{Inventory: snap}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientAvailable), errors.Is(err, domain.ErrExceedsReserved):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInventoryNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest), errors.Is(err, port.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, port.ErrOptimisticLock):
		return status.Error(codes.Aborted, "concurrent update, retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func LoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	event := logger.Debug(ctx)
	if code == codes.Internal || code == codes.Unknown {
		event = logger.Error(ctx).Err(err)
	}
	event.
		Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("grpc request")

	return resp, err
}

func RecoveryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx).Interface("panic", rec).Str("method", info.FullMethod).Msg("panic recovered")
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
