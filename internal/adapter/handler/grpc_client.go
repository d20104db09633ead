package handler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

// GRPCClient calls the inventory service with the JSON codec.
type GRPCClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inventory service: %w", err)
	}

	return &GRPCClient{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Ready reports whether the server answers the health check with SERVING.
func (c *GRPCClient) Ready(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: InventoryServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("inventory service is %s", resp.GetStatus())
	}
	return nil
}

func (c *GRPCClient) CreateInventory(ctx context.Context, req *CreateInventoryRequest) (domain.InventorySnapshot, error) {
	return c.invokeInventory(ctx, "CreateInventory", req)
}

func (c *GRPCClient) GetInventory(ctx context.Context, itemID string) (domain.InventorySnapshot, error) {
	return c.invokeInventory(ctx, "GetInventory", &GetInventoryRequest{ItemID: itemID})
}

func (c *GRPCClient) Allocate(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return c.invokeInventory(ctx, "Allocate", &StockRequest{RequestID: requestID, ItemID: itemID, Amount: amount})
}

func (c *GRPCClient) Deallocate(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return c.invokeInventory(ctx, "Deallocate", &StockRequest{RequestID: requestID, ItemID: itemID, Amount: amount})
}

func (c *GRPCClient) Fulfill(ctx context.Context, requestID, itemID string, amount int) (domain.InventorySnapshot, error) {
	return c.invokeInventory(ctx, "Fulfill", &StockRequest{RequestID: requestID, ItemID: itemID, Amount: amount})
}

func (c *GRPCClient) ListMovements(ctx context.Context, itemID string, limit int) ([]domain.Movement, error) {
	var resp ListMovementsResponse
	err := c.conn.Invoke(ctx, fullMethod("ListMovements"), &ListMovementsRequest{ItemID: itemID, Limit: limit}, &resp,
		grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, err
	}
	return resp.Movements, nil
}

func (c *GRPCClient) invokeInventory(ctx context.Context, method string, req any) (domain.InventorySnapshot, error) {
	var resp InventoryResponse
	if err := c.conn.Invoke(ctx, fullMethod(method), req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return domain.InventorySnapshot{}, err
	}
	return resp.Inventory, nil
}
