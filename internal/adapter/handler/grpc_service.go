package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

const (
	InventoryServiceName = "inventory.v1.InventoryService"
	jsonCodecName        = "json"
)

// jsonCodec lets the service run over gRPC without generated protobuf types.
// Clients select it with the "application/grpc+json" content type.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateInventoryRequest struct {
	ItemID           string `json:"item_id"`
	Quantity         int    `json:"quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
	Location         string `json:"location,omitempty"`
}

type GetInventoryRequest struct {
	ItemID string `json:"item_id"`
}

type StockRequest struct {
	RequestID string `json:"request_id,omitempty"`
	ItemID    string `json:"item_id"`
	Amount    int    `json:"amount"`
}

type ListMovementsRequest struct {
	ItemID string `json:"item_id"`
	Limit  int    `json:"limit,omitempty"`
}

type InventoryResponse struct {
	Inventory domain.InventorySnapshot `json:"inventory"`
}

type ListMovementsResponse struct {
	Movements []domain.Movement `json:"movements"`
}

type InventoryServiceServer interface {
	CreateInventory(context.Context, *CreateInventoryRequest) (*InventoryResponse, error)
	GetInventory(context.Context, *GetInventoryRequest) (*InventoryResponse, error)
	Allocate(context.Context, *StockRequest) (*InventoryResponse, error)
	Deallocate(context.Context, *StockRequest) (*InventoryResponse, error)
	Fulfill(context.Context, *StockRequest) (*InventoryResponse, error)
	ListMovements(context.Context, *ListMovementsRequest) (*ListMovementsResponse, error)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateInventory", Handler: unaryHandler("CreateInventory", InventoryServiceServer.CreateInventory)},
		{MethodName: "GetInventory", Handler: unaryHandler("GetInventory", InventoryServiceServer.GetInventory)},
		{MethodName: "Allocate", Handler: unaryHandler("Allocate", InventoryServiceServer.Allocate)},
		{MethodName: "Deallocate", Handler: unaryHandler("Deallocate", InventoryServiceServer.Deallocate)},
		{MethodName: "Fulfill", Handler: unaryHandler("Fulfill", InventoryServiceServer.Fulfill)},
		{MethodName: "ListMovements", Handler: unaryHandler("ListMovements", InventoryServiceServer.ListMovements)},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + InventoryServiceName + "/" + method
}

func unaryHandler[Req, Resp any](
	method string,
	call func(InventoryServiceServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
