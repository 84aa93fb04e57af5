// Package grpc 对外的 gRPC 接口，消息体使用 google.protobuf.Struct
package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"custody-wallet/internal/allocator"
	"custody-wallet/internal/model"
	"custody-wallet/internal/service"
	"custody-wallet/pkg/logger"
)

const (
	AddressServiceName = "wallet.v1.AddressService"
	addressAllocate    = "/" + AddressServiceName + "/Allocate"
)

// AddressHandler 处理 wallet.v1.AddressService
type AddressHandler struct {
	service service.AddressService
}

// NewAddressHandler creates a new gRPC handler
func NewAddressHandler(svc service.AddressService) *AddressHandler {
	return &AddressHandler{
		service: svc,
	}
}

// Allocate 请求 {userId, chain, network, asset}，响应为 DepositAddress 的字段
func (h *AddressHandler) Allocate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	userID := uint64(f["userId"].GetNumberValue())
	chainName := f["chain"].GetStringValue()
	network := f["network"].GetStringValue()
	asset := f["asset"].GetStringValue()
	if userID == 0 || chainName == "" || asset == "" {
		return nil, status.Error(codes.InvalidArgument, "userId, chain, asset 不能为空")
	}

	logger.Debug("[gRPC] Allocate", zap.Uint64("user_id", userID), zap.String("chain", chainName), zap.String("asset", asset))
	addr, err := h.service.Allocate(ctx, userID, chainName, network, asset)
	if err != nil {
		logger.Warn("[gRPC] 分配地址失败", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, toStatus(err)
	}
	return EncodeAddress(addr)
}

// EncodeAddress DepositAddress -> Struct (camelCase 字段)
func EncodeAddress(a *model.DepositAddress) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"id":      float64(a.ID),
		"userId":  float64(a.UserID),
		"chain":   a.Chain,
		"network": a.Network,
		"asset":   a.Asset,
		"address": a.Address,
		"source":  a.Source,
	}
	if a.DerivationPath != nil {
		m["derivationPath"] = *a.DerivationPath
	}
	if a.AddressIndex != nil {
		m["addressIndex"] = float64(*a.AddressIndex)
	}
	if a.DestinationTag != nil {
		m["destinationTag"] = float64(*a.DestinationTag)
	}
	return structpb.NewStruct(m)
}

// toStatus 分配错误 -> gRPC 状态码，可重试的错误使用 Unavailable
func toStatus(err error) error {
	ae, ok := allocator.AsError(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch ae.Kind {
	case allocator.KindInvalidKey:
		return status.Error(codes.InvalidArgument, ae.Error())
	case allocator.KindNoRoot:
		return status.Error(codes.FailedPrecondition, ae.Error())
	case allocator.KindDerivation:
		return status.Error(codes.Internal, ae.Error())
	default:
		return status.Error(codes.Unavailable, ae.Error())
	}
}

// AddressServer AddressHandler 的方法集
type AddressServer interface {
	Allocate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAddressServer 注册到 gRPC server
func RegisterAddressServer(s grpc.ServiceRegistrar, srv AddressServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: AddressServiceName,
		HandlerType: (*AddressServer)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Allocate",
			Handler:    allocateHandler,
		}},
		Streams:  []grpc.StreamDesc{},
		Metadata: "wallet/v1/address.proto",
	}, srv)
}

func allocateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AddressServer).Allocate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: addressAllocate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AddressServer).Allocate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
