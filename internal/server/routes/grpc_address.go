package routes

import (
	"google.golang.org/grpc"

	handler_grpc "custody-wallet/internal/handler/grpc"
	"custody-wallet/internal/service"
)

// RegisterAddressGRPC 注册 AddressService gRPC 服务
func RegisterAddressGRPC(s *grpc.Server, addressService service.AddressService) {
	handler_grpc.RegisterAddressServer(s, handler_grpc.NewAddressHandler(addressService))
}
