package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"custody-wallet/internal/server/routes"
	"custody-wallet/internal/service"
	"custody-wallet/pkg/logger"
)

// NewGRPCServer 初始化并注册 gRPC 服务
func NewGRPCServer(addressService service.AddressService) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary))

	routes.RegisterAddressGRPC(s, addressService)

	return s
}

// logUnary 记录每次调用的耗时和错误
func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{zap.String("method", info.FullMethod), zap.Duration("cost", time.Since(start))}
	if err != nil {
		logger.Warn("[gRPC] 调用失败", append(fields, zap.Error(err))...)
		return resp, err
	}
	logger.Debug("[gRPC] 调用完成", fields...)
	return resp, nil
}
