// Package remote 远程地址分配服务的 gRPC 客户端。
// 请求和响应都使用 google.protobuf.Struct，双方不需要共享生成代码。
package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"custody-wallet/internal/allocator"
	"custody-wallet/pkg/chain"
)

const (
	AuthorityServiceName = "wallet.v1.AllocationAuthority"
	authorityAllocate    = "/" + AuthorityServiceName + "/Allocate"
)

// Client 实现 allocator.Authority
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial 建立连接 (惰性，第一次调用时才真正连接)
func Dial(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("连接远程分配服务失败: %w", err)
	}
	return NewClient(conn, timeout), nil
}

func NewClient(conn *grpc.ClientConn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{conn: conn, timeout: timeout}
}

func (c *Client) Allocate(ctx context.Context, key chain.Key) (*allocator.RemoteAllocation, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"chain":   string(key.Chain),
		"network": key.Network,
		"asset":   key.Asset,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, authorityAllocate, req, resp); err != nil {
		return nil, err
	}
	return DecodeAllocation(resp)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// DecodeAllocation {address, derivationPath?, addressIndex?, xpub?, destinationTag?}
func DecodeAllocation(s *structpb.Struct) (*allocator.RemoteAllocation, error) {
	f := s.GetFields()
	addr := f["address"].GetStringValue()
	if addr == "" {
		return nil, fmt.Errorf("远程分配服务没有返回地址")
	}
	out := &allocator.RemoteAllocation{
		Address: addr,
		Xpub:    f["xpub"].GetStringValue(),
	}
	if v, ok := f["derivationPath"]; ok && v.GetStringValue() != "" {
		p := v.GetStringValue()
		out.DerivationPath = &p
	}
	if v, ok := f["addressIndex"]; ok {
		n, err := toUint32(v)
		if err != nil {
			return nil, fmt.Errorf("addressIndex: %w", err)
		}
		out.AddressIndex = &n
	}
	if v, ok := f["destinationTag"]; ok {
		n, err := toUint32(v)
		if err != nil {
			return nil, fmt.Errorf("destinationTag: %w", err)
		}
		out.DestinationTag = &n
	}
	return out, nil
}

// EncodeAllocation DecodeAllocation 的逆操作，供服务端和测试使用
func EncodeAllocation(a *allocator.RemoteAllocation) (*structpb.Struct, error) {
	m := map[string]interface{}{"address": a.Address}
	if a.Xpub != "" {
		m["xpub"] = a.Xpub
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

func toUint32(v *structpb.Value) (uint32, error) {
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return 0, fmt.Errorf("不是数字")
	}
	n := v.GetNumberValue()
	if n < 0 || n > float64(^uint32(0)) || n != float64(uint32(n)) {
		return 0, fmt.Errorf("超出范围: %v", n)
	}
	return uint32(n), nil
}

// AuthorityServer 远程分配服务的服务端接口 (联调和测试用)
type AuthorityServer interface {
	Allocate(ctx context.Context, key chain.Key) (*allocator.RemoteAllocation, error)
}

// RegisterAuthority 把 AuthorityServer 注册到 gRPC server
func RegisterAuthority(s *grpc.Server, impl AuthorityServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: AuthorityServiceName,
		HandlerType: (*AuthorityServer)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Allocate",
			Handler:    authorityAllocateHandler,
		}},
		Streams:  []grpc.StreamDesc{},
		Metadata: "wallet/v1/authority.proto",
	}, impl)
}

func authorityAllocateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		f := req.(*structpb.Struct).GetFields()
		key := chain.NewKey(f["chain"].GetStringValue(), f["network"].GetStringValue(), f["asset"].GetStringValue())
		res, err := srv.(AuthorityServer).Allocate(ctx, key)
		if err != nil {
			return nil, err
		}
		return EncodeAllocation(res)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: authorityAllocate}
	return interceptor(ctx, in, info, call)
}
