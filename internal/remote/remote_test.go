package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"custody-wallet/internal/allocator"
	"custody-wallet/pkg/chain"
)

type fakeAuthority struct{}

func (fakeAuthority) Allocate(ctx context.Context, key chain.Key) (*allocator.RemoteAllocation, error) {
	if key.Chain == chain.BTC {
		return nil, status.Error(codes.Unavailable, "down")
	}
	path := "m/44'/195'/0'/0/3"
	idx := uint32(3)
	return &allocator.RemoteAllocation{
		Address:        "TRemote" + key.Asset,
		DerivationPath: &path,
		AddressIndex:   &idx,
		Xpub:           "xpub-remote",
	}, nil
}

func startAuthority(t *testing.T) *Client {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterAuthority(srv, fakeAuthority{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientAllocate(t *testing.T) {
	c := startAuthority(t)

	got, err := c.Allocate(context.Background(), chain.NewKey("tron", "mainnet", "USDT"))
	require.NoError(t, err)
	assert.Equal(t, "TRemoteUSDT", got.Address)
	require.NotNil(t, got.AddressIndex)
	assert.Equal(t, uint32(3), *got.AddressIndex)
	require.NotNil(t, got.DerivationPath)
	assert.Equal(t, "m/44'/195'/0'/0/3", *got.DerivationPath)
	assert.Nil(t, got.DestinationTag)

	_, err = c.Allocate(context.Background(), chain.NewKey("btc", "mainnet", "BTC"))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestDecodeAllocationRejectsBadValues(t *testing.T) {
	_, err := DecodeAllocation(&structpb.Struct{})
	assert.Error(t, err)

	s, err := structpb.NewStruct(map[string]interface{}{"address": "r1", "destinationTag": -1.0})
	require.NoError(t, err)
	_, err = DecodeAllocation(s)
	assert.Error(t, err)

	s, err = structpb.NewStruct(map[string]interface{}{"address": "r1", "addressIndex": "7"})
	require.NoError(t, err)
	_, err = DecodeAllocation(s)
	assert.Error(t, err)

	s, err = structpb.NewStruct(map[string]interface{}{"address": "r1", "destinationTag": 12.0})
	require.NoError(t, err)
	got, err := DecodeAllocation(s)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), *got.DestinationTag)
}

func TestClientHonoursTimeout(t *testing.T) {
	c := startAuthority(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Allocate(ctx, chain.NewKey("tron", "mainnet", "TRX"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled)
}
