package allocator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"custody-wallet/internal/hd"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
)

const firstEVMAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

type recordingEnsurer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEnsurer) EnsureWatched(ctx context.Context, addr *model.DepositAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, addr.Address)
}

func (r *recordingEnsurer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeAuthority struct {
	res   *RemoteAllocation
	err   error
	calls int32
}

func (f *fakeAuthority) Allocate(ctx context.Context, key chain.Key) (*RemoteAllocation, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.res, f.err
}

func setup(t *testing.T, opts ...Option) (*Allocator, *memStore, *hd.Engine) {
	t.Helper()
	engine := hd.NewEngine()
	store := newMemStore()
	store.addRoots(engine, "mainnet")
	return New(store, engine, Config{MaxRetries: 3, MaxTagRetries: 3, DelegatedChains: []string{"tron"}}, opts...), store, engine
}

func deriveAt(t *testing.T, store *memStore, engine *hd.Engine, id chain.ID, index uint32) string {
	t.Helper()
	ls := NewLocalStrategy(store, engine, 1, 1)
	row, err := store.FindRoot(context.Background(), chain.Key{Chain: id, Network: "mainnet", Asset: mustSpec(id).BaseAsset})
	require.NoError(t, err)
	root, err := ls.toHDRoot(row)
	require.NoError(t, err)
	addr, err := engine.DeriveAddress(root, index)
	require.NoError(t, err)
	return addr.Value
}

func mustSpec(id chain.ID) chain.Spec {
	s, _ := chain.Lookup(id)
	return s
}

func TestAllocateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ensurer := &recordingEnsurer{}
	a, store, _ := setup(t, WithEnsurer(ensurer))

	first, err := a.Allocate(ctx, 1, "evm", "mainnet", "ETH")
	require.NoError(t, err)
	assert.Equal(t, firstEVMAddress, first.Address)
	assert.Equal(t, SourceLocal, first.Source)
	require.NotNil(t, first.DerivationPath)
	assert.Equal(t, "m/44'/60'/0'/0/0", *first.DerivationPath)

	// 别名和大小写不同也是同一个组合
	second, err := a.Allocate(ctx, 1, "Ethereum", "ERC20", "eth")
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, 1, store.count(1, chain.NewKey("evm", "mainnet", "ETH")))

	// 新地址和已有地址都会确认上游监听
	assert.Equal(t, 2, ensurer.count())
}

func TestConcurrentAllocateSameKey(t *testing.T) {
	ctx := context.Background()
	engine := hd.NewEngine()
	store := newMemStore()
	store.addRoots(engine, "mainnet")

	// 每个 goroutine 使用独立的 Allocator，绕过进程内合并，只靠存储层约束
	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := New(store, engine, Config{MaxRetries: 5})
			<-start
			row, err := a.Allocate(ctx, 7, "btc", "mainnet", "BTC")
			errs[i] = err
			if row != nil {
				results[i] = row.Address
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, store.count(7, chain.NewKey("btc", "mainnet", "BTC")))
}

func TestSingleflightCoalescesInProcess(t *testing.T) {
	ctx := context.Background()
	a, store, _ := setup(t)

	release := make(chan struct{})
	var inserts int32
	store.beforeInsert = func(*model.DepositAddress) {
		atomic.AddInt32(&inserts, 1)
		<-release
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Allocate(ctx, 3, "evm", "mainnet", "ETH")
			assert.NoError(t, err)
		}()
	}
	// 等第一个请求进入插入
	for atomic.LoadInt32(&inserts) == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&inserts))
}

func TestOverrideTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	a, store, _ := setup(t)

	local, err := a.Allocate(ctx, 5, "evm", "mainnet", "USDT")
	require.NoError(t, err)

	store.overrides = append(store.overrides, model.UserDepositAddress{
		UserID: 5, Currency: "USDT", Network: "ERC20", Address: "0xoverride", IsActive: true,
	})
	got, err := a.Allocate(ctx, 5, "evm", "mainnet", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "0xoverride", got.Address)
	assert.Equal(t, SourceOverride, got.Source)
	assert.NotEqual(t, local.Address, got.Address)

	// 网络不兼容的 override 不生效
	got, err = a.Allocate(ctx, 5, "tron", "mainnet", "USDT")
	require.NoError(t, err)
	assert.NotEqual(t, "0xoverride", got.Address)

	// 停用的 override 不生效
	store.overrides[0].IsActive = false
	got, err = a.Allocate(ctx, 5, "evm", "mainnet", "USDT")
	require.NoError(t, err)
	assert.Equal(t, local.Address, got.Address)
}

func TestDestinationTagChain(t *testing.T) {
	ctx := context.Background()
	a, _, _ := setup(t)

	u1, err := a.Allocate(ctx, 1, "xrp", "mainnet", "XRP")
	require.NoError(t, err)
	u2, err := a.Allocate(ctx, 2, "xrp", "mainnet", "XRP")
	require.NoError(t, err)

	assert.Equal(t, u1.Address, u2.Address)
	require.NotNil(t, u1.DestinationTag)
	require.NotNil(t, u2.DestinationTag)
	assert.NotEqual(t, *u1.DestinationTag, *u2.DestinationTag)
	assert.NotZero(t, *u1.DestinationTag)
	assert.Nil(t, u1.AddressIndex)

	again, err := a.Allocate(ctx, 1, "xrp", "mainnet", "XRP")
	require.NoError(t, err)
	assert.Equal(t, *u1.DestinationTag, *again.DestinationTag)
}

func TestDestinationTagCollisionFastForwards(t *testing.T) {
	ctx := context.Background()
	a, store, engine := setup(t)
	shared := deriveAt(t, store, engine, chain.XRP, 0)

	// 其他来源已占用 tag 1 和 tag 4
	for _, tag := range []uint32{1, 4} {
		tag := tag
		store.seed(model.DepositAddress{UserID: 90 + uint64(tag), Chain: "xrp", Network: "mainnet", Asset: "XRP",
			Address: shared, DestinationTag: &tag, Active: true})
	}

	got, err := a.Allocate(ctx, 1, "xrp", "mainnet", "XRP")
	require.NoError(t, err)
	require.NotNil(t, got.DestinationTag)
	assert.Equal(t, uint32(5), *got.DestinationTag)

	next, err := a.Allocate(ctx, 2, "xrp", "mainnet", "XRP")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), *next.DestinationTag)
}

func TestSharedTokenReusesBaseAddress(t *testing.T) {
	ctx := context.Background()
	a, _, _ := setup(t)

	eth, err := a.Allocate(ctx, 9, "evm", "mainnet", "ETH")
	require.NoError(t, err)
	usdt, err := a.Allocate(ctx, 9, "evm", "mainnet", "USDT")
	require.NoError(t, err)

	assert.Equal(t, eth.Address, usdt.Address)
	assert.Equal(t, SourceShared, usdt.Source)
	assert.Equal(t, *eth.AddressIndex, *usdt.AddressIndex)
}

func TestSharedTokenConflictMintsFresh(t *testing.T) {
	ctx := context.Background()
	a, store, _ := setup(t)

	eth, err := a.Allocate(ctx, 9, "evm", "mainnet", "ETH")
	require.NoError(t, err)

	// 别的用户已经以 USDT 持有这个地址 (历史脏数据)
	store.seed(model.DepositAddress{UserID: 77, Chain: "evm", Network: "mainnet", Asset: "USDT",
		Address: eth.Address, Active: true})

	usdt, err := a.Allocate(ctx, 9, "evm", "mainnet", "USDT")
	require.NoError(t, err)
	assert.NotEqual(t, eth.Address, usdt.Address)
	assert.Equal(t, SourceLocal, usdt.Source)
}

func TestRemoteAuthority(t *testing.T) {
	ctx := context.Background()

	path := "m/44'/195'/0'/0/42"
	idx := uint32(42)
	auth := &fakeAuthority{res: &RemoteAllocation{Address: "TRemoteAddress", DerivationPath: &path, AddressIndex: &idx}}
	a, _, _ := setup(t, WithAuthority(auth))

	got, err := a.Allocate(ctx, 1, "tron", "mainnet", "TRX")
	require.NoError(t, err)
	assert.Equal(t, "TRemoteAddress", got.Address)
	assert.Equal(t, SourceRemote, got.Source)

	// 未委托的链不调用远程服务
	_, err = a.Allocate(ctx, 1, "evm", "mainnet", "ETH")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.calls))
}

func TestRemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuthority{err: errors.New("connection refused")}
	a, _, _ := setup(t, WithAuthority(auth))

	got, err := a.Allocate(ctx, 1, "tron", "mainnet", "TRX")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, got.Source)
	assert.Equal(t, byte('T'), got.Address[0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&auth.calls))
}

func TestAddressConflictRegeneratesIndex(t *testing.T) {
	ctx := context.Background()
	a, store, engine := setup(t)

	taken := deriveAt(t, store, engine, chain.EVM, 0)
	store.seed(model.DepositAddress{UserID: 99, Chain: "evm", Network: "mainnet", Asset: "ETH", Address: taken, Active: true})

	got, err := a.Allocate(ctx, 1, "evm", "mainnet", "ETH")
	require.NoError(t, err)
	assert.Equal(t, deriveAt(t, store, engine, chain.EVM, 1), got.Address)
	assert.Equal(t, uint32(1), *got.AddressIndex)
}

func TestAllocationExhausted(t *testing.T) {
	ctx := context.Background()
	a, store, engine := setup(t)

	for i := uint32(0); i < 5; i++ {
		store.seed(model.DepositAddress{UserID: 99, Chain: "btc", Network: "mainnet", Asset: "BTC",
			Address: deriveAt(t, store, engine, chain.BTC, i), Active: false})
	}

	_, err := a.Allocate(ctx, 1, "btc", "mainnet", "BTC")
	require.Error(t, err)
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindExhausted, ae.Kind)
	assert.True(t, ae.Retryable())
	assert.Equal(t, chain.BTC, ae.Key.Chain)
}

func TestAllocateErrors(t *testing.T) {
	ctx := context.Background()
	a, store, _ := setup(t)

	_, err := a.Allocate(ctx, 1, "doge", "mainnet", "DOGE")
	ae, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidKey, ae.Kind)
	assert.False(t, ae.Retryable())

	// 没有 testnet root
	_, err = a.Allocate(ctx, 1, "evm", "sepolia", "ETH")
	ae, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindNoRoot, ae.Kind)
	assert.Empty(t, store.all())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = a.Allocate(cancelled, 1, "evm", "mainnet", "ETH")
	assert.ErrorIs(t, err, context.Canceled)
}

// 任意交错的分配请求之后: 每个组合至多一个有效地址，地址不跨用户，重复请求结果不变
func TestAllocationInvariantsProperty(t *testing.T) {
	keys := []chain.Key{
		chain.NewKey("evm", "mainnet", "ETH"),
		chain.NewKey("evm", "mainnet", "USDT"),
		chain.NewKey("tron", "mainnet", "TRX"),
		chain.NewKey("tron", "mainnet", "USDC"),
		chain.NewKey("btc", "mainnet", "BTC"),
		chain.NewKey("xrp", "mainnet", "XRP"),
	}

	rapid.Check(t, func(rt *rapid.T) {
		a, store, _ := setup(t)
		seen := map[string]string{}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.Uint64Range(1, 4).Draw(rt, "user")
			key := rapid.SampledFrom(keys).Draw(rt, "key")

			row, err := a.Allocate(context.Background(), user, string(key.Chain), key.Network, key.Asset)
			if err != nil {
				rt.Fatalf("allocate: %v", err)
			}
			id := fmt.Sprintf("%s#%d", key, user)
			got := slotOf(row)
			if prev, ok := seen[id]; ok && prev != got {
				rt.Fatalf("not idempotent for %s: %s vs %s", id, prev, got)
			}
			seen[id] = got
		}

		owners := map[string]uint64{}
		for _, r := range store.all() {
			if store.count(r.UserID, chain.Key{Chain: chain.ID(r.Chain), Network: r.Network, Asset: r.Asset}) > 1 {
				rt.Fatalf("more than one active row for user %d %s/%s", r.UserID, r.Chain, r.Asset)
			}
			slot := slotOf(&r)
			if owner, ok := owners[slot]; ok && owner != r.UserID {
				rt.Fatalf("address %s shared by users %d and %d", slot, owner, r.UserID)
			}
			owners[slot] = r.UserID
		}
	})
}

func slotOf(r *model.DepositAddress) string {
	if r.DestinationTag != nil {
		return fmt.Sprintf("%s?dt=%d", r.Address, *r.DestinationTag)
	}
	return r.Address
}
