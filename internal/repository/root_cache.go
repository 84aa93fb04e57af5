package repository

import (
	"context"
	"errors"
	"time"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/cache"
	"custody-wallet/pkg/chain"
)

// errNoRoot 不缓存 "root 不存在"，运维导入 root 后立即生效
var errNoRoot = errors.New("wallet root not found")

type rootFinder interface {
	FindRoot(ctx context.Context, key chain.Key) (*model.WalletRoot, error)
}

// CachedAddressStore 在 AddressStore 前加一层 WalletRoot 缓存。
// root 只读 xpub 和路径模板，next_index 由 ReserveIndex 直接读库，缓存旧值不影响分配
type CachedAddressStore struct {
	*AddressStore
	roots rootFinder
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedAddressStore(store *AddressStore, c cache.Cache, ttl time.Duration) *CachedAddressStore {
	return &CachedAddressStore{AddressStore: store, roots: store, cache: c, ttl: ttl}
}

func (s *CachedAddressStore) FindRoot(ctx context.Context, key chain.Key) (*model.WalletRoot, error) {
	return cachedRoot(ctx, s.cache, s.roots, key, s.ttl)
}

func cachedRoot(ctx context.Context, c cache.Cache, finder rootFinder, key chain.Key, ttl time.Duration) (*model.WalletRoot, error) {
	root, err := cache.GetOrLoad(ctx, c, "wallet:root:"+key.String(), ttl, func(ctx context.Context) (*model.WalletRoot, error) {
		root, err := finder.FindRoot(ctx, key)
		if err == nil && root == nil {
			return nil, errNoRoot
		}
		return root, err
	})
	if errors.Is(err, errNoRoot) {
		return nil, nil
	}
	return root, err
}
