package service

import (
	"context"
	"sort"
	"time"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/cache"
	"custody-wallet/pkg/chain"
)

const combinationsCacheKey = "wallet:combinations"

// Allocator allocator.Allocator 的子集
type Allocator interface {
	Allocate(ctx context.Context, userID uint64, chainName, network, asset string) (*model.DepositAddress, error)
}

// AddressReader 地址和 root 的只读查询
type AddressReader interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.DepositAddress, error)
	ListRoots(ctx context.Context) ([]model.WalletRoot, error)
}

// Combination 一个可分配的组合
type Combination struct {
	Chain       string `json:"chain"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	AddressType string `json:"address_type"`
	Strategy    string `json:"strategy"`
}

// DefaultAddressService 是 AddressService 的实现
type DefaultAddressService struct {
	allocator Allocator
	reader    AddressReader
	cache     cache.Cache
	cacheTTL  time.Duration
}

func NewAddressService(allocator Allocator, reader AddressReader, c cache.Cache) *DefaultAddressService {
	return &DefaultAddressService{
		allocator: allocator,
		reader:    reader,
		cache:     c,
		cacheTTL:  5 * time.Minute,
	}
}

func (s *DefaultAddressService) Allocate(ctx context.Context, userID uint64, chainName, network, asset string) (*model.DepositAddress, error) {
	return s.allocator.Allocate(ctx, userID, chainName, network, asset)
}

func (s *DefaultAddressService) ListByUser(ctx context.Context, userID uint64) ([]model.DepositAddress, error) {
	return s.reader.ListByUser(ctx, userID)
}

// Combinations 由已配置的 WalletRoot 推出，代币跟随同链基础资产的 root (L1 -> L2 缓存)
func (s *DefaultAddressService) Combinations(ctx context.Context) ([]Combination, error) {
	return cache.GetOrLoad(ctx, s.cache, combinationsCacheKey, s.cacheTTL, s.loadCombinations)
}

// InvalidateCombinations root 变化后调用
func (s *DefaultAddressService) InvalidateCombinations(ctx context.Context) error {
	return s.cache.Delete(ctx, combinationsCacheKey)
}

func (s *DefaultAddressService) loadCombinations(ctx context.Context) ([]Combination, error) {
	roots, err := s.reader.ListRoots(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[chain.Key]bool)
	var out []Combination
	add := func(key chain.Key, root model.WalletRoot) {
		if seen[key] {
			return
		}
		seen[key] = true
		spec, _ := chain.Lookup(key.Chain)
		out = append(out, Combination{
			Chain:       string(key.Chain),
			Network:     key.Network,
			Asset:       key.Asset,
			AddressType: root.AddressType,
			Strategy:    spec.Strategy.String(),
		})
	}

	for _, root := range roots {
		if !root.Active {
			continue
		}
		key := chain.NewKey(root.Chain, root.Network, root.Asset)
		if key.Validate() != nil {
			continue
		}
		add(key, root)
		if key.Asset != key.Base().Asset {
			continue
		}
		for _, token := range chain.Tokens(key.Chain) {
			add(chain.Key{Chain: key.Chain, Network: key.Network, Asset: token}, root)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		return a.Asset < b.Asset
	})
	return out, nil
}
