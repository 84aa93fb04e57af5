package allocator

import (
	"context"
	"sync"

	"custody-wallet/internal/hd"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/bip39"
	"custody-wallet/pkg/chain"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// memStore 内存版 Store，约束语义与 migrations 中的唯一索引一致
type memStore struct {
	mu        sync.Mutex
	overrides []model.UserDepositAddress
	roots     map[uint64]*model.WalletRoot
	rows      []*model.DepositAddress
	nextID    uint64

	beforeInsert func(row *model.DepositAddress)
}

func newMemStore() *memStore {
	return &memStore{roots: map[uint64]*model.WalletRoot{}}
}

// addRoots 用测试种子初始化所有链的基础资产 root
func (m *memStore) addRoots(engine *hd.Engine, network string) {
	seed := bip39.NewMnemonicService().MnemonicToSeed(testMnemonic, "")
	for _, spec := range chain.All() {
		root, err := engine.DeriveRoot(seed, chain.Key{Chain: spec.ID, Network: network, Asset: spec.BaseAsset})
		if err != nil {
			panic(err)
		}
		m.nextID++
		m.roots[m.nextID] = &model.WalletRoot{
			ID:                 m.nextID,
			Chain:              string(spec.ID),
			Network:            network,
			Asset:              spec.BaseAsset,
			Xpub:               root.ExtendedPublicKey,
			DerivationTemplate: root.DerivationTemplate,
			AddressType:        root.AddressType,
			Active:             true,
		}
	}
}

func (m *memStore) FindOverrides(ctx context.Context, userID uint64, currency string) ([]model.UserDepositAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UserDepositAddress
	for _, o := range m.overrides {
		if o.UserID == userID && o.Currency == currency {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) FindActive(ctx context.Context, userID uint64, key chain.Key) (*model.DepositAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.activeLocked(userID, key); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) activeLocked(userID uint64, key chain.Key) *model.DepositAddress {
	for _, r := range m.rows {
		if r.Active && r.UserID == userID && r.Chain == string(key.Chain) && r.Network == key.Network && r.Asset == key.Asset {
			return r
		}
	}
	return nil
}

func (m *memStore) FindRoot(ctx context.Context, key chain.Key) (*model.WalletRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, asset := range []string{key.Asset, key.Base().Asset} {
		for _, r := range m.roots {
			if r.Active && r.Chain == string(key.Chain) && r.Network == key.Network && r.Asset == asset {
				cp := *r
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memStore) ReserveIndex(ctx context.Context, rootID uint64) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.roots[rootID]
	idx := r.NextIndex
	r.NextIndex++
	return idx, nil
}

func (m *memStore) MintTag(ctx context.Context, rootID uint64, address string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.roots[rootID]
	tag := r.NextIndex + 1
	if m.tagInUseLocked(address, tag) {
		var max uint32
		for _, row := range m.rows {
			if row.Address == address && row.DestinationTag != nil && *row.DestinationTag > max {
				max = *row.DestinationTag
			}
		}
		tag = max + 1
	}
	r.NextIndex = tag
	return tag, nil
}

func (m *memStore) tagInUseLocked(address string, tag uint32) bool {
	for _, row := range m.rows {
		if row.Address == address && row.DestinationTag != nil && *row.DestinationTag == tag {
			return true
		}
	}
	return false
}

func (m *memStore) InsertIfAbsent(ctx context.Context, row *model.DepositAddress) (model.InsertOutcome, error) {
	if m.beforeInsert != nil {
		m.beforeInsert(row)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := chain.Key{Chain: chain.ID(row.Chain), Network: row.Network, Asset: row.Asset}
	if row.Active && m.activeLocked(row.UserID, key) != nil {
		return model.KeyConflict, nil
	}
	for _, r := range m.rows {
		if r.Address != row.Address || !sameTag(r.DestinationTag, row.DestinationTag) {
			continue
		}
		if r.Asset == row.Asset || r.UserID != row.UserID {
			return model.AddressConflict, nil
		}
	}
	m.nextID++
	row.ID = m.nextID
	cp := *row
	m.rows = append(m.rows, &cp)
	return model.Inserted, nil
}

func sameTag(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// seed 直接写入一行，模拟其他来源已占用的地址
func (m *memStore) seed(row model.DepositAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row.ID = m.nextID
	m.rows = append(m.rows, &row)
}

func (m *memStore) count(userID uint64, key chain.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Active && r.UserID == userID && r.Chain == string(key.Chain) && r.Network == key.Network && r.Asset == key.Asset {
			n++
		}
	}
	return n
}

func (m *memStore) all() []model.DepositAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DepositAddress, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	return out
}
