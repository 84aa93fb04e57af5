package allocator

import (
	"context"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
)

// Store 分配器依赖的持久化操作，生产实现见 internal/repository
type Store interface {
	// FindOverrides 运营指定的地址 (user, currency)，网络由调用方比较
	FindOverrides(ctx context.Context, userID uint64, currency string) ([]model.UserDepositAddress, error)
	// FindActive 该用户该组合的有效地址，不存在返回 (nil, nil)
	FindActive(ctx context.Context, userID uint64, key chain.Key) (*model.DepositAddress, error)
	// FindRoot 组合对应的 WalletRoot，代币没有独立 root 时返回同链基础资产的 root，都没有返回 (nil, nil)
	FindRoot(ctx context.Context, key chain.Key) (*model.WalletRoot, error)
	// ReserveIndex 原子地 "读取并递增" root 的 NextIndex，返回本次占用的 index
	ReserveIndex(ctx context.Context, rootID uint64) (uint32, error)
	// MintTag 在同一个事务中递增计数器并铸造 destination tag，保证 (address, tag) 未被占用
	MintTag(ctx context.Context, rootID uint64, address string) (uint32, error)
	// InsertIfAbsent 原子插入，冲突时不报错而是返回冲突类型
	InsertIfAbsent(ctx context.Context, row *model.DepositAddress) (model.InsertOutcome, error)
}

// Authority 远程分配服务 (部分链由独立的分配服务管理)
type Authority interface {
	Allocate(ctx context.Context, key chain.Key) (*RemoteAllocation, error)
}

// RemoteAllocation 远程分配结果，派生信息都是可选的
type RemoteAllocation struct {
	Address        string
	DerivationPath *string
	AddressIndex   *uint32
	Xpub           string
	DestinationTag *uint32
}

// Ensurer 确保上游已监听该地址，实现必须是非阻塞的，失败只记日志
type Ensurer interface {
	EnsureWatched(ctx context.Context, addr *model.DepositAddress)
}

type nopEnsurer struct{}

func (nopEnsurer) EnsureWatched(context.Context, *model.DepositAddress) {}
