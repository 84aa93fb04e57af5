package observer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"custody-wallet/internal/model"
	"custody-wallet/internal/service"
	"custody-wallet/pkg/chain"
)

// ChainObserver 定义了确认数观察器的通用行为
type ChainObserver interface {
	// Start 启动观察器
	// ctx: 用于控制优雅退出
	Start(ctx context.Context) error

	// Stop 等待所有 goroutine 退出
	Stop() error

	// GetCurrentHeight 获取最近一次看到的链头高度
	GetCurrentHeight() uint64
}

// ChainReader 节点只读接口，*ethclient.Client 满足该接口
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// PendingLister 列出还在等待确认的充值
type PendingLister interface {
	Pending(ctx context.Context, chainID chain.ID, limit int) ([]model.Deposit, error)
}

// Ingester 确认数变化交给 DepositService 合并
type Ingester interface {
	Ingest(ctx context.Context, ev service.DepositEvent) (model.Deposit, model.DepositChange, error)
}
