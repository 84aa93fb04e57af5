package observer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/internal/service"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
)

const pendingBatch = 200

// EVMObserver 跟踪 pending 充值的链上确认数
// 1. Fetcher (生产者): 单线程，按间隔读取链头和待确认充值
// 2. Worker Pool (消费者): 多线程，并行查询交易回执并回写确认数
type EVMObserver struct {
	reader   ChainReader
	pending  PendingLister
	ingester Ingester

	interval    time.Duration
	workerCount int

	head atomic.Uint64
	wg   sync.WaitGroup

	// Fetcher -> jobs -> Workers
	jobs chan job
}

type job struct {
	head    uint64
	deposit model.Deposit
}

// DialEVM 连接节点 RPC
func DialEVM(rpcURL string) (*ethclient.Client, error) {
	return ethclient.Dial(rpcURL)
}

func NewEVMObserver(reader ChainReader, pending PendingLister, ingester Ingester, interval time.Duration, workerCount int) *EVMObserver {
	if workerCount <= 0 {
		workerCount = 4
	}
	if interval <= 0 {
		interval = 12 * time.Second
	}
	return &EVMObserver{
		reader:      reader,
		pending:     pending,
		ingester:    ingester,
		interval:    interval,
		workerCount: workerCount,
		// 带缓冲的 Channel，Worker 处理不过来时 Fetcher 阻塞 (背压)
		jobs: make(chan job, workerCount*2),
	}
}

// Start 启动观察器，ctx 结束后所有 goroutine 退出
func (o *EVMObserver) Start(ctx context.Context) error {
	logger.Info("[Observer] 启动 EVM 确认数观察器", zap.Int("workers", o.workerCount), zap.Duration("interval", o.interval))

	for i := 0; i < o.workerCount; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.wg.Add(1)
	go o.fetcher(ctx)
	return nil
}

func (o *EVMObserver) Stop() error {
	o.wg.Wait()
	return nil
}

func (o *EVMObserver) GetCurrentHeight() uint64 {
	return o.head.Load()
}

func (o *EVMObserver) fetcher(ctx context.Context) {
	defer o.wg.Done()
	// fetcher 退出时关闭 channel，通知 workers 下班
	defer close(o.jobs)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if !o.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("[Observer] Fetcher 收到退出信号")
			return
		case <-ticker.C:
		}
	}
}

// poll 推送一轮任务，ctx 结束时返回 false
func (o *EVMObserver) poll(ctx context.Context) bool {
	head, err := o.reader.BlockNumber(ctx)
	if err != nil {
		logger.Warn("[Observer] 读取链头失败", zap.Error(err))
		return ctx.Err() == nil
	}
	o.head.Store(head)

	deposits, err := o.pending.Pending(ctx, chain.EVM, pendingBatch)
	if err != nil {
		logger.Error("[Observer] 查询待确认充值失败", zap.Error(err))
		return ctx.Err() == nil
	}

	for _, d := range deposits {
		select {
		case o.jobs <- job{head: head, deposit: d}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (o *EVMObserver) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	logger.Debug("[Observer] Worker 上线", zap.Int("worker", id))

	for j := range o.jobs {
		if err := o.process(ctx, j); err != nil {
			logger.Warn("[Observer] 处理充值失败",
				zap.Int("worker", id),
				zap.String("tx", j.deposit.TransactionHash),
				zap.Error(err))
		}
	}
}

func (o *EVMObserver) process(ctx context.Context, j job) error {
	receipt, err := o.reader.TransactionReceipt(ctx, common.HexToHash(j.deposit.TransactionHash))
	if errors.Is(err, ethereum.NotFound) {
		// 还在内存池或者被重组掉，下轮再看
		return nil
	}
	if err != nil {
		return err
	}

	ev, ok := ObservedEvent(j.deposit, receipt, j.head)
	if !ok {
		return nil
	}
	_, _, err = o.ingester.Ingest(ctx, ev)
	return err
}

// ObservedEvent 由回执和链头计算新的确认数，没有变化时 ok=false
func ObservedEvent(d model.Deposit, receipt *types.Receipt, head uint64) (service.DepositEvent, bool) {
	if receipt == nil || receipt.BlockNumber == nil {
		return service.DepositEvent{}, false
	}

	status := model.DepositPending
	var confirmations uint32
	if included := receipt.BlockNumber.Uint64(); head >= included {
		confirmations = uint32(head - included + 1)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		status = model.DepositRejected
	}
	if status == d.Status && confirmations <= d.ConfirmationsObserved {
		return service.DepositEvent{}, false
	}

	return service.DepositEvent{
		UserID:                d.UserID,
		Chain:                 d.Chain,
		Network:               d.Network,
		Asset:                 d.Asset,
		Amount:                d.Amount,
		TransactionHash:       d.TransactionHash,
		WalletAddress:         d.WalletAddress,
		DestinationTag:        d.DestinationTag,
		ConfirmationsObserved: confirmations,
		ConfirmationsRequired: d.ConfirmationsRequired,
		Status:                status,
	}, true
}
