package tracker

import (
	"context"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/internal/notify"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
)

// ReconcileLimit 重连后补拉的充值记录条数
const ReconcileLimit = 20

// Fetcher 会话需要的两个远程调用
type Fetcher interface {
	Allocate(ctx context.Context, key chain.Key) (*model.DepositAddress, error)
	Latest(ctx context.Context, key chain.Key, limit int) ([]model.Deposit, error)
}

// Session 某个被选中组合的跟踪状态，持有自己的取消函数
type Session struct {
	Key        chain.Key
	Generation uint64
	Address    *Async[*model.DepositAddress]

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	machine *Machine
}

// State 地址尚未就绪时为 awaiting_payment
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return AwaitingPayment
	}
	return s.machine.State()
}

// Confirmations 某笔交易在本会话里记录的确认数
func (s *Session) Confirmations(txHash string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil {
		return 0, false
	}
	return s.machine.Confirmations(txHash)
}

// Cancelled 会话是否已被新的选择取代
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

func (s *Session) apply(ctx context.Context, d model.Deposit) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil || s.ctx.Err() != nil {
		return Ignored
	}
	return s.machine.Apply(ctx, d)
}

// Arena 同一用户的会话集合，任一时刻只有一个当前会话
type Arena struct {
	userID   uint64
	fetcher  Fetcher
	notifier notify.Notifier
	crediter Crediter
	gm       *fn.GoroutineManager

	mu         sync.Mutex
	current    *Session
	generation uint64
}

func NewArena(userID uint64, fetcher Fetcher, notifier notify.Notifier, crediter Crediter) *Arena {
	return &Arena{
		userID:   userID,
		fetcher:  fetcher,
		notifier: notifier,
		crediter: crediter,
		gm:       fn.NewGoroutineManager(),
	}
}

// Select 切换到新的组合，取消上一个会话的所有在途请求
// 地址分配在后台进行，结果通过 Session.Address 获取
func (a *Arena) Select(key chain.Key) *Session {
	a.mu.Lock()
	if a.current != nil {
		a.current.cancel()
	}
	a.generation++
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		Key:        key,
		Generation: a.generation,
		Address:    NewAsync[*model.DepositAddress](),
		ctx:        ctx,
		cancel:     cancel,
	}
	a.current = sess
	a.mu.Unlock()

	started := a.gm.Go(ctx, func(ctx context.Context) {
		a.load(ctx, sess)
	})
	if !started {
		sess.Address.Resolve(nil, context.Canceled)
	}
	return sess
}

// Current 当前会话，未选择时为 nil
func (a *Arena) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Arena) isCurrent(sess *Session) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current == sess && sess.ctx.Err() == nil
}

// load 分配地址，然后补拉一次历史记录
func (a *Arena) load(ctx context.Context, sess *Session) {
	addr, err := a.fetcher.Allocate(ctx, sess.Key)

	// 被取代的会话丢弃结果，不能覆盖新会话的状态
	if !a.isCurrent(sess) {
		sess.Address.Resolve(nil, context.Canceled)
		logger.Debug("丢弃过期的地址分配结果",
			zap.String("key", sess.Key.String()), zap.Uint64("generation", sess.Generation))
		return
	}
	if err != nil {
		sess.Address.Resolve(nil, err)
		logger.Warn("充值地址分配失败", zap.String("key", sess.Key.String()), zap.Error(err))
		return
	}

	sess.mu.Lock()
	sess.machine = NewMachine(Target{
		UserID:  a.userID,
		Key:     sess.Key,
		Address: addr.Address,
		Tag:     addr.DestinationTag,
	}, a.notifier, a.crediter)
	sess.mu.Unlock()
	sess.Address.Resolve(addr, nil)

	a.reconcile(ctx, sess)
}

// Dispatch 把实时事件交给当前会话
func (a *Arena) Dispatch(ctx context.Context, d model.Deposit) Outcome {
	sess := a.Current()
	if sess == nil {
		return Ignored
	}
	return sess.apply(ctx, d)
}

// Reconcile 重新拉取当前会话的最新充值记录，断线期间漏掉的事件由此补上
func (a *Arena) Reconcile(ctx context.Context) {
	sess := a.Current()
	if sess == nil || sess.Address.Status() != Ready {
		return
	}
	a.reconcile(ctx, sess)
}

func (a *Arena) reconcile(ctx context.Context, sess *Session) {
	deposits, err := a.fetcher.Latest(ctx, sess.Key, ReconcileLimit)
	if err != nil {
		logger.Warn("补拉充值记录失败", zap.String("key", sess.Key.String()), zap.Error(err))
		return
	}
	if !a.isCurrent(sess) {
		return
	}

	// 旧记录先处理，最新的交易成为当前交易
	sort.SliceStable(deposits, func(i, j int) bool {
		return deposits[i].CreatedAt.Before(deposits[j].CreatedAt)
	})
	for _, d := range deposits {
		sess.apply(ctx, d)
	}
}

// Close 取消所有会话并等待后台任务退出
func (a *Arena) Close() {
	a.mu.Lock()
	if a.current != nil {
		a.current.cancel()
	}
	a.mu.Unlock()
	a.gm.Stop()
}
