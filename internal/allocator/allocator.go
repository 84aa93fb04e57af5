// Package allocator 为 (user, chain, network, asset) 分配唯一的充值地址。
//
// 策略按固定优先级依次尝试，第一个成功的结果直接返回:
// 运营指定 -> 已有地址 -> 代币复用 -> 远程分配 -> 本地派生。
// 同一进程内的重复请求通过 singleflight 合并，跨进程的并发由数据库唯一约束兜底。
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"custody-wallet/internal/hd"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

const resolveTimeout = 30 * time.Second

type Config struct {
	MaxRetries      int
	MaxTagRetries   int
	DelegatedChains []string
}

type Allocator struct {
	strategies []Strategy
	ensurer    Ensurer
	group      singleflight.Group
}

type Option func(*options)

type options struct {
	authority Authority
	ensurer   Ensurer
}

// WithAuthority 启用远程分配服务
func WithAuthority(a Authority) Option {
	return func(o *options) { o.authority = a }
}

// WithEnsurer 分配成功后确保上游监听
func WithEnsurer(e Ensurer) Option {
	return func(o *options) { o.ensurer = e }
}

// New 按默认优先级组装策略
func New(store Store, engine *hd.Engine, cfg Config, opts ...Option) *Allocator {
	o := options{ensurer: nopEnsurer{}}
	for _, opt := range opts {
		opt(&o)
	}
	return NewWithStrategies(o.ensurer,
		NewOverrideStrategy(store),
		NewExistingStrategy(store, o.ensurer),
		NewSharedTokenStrategy(store),
		NewRemoteStrategy(store, o.authority, cfg.DelegatedChains),
		NewLocalStrategy(store, engine, cfg.MaxRetries, cfg.MaxTagRetries),
	)
}

// NewWithStrategies 使用自定义策略列表，便于单独测试某个优先级
func NewWithStrategies(ensurer Ensurer, strategies ...Strategy) *Allocator {
	if ensurer == nil {
		ensurer = nopEnsurer{}
	}
	return &Allocator{strategies: strategies, ensurer: ensurer}
}

// Allocate 幂等: 同一组合重复调用返回同一个地址
func (a *Allocator) Allocate(ctx context.Context, userID uint64, chainName, network, asset string) (*model.DepositAddress, error) {
	key := chain.NewKey(chainName, network, asset)
	if err := key.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidKey, UserID: userID, Key: key, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		monitor.Business.AllocationDuration.WithLabelValues(string(key.Chain)).Observe(time.Since(start).Seconds())
	}()

	// 合并同一进程内同一组合的并发请求
	flight := strconv.FormatUint(userID, 10) + "|" + key.String()
	ch := a.group.DoChan(flight, func() (interface{}, error) {
		// 共享的执行不随单个调用方取消，避免一个调用方离开导致其他调用方失败
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return a.resolve(shared, Request{UserID: userID, Key: key})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		row := *res.Val.(*model.DepositAddress)
		return &row, nil
	}
}

func (a *Allocator) resolve(ctx context.Context, req Request) (*model.DepositAddress, error) {
	chainLabel := string(req.Key.Chain)
	for _, s := range a.strategies {
		row, err := s.TryAllocate(ctx, req)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			monitor.Business.AllocationsTotal.WithLabelValues(chainLabel, s.Name(), "error").Inc()
			logger.Error("分配地址失败",
				zap.String("strategy", s.Name()),
				zap.Uint64("user_id", req.UserID),
				zap.String("chain", chainLabel),
				zap.String("network", req.Key.Network),
				zap.String("asset", req.Key.Asset),
				zap.Error(err))
			return nil, wrap(req, err)
		}

		monitor.Business.AllocationsTotal.WithLabelValues(chainLabel, s.Name(), "ok").Inc()
		if s.Name() != SourceOverride && s.Name() != SourceExisting {
			a.ensurer.EnsureWatched(ctx, row)
			logger.Info("分配新地址",
				zap.String("strategy", s.Name()),
				zap.Uint64("user_id", req.UserID),
				zap.String("key", req.Key.String()),
				zap.String("address", row.Address))
		}
		return row, nil
	}
	return nil, &Error{Kind: KindExhausted, UserID: req.UserID, Key: req.Key, Err: fmt.Errorf("没有可用的分配策略")}
}

func wrap(req Request, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindStore, UserID: req.UserID, Key: req.Key, Err: err}
}
