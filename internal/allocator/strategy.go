package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"custody-wallet/internal/hd"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
	"custody-wallet/pkg/retry"
)

// 地址来源，写入 deposit_addresses.source
const (
	SourceOverride = "override"
	SourceExisting = "existing"
	SourceShared   = "shared"
	SourceRemote   = "remote"
	SourceLocal    = "local"
)

// Request 一次分配请求，Key 已规范化
type Request struct {
	UserID uint64
	Key    chain.Key
}

// Strategy 按优先级依次尝试，返回 ErrNotApplicable 表示交给下一个
type Strategy interface {
	Name() string
	TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error)
}

// ---------------------------------------------------------------------------
// 1. 运营指定地址

type OverrideStrategy struct {
	store Store
}

func NewOverrideStrategy(store Store) *OverrideStrategy {
	return &OverrideStrategy{store: store}
}

func (s *OverrideStrategy) Name() string { return SourceOverride }

func (s *OverrideStrategy) TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error) {
	overrides, err := s.store.FindOverrides(ctx, req.UserID, req.Key.Asset)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if !o.IsActive || !chain.NetworksCompatible(req.Key.Chain, o.Network, req.Key.Network) {
			continue
		}
		// 原样返回，不做任何派生，也不落 deposit_addresses
		return &model.DepositAddress{
			UserID:    req.UserID,
			Chain:     string(req.Key.Chain),
			Network:   req.Key.Network,
			Asset:     req.Key.Asset,
			Address:   o.Address,
			Source:    SourceOverride,
			Active:    true,
			CreatedAt: o.CreatedAt,
		}, nil
	}
	return nil, ErrNotApplicable
}

// ---------------------------------------------------------------------------
// 2. 已有的有效地址

type ExistingStrategy struct {
	store   Store
	ensurer Ensurer
}

func NewExistingStrategy(store Store, ensurer Ensurer) *ExistingStrategy {
	return &ExistingStrategy{store: store, ensurer: ensurer}
}

func (s *ExistingStrategy) Name() string { return SourceExisting }

func (s *ExistingStrategy) TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error) {
	row, err := s.store.FindActive(ctx, req.UserID, req.Key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotApplicable
	}
	// 顺带确认上游监听仍然有效
	s.ensurer.EnsureWatched(ctx, row)
	return row, nil
}

// ---------------------------------------------------------------------------
// 3. 同链代币复用基础资产地址

type SharedTokenStrategy struct {
	store Store
}

func NewSharedTokenStrategy(store Store) *SharedTokenStrategy {
	return &SharedTokenStrategy{store: store}
}

func (s *SharedTokenStrategy) Name() string { return SourceShared }

func (s *SharedTokenStrategy) TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error) {
	if !req.Key.IsToken() {
		return nil, ErrNotApplicable
	}
	base, err := s.store.FindActive(ctx, req.UserID, req.Key.Base())
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, ErrNotApplicable
	}
	shape, err := base.Shape()
	if err != nil {
		logger.Warn("基础资产地址形态异常，放弃复用", zap.Uint64("row_id", base.ID), zap.Error(err))
		return nil, ErrNotApplicable
	}

	row := newRow(req, base.Address, SourceShared)
	row.WithShape(shape)
	return persist(ctx, s.store, req, row, func() error {
		// 地址已被占用: 放弃复用，交给后面的策略重新铸造
		monitor.Business.AllocationConflicts.WithLabelValues(string(req.Key.Chain), "shared_discarded").Inc()
		logger.Info("代币复用地址冲突，改为新地址",
			zap.Uint64("user_id", req.UserID), zap.String("key", req.Key.String()))
		return ErrNotApplicable
	})
}

// ---------------------------------------------------------------------------
// 4. 远程分配服务

type RemoteStrategy struct {
	store     Store
	authority Authority
	delegated map[chain.ID]bool
}

func NewRemoteStrategy(store Store, authority Authority, delegatedChains []string) *RemoteStrategy {
	delegated := make(map[chain.ID]bool, len(delegatedChains))
	for _, c := range delegatedChains {
		if id := chain.Parse(c); id != chain.Unknown {
			delegated[id] = true
		}
	}
	return &RemoteStrategy{store: store, authority: authority, delegated: delegated}
}

func (s *RemoteStrategy) Name() string { return SourceRemote }

func (s *RemoteStrategy) TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error) {
	if s.authority == nil || !s.delegated[req.Key.Chain] {
		return nil, ErrNotApplicable
	}

	res, err := s.authority.Allocate(ctx, req.Key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// RemoteAllocatorUnavailable: 可恢复，回退到本地派生
		logger.Warn("远程分配服务不可用，回退本地派生",
			zap.String("key", req.Key.String()), zap.Error(err))
		monitor.Business.AllocationsTotal.WithLabelValues(string(req.Key.Chain), SourceRemote, "unavailable").Inc()
		return nil, ErrNotApplicable
	}
	if strings.TrimSpace(res.Address) == "" {
		logger.Warn("远程分配服务返回空地址", zap.String("key", req.Key.String()))
		return nil, ErrNotApplicable
	}

	row := newRow(req, res.Address, SourceRemote)
	row.DerivationPath, row.AddressIndex, row.DestinationTag = res.DerivationPath, res.AddressIndex, res.DestinationTag
	if _, err := row.Shape(); err != nil {
		logger.Warn("远程分配结果不完整，只保留地址", zap.Error(err))
		row.WithShape(model.ExternalShape{})
	}
	return persist(ctx, s.store, req, row, func() error {
		monitor.Business.AllocationConflicts.WithLabelValues(string(req.Key.Chain), "remote_address").Inc()
		logger.Warn("远程分配的地址已被占用，回退本地派生", zap.String("address", res.Address))
		return ErrNotApplicable
	})
}

// ---------------------------------------------------------------------------
// 5. 本地确定性派生

type LocalStrategy struct {
	store         Store
	engine        *hd.Engine
	maxRetries    int
	maxTagRetries int
}

func NewLocalStrategy(store Store, engine *hd.Engine, maxRetries, maxTagRetries int) *LocalStrategy {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if maxTagRetries <= 0 {
		maxTagRetries = 3
	}
	return &LocalStrategy{store: store, engine: engine, maxRetries: maxRetries, maxTagRetries: maxTagRetries}
}

func (s *LocalStrategy) Name() string { return SourceLocal }

func (s *LocalStrategy) TryAllocate(ctx context.Context, req Request) (*model.DepositAddress, error) {
	rootRow, err := s.store.FindRoot(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if rootRow == nil {
		return nil, &Error{Kind: KindNoRoot, UserID: req.UserID, Key: req.Key, Err: errors.New("WalletRoot 未初始化")}
	}
	root, err := s.toHDRoot(rootRow)
	if err != nil {
		return nil, &Error{Kind: KindDerivation, UserID: req.UserID, Key: req.Key, Err: err}
	}

	switch root.Strategy {
	case chain.TagDerived:
		return s.allocateTag(ctx, req, rootRow.ID, root)
	default:
		return s.allocateIndex(ctx, req, rootRow.ID, root)
	}
}

// allocateIndex 地址冲突时换一个新 index 重试，组合冲突时回查并返回已有行
func (s *LocalStrategy) allocateIndex(ctx context.Context, req Request, rootID uint64, root *hd.Root) (*model.DepositAddress, error) {
	op := func(ctx context.Context, attempt int) (*model.DepositAddress, error) {
		index, err := s.store.ReserveIndex(ctx, rootID)
		if err != nil {
			return nil, err
		}
		addr, err := s.engine.DeriveAddress(root, index)
		if err != nil {
			return nil, &Error{Kind: KindDerivation, UserID: req.UserID, Key: req.Key, Err: err}
		}

		row := newRow(req, addr.Value, SourceLocal)
		row.WithShape(model.IndexShape{DerivationPath: addr.DerivationPath, Index: addr.Index})

		outcome, err := s.store.InsertIfAbsent(ctx, row)
		if err != nil {
			return nil, err
		}
		if outcome == model.Inserted {
			return row, nil
		}
		monitor.Business.AllocationConflicts.WithLabelValues(string(req.Key.Chain), outcome.String()).Inc()
		logger.Debug("地址插入冲突", zap.String("key", req.Key.String()),
			zap.Uint32("index", index), zap.Int("attempt", attempt), zap.Stringer("outcome", outcome))
		return nil, retry.Conflict(fmt.Errorf("%s at index %d", outcome, index))
	}

	row, err := retry.Do(ctx, s.maxRetries, op, s.reRead(req))
	if errors.Is(err, retry.ErrExhausted) {
		return nil, &Error{Kind: KindExhausted, UserID: req.UserID, Key: req.Key, Err: err}
	}
	return row, err
}

// allocateTag 共享地址 + 新 tag。tag 冲突不能走通用重试: 计数器在 MintTag 中被快进到已发放的最大 tag 之后
func (s *LocalStrategy) allocateTag(ctx context.Context, req Request, rootID uint64, root *hd.Root) (*model.DepositAddress, error) {
	shared, err := s.engine.SharedAddress(root)
	if err != nil {
		return nil, &Error{Kind: KindDerivation, UserID: req.UserID, Key: req.Key, Err: err}
	}

	var last error
	for attempt := 0; attempt < s.maxTagRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tag, err := s.store.MintTag(ctx, rootID, shared.Value)
		if err != nil {
			return nil, err
		}

		row := newRow(req, shared.Value, SourceLocal)
		row.WithShape(model.TagShape{Tag: tag})

		outcome, err := s.store.InsertIfAbsent(ctx, row)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case model.Inserted:
			return row, nil
		case model.KeyConflict:
			existing, err := s.store.FindActive(ctx, req.UserID, req.Key)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return existing, nil
			}
		}
		monitor.Business.AllocationConflicts.WithLabelValues(string(req.Key.Chain), "tag").Inc()
		logger.Warn("destination tag 冲突", zap.String("address", shared.Value), zap.Uint32("tag", tag))
		last = fmt.Errorf("tag %d: %s", tag, outcome)
	}
	return nil, &Error{Kind: KindExhausted, UserID: req.UserID, Key: req.Key,
		Err: fmt.Errorf("%w after %d attempts: %w", retry.ErrExhausted, s.maxTagRetries, last)}
}

func (s *LocalStrategy) reRead(req Request) retry.ReRead[*model.DepositAddress] {
	return func(ctx context.Context) (*model.DepositAddress, bool, error) {
		row, err := s.store.FindActive(ctx, req.UserID, req.Key)
		if err != nil {
			return nil, false, err
		}
		return row, row != nil, nil
	}
}

// toHDRoot 数据库行 -> 派生引擎的 Root，地址编码使用 root 自身的网络
func (s *LocalStrategy) toHDRoot(row *model.WalletRoot) (*hd.Root, error) {
	key := chain.NewKey(row.Chain, row.Network, row.Asset)
	strategy, err := s.engine.Strategy(key.Chain)
	if err != nil {
		return nil, err
	}
	return &hd.Root{
		Key:                key,
		ExtendedPublicKey:  row.Xpub,
		DerivationPath:     hd.AccountPath(row.DerivationTemplate),
		DerivationTemplate: row.DerivationTemplate,
		AddressType:        row.AddressType,
		Strategy:           strategy,
	}, nil
}

// ---------------------------------------------------------------------------

func newRow(req Request, address, source string) *model.DepositAddress {
	return &model.DepositAddress{
		UserID:  req.UserID,
		Chain:   string(req.Key.Chain),
		Network: req.Key.Network,
		Asset:   req.Key.Asset,
		Address: address,
		Source:  source,
		Active:  true,
	}
}

// persist 插入一行: 成功返回该行；组合冲突回查已有行；地址冲突交给 onAddressConflict 决定
func persist(ctx context.Context, store Store, req Request, row *model.DepositAddress, onAddressConflict func() error) (*model.DepositAddress, error) {
	outcome, err := store.InsertIfAbsent(ctx, row)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case model.Inserted:
		return row, nil
	case model.KeyConflict:
		existing, err := store.FindActive(ctx, req.UserID, req.Key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, ErrNotApplicable
	default:
		return nil, onAddressConflict()
	}
}
