package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"custody-wallet/internal/classifier"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
	"custody-wallet/pkg/utils/lock"
)

const (
	reconcileLockKey = "cron:lock:reconcile_addresses"
	reconcileLockTTL = 5 * time.Minute
	reconcileBatch   = 500
)

// ActiveAddressLister 分页读取有效地址
type ActiveAddressLister interface {
	ListActive(ctx context.Context, afterID uint64, limit int) ([]model.DepositAddress, error)
}

// Mismatch 存储的链与分类结果不一致的地址
type Mismatch struct {
	AddressID  uint64
	Address    string
	Stored     chain.ID
	Classified classifier.Result
}

// ReconcileService 定时用分类器复核所有有效地址，发现不一致只记录指标和日志，不修改数据
type ReconcileService struct {
	cron       *cron.Cron
	schedule   string
	locker     lock.DistributedLock
	addresses  ActiveAddressLister
	classifier *classifier.Classifier
}

func NewReconcileService(locker lock.DistributedLock, addresses ActiveAddressLister, cls *classifier.Classifier, schedule string) *ReconcileService {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if cls == nil {
		cls = classifier.New()
	}
	return &ReconcileService{
		cron:       cron.New(),
		schedule:   schedule,
		locker:     locker,
		addresses:  addresses,
		classifier: cls,
	}
}

func (s *ReconcileService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("Reconcile Service started", zap.String("schedule", s.schedule))
	return nil
}

func (s *ReconcileService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Reconcile Service stopped")
}

func (s *ReconcileService) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileLockTTL)
	defer cancel()

	// 1. 多实例只允许一个执行
	locked, err := s.locker.Acquire(ctx, reconcileLockKey, reconcileLockTTL)
	if err != nil || !locked {
		logger.Debug("Reconcile: 获取锁失败或已有实例在运行", zap.Error(err))
		return
	}
	defer func() { _ = s.locker.Release(context.Background(), reconcileLockKey) }()

	// 2. 分页复核
	checked, mismatches, err := s.RunOnce(ctx)
	if err != nil {
		logger.Error("Reconcile: 遍历地址失败", zap.Int("checked", checked), zap.Error(err))
		return
	}
	logger.Info("Reconcile: 地址复核完成", zap.Int("checked", checked), zap.Int("mismatches", len(mismatches)))
}

// RunOnce 遍历一次全部有效地址，返回检查数量和不一致的地址
func (s *ReconcileService) RunOnce(ctx context.Context) (int, []Mismatch, error) {
	var (
		afterID    uint64
		checked    int
		mismatches []Mismatch
	)
	for {
		rows, err := s.addresses.ListActive(ctx, afterID, reconcileBatch)
		if err != nil {
			return checked, mismatches, err
		}
		for _, row := range rows {
			checked++
			if m, ok := s.check(row); ok {
				mismatches = append(mismatches, m)
				monitor.Business.ClassifierMismatches.WithLabelValues(string(m.Stored), string(m.Classified.Chain)).Inc()
				logger.Warn("Reconcile: 地址所属链与分类结果不一致",
					zap.Uint64("address_id", row.ID),
					zap.Uint64("user_id", row.UserID),
					zap.String("address", row.Address),
					zap.String("stored", row.Chain),
					zap.String("classified", string(m.Classified.Chain)),
					zap.String("rule", m.Classified.Rule))
			}
			afterID = row.ID
		}
		if len(rows) < reconcileBatch {
			return checked, mismatches, nil
		}
	}
}

func (s *ReconcileService) check(row model.DepositAddress) (Mismatch, bool) {
	in := classifier.Input{Address: row.Address, Network: row.Network}
	if row.DerivationPath != nil {
		in.DerivationPath = *row.DerivationPath
	}
	res := s.classifier.Explain(in)
	stored := chain.Parse(row.Chain)
	if res.Chain == stored {
		return Mismatch{}, false
	}
	return Mismatch{AddressID: row.ID, Address: row.Address, Stored: stored, Classified: res}, true
}
