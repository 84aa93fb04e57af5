// Package tracker 跟踪某个 (chain, asset) 充值从发现到入账的生命周期。
package tracker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/internal/notify"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

type State string

const (
	AwaitingPayment State = "awaiting_payment"
	PaymentDetected State = "payment_detected"
	Confirming      State = "confirming"
	Completed       State = "completed"
	Failed          State = "failed"
)

// Terminal completed / failed 之后不再变化
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Outcome 一条事件的处理结果
type Outcome int

const (
	Applied   Outcome = iota
	Ignored           // 不属于当前跟踪的组合或地址
	Stale             // 确认数比已记录的少，乱序到达
	Duplicate         // 没有带来任何新信息
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Stale:
		return "stale"
	default:
		return "duplicate"
	}
}

// Crediter 入账由外部账务系统完成
type Crediter interface {
	Credit(ctx context.Context, d model.Deposit) error
}

// Target 当前跟踪的组合及其有效地址
type Target struct {
	UserID  uint64
	Key     chain.Key
	Address string
	Tag     *uint32
}

type txState struct {
	state    State
	observed uint32
	required uint32
	status   string
}

// Machine 纯状态机，不做 I/O 之外的任何事情 (通知和入账通过接口发出)，调用方负责串行化
type Machine struct {
	target   Target
	txs      map[string]*txState
	current  string
	notifier notify.Notifier
	crediter Crediter
}

func NewMachine(target Target, notifier notify.Notifier, crediter Crediter) *Machine {
	return &Machine{
		target:   target,
		txs:      make(map[string]*txState),
		notifier: notifier,
		crediter: crediter,
	}
}

// State 最近一笔交易的状态，没有交易时为 awaiting_payment
func (m *Machine) State() State {
	if tx, ok := m.txs[m.current]; ok {
		return tx.state
	}
	return AwaitingPayment
}

// Current 最近一笔交易的哈希
func (m *Machine) Current() string {
	return m.current
}

// Confirmations 某笔交易已记录的确认数
func (m *Machine) Confirmations(txHash string) (uint32, bool) {
	tx, ok := m.txs[txHash]
	if !ok {
		return 0, false
	}
	return tx.observed, true
}

// Apply 处理一条充值记录 (新发现 / 确认数更新 / 状态变化)
func (m *Machine) Apply(ctx context.Context, d model.Deposit) Outcome {
	if !m.matches(d) {
		return Ignored
	}

	tx, seen := m.txs[d.TransactionHash]
	if !seen {
		return m.detect(ctx, d)
	}

	// 确认数只增不减，更少的确认数是乱序的旧事件；但其中向前的状态变化仍然生效
	if d.ConfirmationsObserved < tx.observed {
		monitor.Business.StaleEventsTotal.WithLabelValues(string(m.target.Key.Chain)).Inc()
		logger.Debug("忽略过期的确认数",
			zap.String("tx", d.TransactionHash),
			zap.Uint32("recorded", tx.observed),
			zap.Uint32("received", d.ConfirmationsObserved))
		if !tx.state.Terminal() && advanceStatus(tx, d.Status) {
			m.settle(ctx, tx, d)
			return Applied
		}
		return Stale
	}
	if tx.state.Terminal() {
		tx.observed = d.ConfirmationsObserved
		return Duplicate
	}

	increased := d.ConfirmationsObserved > tx.observed
	tx.observed = d.ConfirmationsObserved
	if d.ConfirmationsRequired > 0 {
		tx.required = d.ConfirmationsRequired
	}
	statusChanged := advanceStatus(tx, d.Status)

	if m.settle(ctx, tx, d) {
		return Applied
	}
	if increased {
		tx.state = Confirming
		m.emit(ctx, notify.DepositProgress, notify.Info, "充值确认中",
			fmt.Sprintf("%s %s 已确认 %d/%d", d.Amount.String(), d.Asset, tx.observed, tx.required))
		return Applied
	}
	if statusChanged {
		return Applied
	}
	return Duplicate
}

// detect 首次看到一笔交易
func (m *Machine) detect(ctx context.Context, d model.Deposit) Outcome {
	tx := &txState{
		state:    PaymentDetected,
		observed: d.ConfirmationsObserved,
		required: d.ConfirmationsRequired,
		status:   model.DepositPending,
	}
	advanceStatus(tx, d.Status)
	m.txs[d.TransactionHash] = tx
	m.current = d.TransactionHash

	m.emit(ctx, notify.DepositDetected, notify.Info, "检测到充值",
		fmt.Sprintf("%s %s 交易 %s", d.Amount.String(), d.Asset, d.TransactionHash))
	m.settle(ctx, tx, d)
	return Applied
}

// settle 检查是否进入终态，进入时返回 true
func (m *Machine) settle(ctx context.Context, tx *txState, d model.Deposit) bool {
	switch {
	case tx.status == model.DepositRejected:
		tx.state = Failed
		m.emit(ctx, notify.DepositFailed, notify.Failure, "充值失败",
			fmt.Sprintf("交易 %s 被拒绝，请联系客服", d.TransactionHash))
		return true
	case tx.status == model.DepositConfirmed || (tx.required > 0 && tx.observed >= tx.required):
		tx.state = Completed
		if m.crediter != nil {
			if err := m.crediter.Credit(ctx, d); err != nil {
				logger.Error("入账请求失败", zap.String("tx", d.TransactionHash), zap.Error(err))
			}
		}
		m.emit(ctx, notify.DepositCompleted, notify.Success, "充值已到账",
			fmt.Sprintf("%s %s 已入账", d.Amount.String(), d.Asset))
		return true
	}
	return false
}

// advanceStatus 状态只能前进，pending 不会覆盖 confirmed / rejected
func advanceStatus(tx *txState, status string) bool {
	if model.StatusRank(status) > model.StatusRank(tx.status) {
		tx.status = status
		return true
	}
	return false
}

func (m *Machine) matches(d model.Deposit) bool {
	if chain.Parse(d.Chain) != m.target.Key.Chain || chain.NormalizeAsset(d.Asset) != m.target.Key.Asset {
		return false
	}
	if m.target.Key.Chain == chain.EVM {
		if !strings.EqualFold(d.WalletAddress, m.target.Address) {
			return false
		}
	} else if d.WalletAddress != m.target.Address {
		return false
	}
	if m.target.Tag != nil {
		return d.DestinationTag != nil && *d.DestinationTag == *m.target.Tag
	}
	return true
}

func (m *Machine) emit(ctx context.Context, kind notify.Kind, severity notify.Severity, title, body string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, notify.New(m.target.UserID, kind, severity, title, body))
}
