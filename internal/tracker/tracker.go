package tracker

import (
	"context"

	"github.com/lightningnetwork/lnd/clock"

	"custody-wallet/internal/model"
	"custody-wallet/internal/notify"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/monitor"
)

// Tracker 把会话集合和实时推送组合在一起
type Tracker struct {
	arena  *Arena
	stream *EventStream
}

func New(userID uint64, fetcher Fetcher, notifier notify.Notifier, crediter Crediter,
	stream StreamConfig, clk clock.Clock) *Tracker {

	t := &Tracker{arena: NewArena(userID, fetcher, notifier, crediter)}
	t.stream = NewEventStream(stream, clk, t.arena.Reconcile, t.onEvent)
	return t
}

// Select 切换跟踪的组合
func (t *Tracker) Select(key chain.Key) *Session {
	return t.arena.Select(key)
}

func (t *Tracker) Current() *Session {
	return t.arena.Current()
}

// Run 保持推送连接直到 ctx 取消
func (t *Tracker) Run(ctx context.Context) error {
	defer t.arena.Close()
	return t.stream.Run(ctx)
}

func (t *Tracker) onEvent(ctx context.Context, d model.Deposit) {
	outcome := t.arena.Dispatch(ctx, d)
	monitor.Business.DepositEventsTotal.WithLabelValues(d.Chain, outcome.String()).Inc()
}
