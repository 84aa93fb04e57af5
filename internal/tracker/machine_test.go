package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"custody-wallet/internal/model"
	"custody-wallet/internal/notify"
	"custody-wallet/pkg/chain"
)

const testAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

type recordingCrediter struct {
	mu      sync.Mutex
	credits []string
}

func (c *recordingCrediter) Credit(ctx context.Context, d model.Deposit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credits = append(c.credits, d.TransactionHash)
	return nil
}

func (c *recordingCrediter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.credits)
}

func evmTarget() Target {
	return Target{UserID: 7, Key: chain.NewKey("evm", "mainnet", "ETH"), Address: testAddress}
}

func deposit(tx string, observed, required uint32, status string) model.Deposit {
	return model.Deposit{
		UserID:                7,
		Chain:                 "evm",
		Network:               "mainnet",
		Asset:                 "ETH",
		Amount:                decimal.RequireFromString("1.5"),
		TransactionHash:       tx,
		WalletAddress:         testAddress,
		ConfirmationsObserved: observed,
		ConfirmationsRequired: required,
		Status:                status,
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	rec := &notify.Recorder{}
	cred := &recordingCrediter{}
	m := NewMachine(evmTarget(), rec, cred)
	ctx := context.Background()

	assert.Equal(t, AwaitingPayment, m.State())

	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xaa", 0, 12, model.DepositPending)))
	assert.Equal(t, PaymentDetected, m.State())
	assert.Equal(t, "0xaa", m.Current())

	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xaa", 5, 12, model.DepositPending)))
	assert.Equal(t, Confirming, m.State())

	// 同样的确认数不产生新通知
	assert.Equal(t, Duplicate, m.Apply(ctx, deposit("0xaa", 5, 12, model.DepositPending)))

	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xaa", 12, 12, model.DepositPending)))
	assert.Equal(t, Completed, m.State())

	// 终态之后不再入账
	assert.Equal(t, Duplicate, m.Apply(ctx, deposit("0xaa", 13, 12, model.DepositConfirmed)))
	assert.Equal(t, 1, cred.count())

	assert.Equal(t, []notify.Kind{
		notify.DepositDetected,
		notify.DepositProgress,
		notify.DepositCompleted,
	}, rec.Kinds())
}

func TestStaleConfirmationIgnored(t *testing.T) {
	m := NewMachine(evmTarget(), nil, nil)
	ctx := context.Background()

	m.Apply(ctx, deposit("0xbb", 5, 12, model.DepositPending))
	assert.Equal(t, Stale, m.Apply(ctx, deposit("0xbb", 3, 12, model.DepositPending)))

	got, ok := m.Confirmations("0xbb")
	require.True(t, ok)
	assert.Equal(t, uint32(5), got)
}

func TestStaleEventStillRejects(t *testing.T) {
	rec := &notify.Recorder{}
	cred := &recordingCrediter{}
	m := NewMachine(evmTarget(), rec, cred)
	ctx := context.Background()

	m.Apply(ctx, deposit("0xbc", 5, 12, model.DepositPending))
	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xbc", 3, 12, model.DepositRejected)))
	assert.Equal(t, Failed, m.State())

	// 确认数保持不变
	got, ok := m.Confirmations("0xbc")
	require.True(t, ok)
	assert.Equal(t, uint32(5), got)
	assert.Equal(t, 0, cred.count())

	all := rec.All()
	assert.Equal(t, notify.DepositFailed, all[len(all)-1].Kind)

	// 终态之后的旧事件仍是 stale
	assert.Equal(t, Stale, m.Apply(ctx, deposit("0xbc", 1, 12, model.DepositConfirmed)))
	assert.Equal(t, Failed, m.State())
}

func TestStaleEventStillConfirms(t *testing.T) {
	cred := &recordingCrediter{}
	m := NewMachine(evmTarget(), nil, cred)
	ctx := context.Background()

	m.Apply(ctx, deposit("0xbd", 6, 12, model.DepositPending))
	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xbd", 4, 12, model.DepositConfirmed)))
	assert.Equal(t, Completed, m.State())
	assert.Equal(t, 1, cred.count())
}

func TestStatusConfirmedCompletesEarly(t *testing.T) {
	cred := &recordingCrediter{}
	m := NewMachine(evmTarget(), nil, cred)
	ctx := context.Background()

	m.Apply(ctx, deposit("0xcc", 2, 12, model.DepositPending))
	assert.Equal(t, Applied, m.Apply(ctx, deposit("0xcc", 2, 12, model.DepositConfirmed)))
	assert.Equal(t, Completed, m.State())
	assert.Equal(t, 1, cred.count())
}

func TestRejectedIsPersistentFailure(t *testing.T) {
	rec := &notify.Recorder{}
	m := NewMachine(evmTarget(), rec, nil)
	ctx := context.Background()

	m.Apply(ctx, deposit("0xdd", 1, 12, model.DepositPending))
	m.Apply(ctx, deposit("0xdd", 1, 12, model.DepositRejected))
	assert.Equal(t, Failed, m.State())

	// 状态不能回退
	m.Apply(ctx, deposit("0xdd", 2, 12, model.DepositPending))
	assert.Equal(t, Failed, m.State())

	all := rec.All()
	last := all[len(all)-1]
	assert.Equal(t, notify.DepositFailed, last.Kind)
	assert.True(t, last.Persistent)
}

func TestApplyIgnoresOtherTargets(t *testing.T) {
	m := NewMachine(evmTarget(), nil, nil)
	ctx := context.Background()

	other := deposit("0xee", 1, 12, model.DepositPending)
	other.Asset = "USDT"
	assert.Equal(t, Ignored, m.Apply(ctx, other))

	other = deposit("0xee", 1, 12, model.DepositPending)
	other.WalletAddress = "0x0000000000000000000000000000000000000001"
	assert.Equal(t, Ignored, m.Apply(ctx, other))

	// EVM 地址大小写不敏感
	lower := deposit("0xee", 1, 12, model.DepositPending)
	lower.WalletAddress = "0x9858effd232b4033e47d90003d41ec34ecaeda94"
	assert.Equal(t, Applied, m.Apply(ctx, lower))
}

func TestTagMustMatch(t *testing.T) {
	tag := uint32(42)
	m := NewMachine(Target{UserID: 1, Key: chain.NewKey("xrp", "mainnet", "XRP"), Address: "rShared", Tag: &tag}, nil, nil)
	ctx := context.Background()

	d := model.Deposit{Chain: "xrp", Asset: "XRP", WalletAddress: "rShared", TransactionHash: "T1", ConfirmationsRequired: 1}
	assert.Equal(t, Ignored, m.Apply(ctx, d))

	wrong := uint32(41)
	d.DestinationTag = &wrong
	assert.Equal(t, Ignored, m.Apply(ctx, d))

	d.DestinationTag = &tag
	d.ConfirmationsObserved = 1
	assert.Equal(t, Applied, m.Apply(ctx, d))
	assert.Equal(t, Completed, m.State())
}

// 不论事件以什么顺序到达，记录的确认数都是已见过的最大值，且从不下降
func TestMonotonicConfirmationsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMachine(evmTarget(), nil, nil)
		ctx := context.Background()
		updates := rapid.SliceOfN(rapid.Uint32Range(0, 30), 1, 40).Draw(t, "updates")

		var prev, max uint32
		for i, n := range updates {
			m.Apply(ctx, deposit("0xff", n, 1000, model.DepositPending))
			got, ok := m.Confirmations("0xff")
			if !ok {
				t.Fatalf("tx not tracked after update %d", i)
			}
			if n > max {
				max = n
			}
			if got < prev {
				t.Fatalf("confirmations regressed: %d -> %d", prev, got)
			}
			if got != max {
				t.Fatalf("expected %d, got %d", max, got)
			}
			prev = got
		}
	})
}
