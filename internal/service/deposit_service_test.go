package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-wallet/internal/model"
	"custody-wallet/internal/service/mq"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/errno"
)

// memDeposits 内存版 DepositRepository
type memDeposits struct {
	mu      sync.Mutex
	rows    map[string]model.Deposit
	credits []model.CreditRequest
	nextID  uint64
	fail    error
}

func newMemDeposits() *memDeposits {
	return &memDeposits{rows: make(map[string]model.Deposit)}
}

func (m *memDeposits) Apply(ctx context.Context, in model.Deposit) (model.Deposit, model.DepositChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Deposit{}, model.DepositChange{}, m.fail
	}
	k := in.Chain + "|" + in.TransactionHash + "|" + in.WalletAddress
	var existing *model.Deposit
	if row, ok := m.rows[k]; ok {
		existing = &row
	}
	merged, change := model.MergeDeposit(existing, in)
	if change.Created {
		m.nextID++
		merged.ID = m.nextID
	}
	if change.Changed() {
		m.rows[k] = merged
	}
	if change.Credit {
		m.credits = append(m.credits, model.NewCreditRequest(merged))
	}
	return merged, change, nil
}

func (m *memDeposits) Latest(ctx context.Context, userID uint64, key chain.Key, limit int) ([]model.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Deposit
	for _, d := range m.rows {
		if d.UserID == userID && d.Chain == string(key.Chain) && d.Asset == key.Asset {
			out = append(out, d)
		}
	}
	return out, nil
}

type ownerMap map[string]*model.DepositAddress

func (o ownerMap) FindByAddress(ctx context.Context, id chain.ID, address string, tag *uint32) (*model.DepositAddress, error) {
	return o[address], nil
}

type recordingHub struct {
	mu   sync.Mutex
	sent []model.Deposit
}

func (h *recordingHub) Publish(d model.Deposit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, d)
}

func ethEvent(observed uint32, status string) DepositEvent {
	return DepositEvent{
		UserID:                7,
		Chain:                 "ETH",
		Network:               "Mainnet",
		Asset:                 "eth",
		Amount:                decimal.RequireFromString("0.25"),
		TransactionHash:       "0xabc",
		WalletAddress:         "0x9858effd232b4033e47d90003d41ec34ecaeda94",
		ConfirmationsObserved: observed,
		ConfirmationsRequired: 12,
		Status:                status,
	}
}

func TestIngestLifecycle(t *testing.T) {
	repo := newMemDeposits()
	hub := &recordingHub{}
	svc := NewDepositService(repo, nil, hub)
	ctx := context.Background()

	d, change, err := svc.Ingest(ctx, ethEvent(1, model.DepositPending))
	require.NoError(t, err)
	assert.True(t, change.Created)
	assert.Equal(t, "evm", d.Chain)
	assert.Equal(t, "mainnet", d.Network)
	assert.Equal(t, "ETH", d.Asset)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", d.WalletAddress)

	// 乱序的旧事件不改变数据，也不推送
	_, _, err = svc.Ingest(ctx, ethEvent(6, model.DepositPending))
	require.NoError(t, err)
	d, change, err = svc.Ingest(ctx, ethEvent(4, model.DepositPending))
	require.NoError(t, err)
	assert.True(t, change.Stale)
	assert.Equal(t, uint32(6), d.ConfirmationsObserved)

	d, change, err = svc.Ingest(ctx, ethEvent(12, model.DepositPending))
	require.NoError(t, err)
	assert.True(t, change.Credit)
	assert.Equal(t, model.DepositConfirmed, d.Status)

	// 重复确认不再入账
	_, change, err = svc.Ingest(ctx, ethEvent(13, model.DepositConfirmed))
	require.NoError(t, err)
	assert.False(t, change.Credit)

	require.Len(t, repo.credits, 1)
	assert.Equal(t, "0.25", repo.credits[0].Amount)
	assert.Len(t, hub.sent, 4)
}

func TestIngestResolvesOwner(t *testing.T) {
	tag := uint32(5)
	owners := ownerMap{"rShared": {UserID: 42, Address: "rShared", DestinationTag: &tag}}
	svc := NewDepositService(newMemDeposits(), owners, nil)

	ev := DepositEvent{Chain: "xrp", Network: "mainnet", Asset: "XRP", TransactionHash: "T1",
		WalletAddress: "rShared", DestinationTag: &tag, ConfirmationsRequired: 1}
	d, _, err := svc.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), d.UserID)

	ev.WalletAddress = "rUnknown"
	_, _, err = svc.Ingest(context.Background(), ev)
	assert.Equal(t, errno.ErrAddressNotFound, err)
}

func TestIngestValidation(t *testing.T) {
	svc := NewDepositService(newMemDeposits(), nil, nil)

	ev := ethEvent(1, model.DepositPending)
	ev.Chain = "doge"
	_, _, err := svc.Ingest(context.Background(), ev)
	assert.Equal(t, errno.ErrChainUnsupported, err)

	ev = ethEvent(1, model.DepositPending)
	ev.TransactionHash = " "
	_, _, err = svc.Ingest(context.Background(), ev)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrInvalidParam.Code, code)
}

func TestHandleMessage(t *testing.T) {
	repo := newMemDeposits()
	svc := NewDepositService(repo, nil, nil)
	ctx := context.Background()

	payload, err := json.Marshal(ethEvent(2, model.DepositPending))
	require.NoError(t, err)
	require.NoError(t, svc.HandleMessage(ctx, &mq.Message{ID: "1", Payload: payload}))

	// 格式错误的消息被确认丢弃
	assert.NoError(t, svc.HandleMessage(ctx, &mq.Message{ID: "2", Payload: []byte("{")}))

	// 数据库错误需要重试
	repo.fail = errors.New("connection reset")
	assert.Error(t, svc.HandleMessage(ctx, &mq.Message{ID: "3", Payload: payload}))

	rows, err := svc.Latest(ctx, 7, chain.NewKey("evm", "mainnet", "ETH"), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
