package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"custody-wallet/internal/model"
)

func depositEvent(tx string, observed, required uint32, status string) model.Deposit {
	return model.Deposit{
		UserID:                7,
		Chain:                 "evm",
		Network:               "mainnet",
		Asset:                 "ETH",
		Amount:                decimal.RequireFromString("1.25"),
		TransactionHash:       tx,
		WalletAddress:         "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		ConfirmationsObserved: observed,
		ConfirmationsRequired: required,
		Status:                status,
	}
}

func creditMessages(t *testing.T, db *gorm.DB) []model.OutboxMessage {
	t.Helper()
	var rows []model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", model.TopicCredit).Order("id").Find(&rows).Error)
	return rows
}

func TestDepositApplyCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewDepositStore(db)
	ctx := context.Background()

	d, change, err := store.Apply(ctx, depositEvent("0x01", 0, 3, model.DepositPending))
	require.NoError(t, err)
	assert.True(t, change.Created)
	assert.False(t, change.Credit)
	assert.Empty(t, creditMessages(t, db))

	d, change, err = store.Apply(ctx, depositEvent("0x01", 3, 3, model.DepositPending))
	require.NoError(t, err)
	assert.True(t, change.Credit)
	assert.Equal(t, model.DepositConfirmed, d.Status)

	// 重复事件、乱序的旧事件、之后的 rejected 都不能再次入账
	for _, ev := range []model.Deposit{
		depositEvent("0x01", 3, 3, model.DepositConfirmed),
		depositEvent("0x01", 1, 3, model.DepositPending),
		depositEvent("0x01", 4, 3, model.DepositRejected),
	} {
		_, change, err = store.Apply(ctx, ev)
		require.NoError(t, err)
		assert.False(t, change.Credit)
	}

	msgs := creditMessages(t, db)
	require.Len(t, msgs, 1)
	var req model.CreditRequest
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &req))
	assert.Equal(t, d.ID, req.DepositID)
	assert.Equal(t, "1.25", req.Amount)
	assert.Equal(t, model.OutboxPending, msgs[0].Status)

	var stored model.Deposit
	require.NoError(t, db.First(&stored, d.ID).Error)
	assert.Equal(t, uint32(4), stored.ConfirmationsObserved)
	assert.Equal(t, model.DepositConfirmed, stored.Status)
}

func TestDepositApplyStaleKeepsConfirmations(t *testing.T) {
	db := newTestDB(t)
	store := NewDepositStore(db)
	ctx := context.Background()

	_, _, err := store.Apply(ctx, depositEvent("0x02", 5, 12, model.DepositPending))
	require.NoError(t, err)

	// 旧事件的确认数被忽略，但 rejected 仍然生效
	d, change, err := store.Apply(ctx, depositEvent("0x02", 2, 12, model.DepositRejected))
	require.NoError(t, err)
	assert.True(t, change.Stale)
	assert.True(t, change.StatusChanged)
	assert.Equal(t, uint32(5), d.ConfirmationsObserved)
	assert.Equal(t, model.DepositRejected, d.Status)
	assert.Empty(t, creditMessages(t, db))
}

func TestDepositApplyConcurrentFirstSight(t *testing.T) {
	db := newTestDB(t)
	store := NewDepositStore(db)

	// 上游重复投递同一笔已确认的充值
	const workers = 8
	created := make([]bool, workers)
	runConcurrently(workers, func(i int) {
		_, change, err := store.Apply(context.Background(), depositEvent("0x03", 12, 12, model.DepositConfirmed))
		assert.NoError(t, err)
		created[i] = change.Created
	})

	var n int
	for _, c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), countRows(t, db, &model.Deposit{}, "transaction_hash = ?", "0x03"))
	assert.Len(t, creditMessages(t, db), 1)
}
