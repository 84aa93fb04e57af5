package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-wallet/internal/worker"
)

type fakeRegistrar struct {
	got []AddressWatchPayload
	err error
}

func (f *fakeRegistrar) Register(ctx context.Context, p AddressWatchPayload) error {
	f.got = append(f.got, p)
	return f.err
}

func TestTaskIDIncludesTag(t *testing.T) {
	p := AddressWatchPayload{Address: "rAddr", Chain: "xrp", Network: "mainnet", Asset: "XRP"}
	assert.Equal(t, "watch:xrp:mainnet:XRP:rAddr", p.TaskID())

	tag := uint32(12)
	p.DestinationTag = &tag
	assert.Equal(t, "watch:xrp:mainnet:XRP:rAddr:12", p.TaskID())
}

func TestProcessTask(t *testing.T) {
	p := AddressWatchPayload{Address: "0xabc", Chain: "evm", Network: "mainnet", Asset: "USDT"}
	task, err := NewAddressWatchTask(p, 3)
	require.NoError(t, err)
	assert.Equal(t, TypeAddressWatch, task.Type())

	reg := &fakeRegistrar{}
	require.NoError(t, NewAddressWatchHandler(reg).ProcessTask(context.Background(), task))
	require.Len(t, reg.got, 1)
	assert.Equal(t, p, reg.got[0])

	reg.err = errors.New("upstream down")
	assert.Error(t, NewAddressWatchHandler(reg).ProcessTask(context.Background(), task))
}

func TestProcessTaskBadPayload(t *testing.T) {
	err := NewAddressWatchHandler(&fakeRegistrar{}).ProcessTask(context.Background(),
		asynq.NewTask(TypeAddressWatch, []byte("{"), asynq.Queue(worker.QueueWatch)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
