package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-wallet/internal/model"
)

// 第一条连接推送一条事件后断开，第二条连接推送后保持
func newFlakyServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		d := deposit("0x10", uint32(n), 12, model.DepositPending)
		if err := conn.WriteJSON(model.StreamEvent{Type: model.StreamEventDeposit, Deposit: &d}); err != nil {
			return
		}
		if n == 1 {
			return
		}
		// 等客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestEventStreamReconnectsAndReconciles(t *testing.T) {
	srv, conns := newFlakyServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var (
		mu       sync.Mutex
		events   []uint32
		connects atomic.Int32
	)
	stream := NewEventStream(StreamConfig{
		URL:        url,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, clock.NewDefaultClock(), func(ctx context.Context) {
		connects.Add(1)
	}, func(ctx context.Context, d model.Deposit) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, d.ConfirmationsObserved)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 3*time.Second, 10*time.Millisecond)

	// 每次连上都会补拉一次
	assert.Equal(t, int32(2), connects.Load())
	assert.Equal(t, int32(2), conns.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestTrackerEndToEnd(t *testing.T) {
	srv, _ := newFlakyServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	f := newFakeFetcher()
	tr := New(7, f, nil, nil, StreamConfig{URL: url, MinBackoff: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}, nil)
	sess := tr.Select(evmTarget().Key)
	waitAddress(t, sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, ok := sess.Confirmations("0x10")
		return ok && got == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, Confirming, sess.State())
	assert.GreaterOrEqual(t, f.latestCalls(), 2)
}
