package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-wallet/internal/model"
)

func TestHubRoutesByUser(t *testing.T) {
	h := NewHub()
	mine, cancelMine := h.Subscribe(1)
	other, cancelOther := h.Subscribe(2)
	defer cancelOther()

	h.Publish(model.Deposit{UserID: 1, TransactionHash: "0x1"})
	select {
	case msg := <-mine:
		assert.Contains(t, string(msg), `"type":"deposit"`)
		assert.Contains(t, string(msg), `"transaction_hash":"0x1"`)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	assert.Empty(t, other)

	cancelMine()
	cancelMine()
	assert.Equal(t, 0, h.Connections(1))
	assert.Equal(t, 1, h.Connections(2))
}

func TestHubServe(t *testing.T) {
	h := NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(r.Context(), conn, 9)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Connections(9) == 1 }, time.Second, 5*time.Millisecond)
	h.Publish(model.Deposit{UserID: 9, TransactionHash: "0x9", ConfirmationsObserved: 3})

	var ev model.StreamEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.StreamEventDeposit, ev.Type)
	require.NotNil(t, ev.Deposit)
	assert.Equal(t, uint32(3), ev.Deposit.ConfirmationsObserved)

	// 客户端断开后连接被清理
	_ = conn.Close()
	require.Eventually(t, func() bool { return h.Connections(9) == 0 }, 2*time.Second, 5*time.Millisecond)
}
