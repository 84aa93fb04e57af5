package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/logger"
)

const (
	hubPingInterval = 30 * time.Second
	hubPongWait     = 10 * time.Second
	hubSendBuffer   = 32
)

// Hub 按用户把充值变化推送给 websocket 连接
// 慢连接的缓冲满时直接丢消息，客户端重连后会重新拉取
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]map[chan []byte]struct{})}
}

// Subscribe 返回消息通道和取消函数
func (h *Hub) Subscribe(userID uint64) (<-chan []byte, func()) {
	ch := make(chan []byte, hubSendBuffer)
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[chan []byte]struct{})
	}
	h.clients[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients[userID], ch)
			if len(h.clients[userID]) == 0 {
				delete(h.clients, userID)
			}
			h.mu.Unlock()
		})
	}
}

// Publish 推送一条充值变化
func (h *Hub) Publish(d model.Deposit) {
	payload, err := json.Marshal(model.StreamEvent{Type: model.StreamEventDeposit, Deposit: &d})
	if err != nil {
		logger.Error("充值推送序列化失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[d.UserID] {
		select {
		case ch <- payload:
		default:
			logger.Warn("充值推送缓冲已满，丢弃消息", zap.Uint64("user_id", d.UserID))
		}
	}
}

// Connections 某用户当前的连接数
func (h *Hub) Connections(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve 维护一条 websocket 连接直到断开，阻塞
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID uint64) {
	msgs, unsubscribe := h.Subscribe(userID)
	defer unsubscribe()
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 读循环只处理 pong 和关闭
	_ = conn.SetReadDeadline(time.Now().Add(hubPingInterval + hubPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubPingInterval + hubPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubPongWait)); err != nil {
				return
			}
		case msg := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(hubPongWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("充值推送写入失败", zap.Uint64("user_id", userID), zap.Error(err))
				return
			}
		}
	}
}
