package tracker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/logger"
)

// StreamConfig 断线重连参数
type StreamConfig struct {
	URL        string
	Header     http.Header
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// EventStream 充值事件的 websocket 订阅，断线后指数退避重连
// 每次连上都会先调用 onConnect 补拉数据，再开始读推送
type EventStream struct {
	cfg       StreamConfig
	clock     clock.Clock
	dialer    *websocket.Dialer
	onConnect func(ctx context.Context)
	onEvent   func(ctx context.Context, d model.Deposit)
}

func NewEventStream(cfg StreamConfig, clk clock.Clock, onConnect func(ctx context.Context),
	onEvent func(ctx context.Context, d model.Deposit)) *EventStream {

	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &EventStream{
		cfg:       cfg,
		clock:     clk,
		dialer:    websocket.DefaultDialer,
		onConnect: onConnect,
		onEvent:   onEvent,
	}
}

func (s *EventStream) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.MinBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = 0 // 一直重连，直到 ctx 取消
	b.Reset()
	return b
}

// Run 阻塞直到 ctx 取消
func (s *EventStream) Run(ctx context.Context) error {
	b := s.newBackOff()
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
		if err == nil {
			b.Reset()
			logger.Info("充值推送已连接", zap.String("url", s.cfg.URL))
			if s.onConnect != nil {
				s.onConnect(ctx)
			}
			err = s.read(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		logger.Warn("充值推送断开，准备重连", zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-s.clock.TickAfter(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *EventStream) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		var ev model.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("服务端关闭连接")
			}
			return err
		}
		if ev.Type != model.StreamEventDeposit || ev.Deposit == nil {
			continue
		}
		if s.onEvent != nil {
			s.onEvent(ctx, *ev.Deposit)
		}
	}
}
