// Package worker 基于 asynq 的后台任务队列，目前只承载地址监听注册
package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"custody-wallet/pkg/logger"
)

const (
	QueueWatch   = "watch"
	QueueDefault = "default"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer handlers 为 任务类型 -> 处理器
func NewServer(addr, password string, db, concurrency int, handlers map[string]asynq.Handler) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: addr, Password: password, DB: db},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueWatch:   6,
				QueueDefault: 1,
			},
			// 监听注册失败多半是上游扫链服务暂时不可用，退避到分钟级即可
			RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
				d := time.Duration(1<<uint(min(n, 6))) * time.Second
				return min(d, time.Minute)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Debug("任务执行失败",
					zap.String("type", task.Type()),
					zap.Int("retried", retried),
					zap.Error(err))
			}),
			ShutdownTimeout: 10 * time.Second,
			Logger:          logger.NewAsynqLogger(),
		},
	)

	mux := asynq.NewServeMux()
	for typ, h := range handlers {
		mux.Handle(typ, h)
	}
	return &Server{server: srv, mux: mux}
}

// Start 非阻塞启动
func (s *Server) Start() error {
	logger.Info("Worker Server starting...")
	return s.server.Start(s.mux)
}

func (s *Server) Stop() {
	s.server.Shutdown()
}
