package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"custody-wallet/pkg/logger"
)

type Config struct {
	HttpPort string
	GrpcPort string
}

// Task 随服务一起运行的后台任务 (MQ 消费、outbox 中继、观察器等)，ctx 结束时应当返回
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type App struct {
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	tasks        []Task
	onStop       []func()
}

func New(cfg Config, httpHandler *gin.Engine, grpcServer *grpc.Server) (*App, error) {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on grpc port %s: %w", cfg.GrpcPort, err)
	}

	return &App{
		httpServer:   httpSrv,
		grpcServer:   grpcServer,
		grpcListener: lis,
	}, nil
}

// Go 注册后台任务
func (a *App) Go(name string, run func(ctx context.Context) error) {
	a.tasks = append(a.tasks, Task{Name: name, Run: run})
}

// OnStop 注册关闭时的清理函数，按注册的逆序执行
func (a *App) OnStop(f func()) {
	a.onStop = append(a.onStop, f)
}

// Run 启动服务并阻塞，直到收到关闭信号
func (a *App) Run() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. 后台任务
	var wg sync.WaitGroup
	for _, t := range a.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			logger.Info("Starting background task", zap.String("task", t.Name))
			if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Background task exited", zap.String("task", t.Name), zap.Error(err))
			}
		}(t)
	}

	// 2. HTTP
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP Server failure", zap.Error(err))
		}
	}()

	// 3. gRPC
	go func() {
		logger.Info("Starting gRPC Server", zap.String("addr", a.grpcListener.Addr().String()))
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			logger.Fatal("gRPC Server failure", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// 4. Graceful Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	a.grpcServer.GracefulStop()
	wg.Wait()

	for i := len(a.onStop) - 1; i >= 0; i-- {
		a.onStop[i]()
	}
	logger.Info("Server exited properly")
}
