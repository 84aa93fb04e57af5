package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"custody-wallet/internal/allocator"
	"custody-wallet/internal/classifier"
	"custody-wallet/internal/handler"
	"custody-wallet/internal/hd"
	"custody-wallet/internal/remote"
	"custody-wallet/internal/repository"
	"custody-wallet/internal/server"
	"custody-wallet/internal/service"
	"custody-wallet/internal/service/mq"
	"custody-wallet/internal/service/observer"
	"custody-wallet/internal/verifier"
	"custody-wallet/internal/watch"
	"custody-wallet/internal/worker"
	"custody-wallet/internal/worker/tasks"
	"custody-wallet/pkg/cache"
	"custody-wallet/pkg/config"
	"custody-wallet/pkg/database"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/utils/lock"
	"custody-wallet/pkg/validator"
	"custody-wallet/pkg/vault"
)

// @title Custody Wallet API
// @version 1.0
// @description Deposit address allocation, deposit tracking and recovery phrase verification.

// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config / Logger / 校验规则
	config.Init()
	cfg := config.Global

	logger.Init(cfg.App.Env)
	defer logger.Sync()
	validator.Init()

	// 1. 数据库和 Redis
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 2. 缓存: go-cache (L1) + Redis (L2)
	multiCache := cache.NewMultiLevelCache(
		cache.NewMemoryCache(5*time.Minute, 10*time.Minute),
		cache.NewRedisCache(rdb, "custody:"),
		time.Minute,
	)

	// 3. 地址分配
	addressStore := repository.NewAddressStore(db)
	allocStore := repository.NewCachedAddressStore(addressStore, multiCache, 10*time.Minute)

	queue := worker.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	opts := []allocator.Option{allocator.WithEnsurer(watch.NewEnsurer(queue, cfg.Watch.MaxRetry))}
	if cfg.Allocator.RemoteAddr != "" {
		authority, err := remote.Dial(cfg.Allocator.RemoteAddr, cfg.Allocator.RemoteTimeout)
		if err != nil {
			logger.Fatal("远程分配服务初始化失败", zap.Error(err))
		}
		defer authority.Close()
		opts = append(opts, allocator.WithAuthority(authority))
	}
	alloc := allocator.New(allocStore, hd.NewEngine(), allocator.Config{
		MaxRetries:      cfg.Allocator.MaxRetries,
		MaxTagRetries:   cfg.Allocator.MaxTagRetries,
		DelegatedChains: cfg.Allocator.DelegatedChains,
	}, opts...)
	addressService := service.NewAddressService(alloc, addressStore, multiCache)

	// 4. 消息队列
	producer, consumer := newMQ(cfg, rdb)

	// 5. 充值
	hub := service.NewHub()
	depositStore := repository.NewDepositStore(db)
	depositService := service.NewDepositService(depositStore, addressStore, hub)

	// 6. 主密钥和抄写确认
	var mnemonicHandler *handler.MnemonicHandler
	blobs, err := vault.OpenStore(context.Background(), cfg.Wallet.VaultBackend, cfg.Wallet.KeystorePath, cfg.Wallet.S3())
	if err != nil {
		logger.Warn("vault 未配置，助记词接口不可用", zap.Error(err))
	} else {
		registry := verifier.NewRegistry(clock.NewDefaultClock(), cfg.Verifier.ChallengeTTL, cfg.Verifier.AttemptsPerMinute)
		mnemonicHandler = handler.NewMnemonicHandler(vault.New(blobs), registry)
	}

	// 7. HTTP / gRPC
	cls := classifier.New()
	router := server.NewHTTPRouter(server.Handlers{
		Health: handler.NewHealth(map[string]handler.Pinger{
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		Address:  handler.NewAddressHandler(addressService, cls),
		Deposit:  handler.NewDepositHandler(depositService, hub),
		Mnemonic: mnemonicHandler,
	})
	grpcServer := server.NewGRPCServer(addressService)

	app, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
	}, router, grpcServer)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 8. 后台任务
	app.Go("deposit-consumer", func(ctx context.Context) error {
		return depositService.Consume(ctx, consumer)
	})
	relay := service.NewRelayService(db, producer)
	app.Go("outbox-relay", func(ctx context.Context) error {
		relay.Start(ctx)
		return nil
	})
	if cfg.Observer.EVMRPCURL != "" {
		client, err := observer.DialEVM(cfg.Observer.EVMRPCURL)
		if err != nil {
			logger.Fatal("EVM 节点连接失败", zap.Error(err))
		}
		obs := observer.NewEVMObserver(client, depositStore, depositService, cfg.Observer.Interval, cfg.Observer.Workers)
		app.Go("evm-observer", func(ctx context.Context) error {
			if err := obs.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return obs.Stop()
		})
		app.OnStop(client.Close)
	}

	watchWorker := worker.NewServer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 10, map[string]asynq.Handler{
		tasks.TypeAddressWatch: tasks.NewAddressWatchHandler(watch.NewHTTPRegistrar(cfg.Watch.Endpoint, cfg.Watch.Timeout)),
	})
	if err := watchWorker.Start(); err != nil {
		logger.Fatal("Worker 启动失败", zap.Error(err))
	}
	app.OnStop(watchWorker.Stop)

	reconcile := service.NewReconcileService(lock.NewRedisLock(rdb), addressStore, cls, cfg.Reconcile.Schedule)
	if err := reconcile.Start(); err != nil {
		logger.Fatal("对账任务启动失败", zap.Error(err))
	}
	app.OnStop(reconcile.Stop)

	// 9. 退出后资源清理 (逆序执行)
	app.OnStop(func() {
		logger.Info("正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = rdb.Close()
		_ = queue.Close()
	})
	app.OnStop(func() { _ = consumer.Close() })

	// 运行 (阻塞)
	app.Run()
	logger.Info("系统已退出")
}

// newMQ redis (默认) / kafka / memory (单机调试)
func newMQ(cfg config.Config, rdb *redis.Client) (mq.Producer, mq.Consumer) {
	switch cfg.Redis.MQType {
	case "kafka":
		logger.Info("使用 Kafka 作为消息队列...")
		return mq.NewKafkaProducer(cfg.Kafka.Brokers), mq.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
	case "memory":
		logger.Info("使用进程内消息队列 (仅限开发环境)...")
		broker := mq.NewMemoryBroker()
		return broker, broker
	default:
		logger.Info("使用 Redis Streams 作为消息队列...")
		return mq.NewRedisProducer(rdb), mq.NewRedisConsumer(rdb, cfg.Kafka.GroupID, "wallet-server")
	}
}
