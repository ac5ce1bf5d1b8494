package main

import (
	"context"
	"io"
	"sync"
	"time"

	"bridge-relay/internal/chain"
	"bridge-relay/internal/handler"
	"bridge-relay/internal/model"
	"bridge-relay/internal/queue"
	"bridge-relay/internal/relay"
	"bridge-relay/internal/server"
	"bridge-relay/internal/service"
	"bridge-relay/internal/service/mq"
	"bridge-relay/internal/session"
	"bridge-relay/internal/status"
	"bridge-relay/internal/transport"

	"bridge-relay/pkg/cache"
	"bridge-relay/pkg/config"
	"bridge-relay/pkg/database"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/monitor"
	"bridge-relay/pkg/network"
	"bridge-relay/pkg/signer"
	"bridge-relay/pkg/utils/lock"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Bridge Relay API
// @version 1.0
// @description L2 dApp -> L1 transaction relay
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger / 监控
	logger.Init(cfg.App.Env)
	defer logger.Sync()
	monitor.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 加载 L1 签名账户
	s, err := signer.Load(cfg.Signer)
	if err != nil {
		logger.Fatal("加载签名账户失败", zap.Error(err))
	}
	logger.Info("🔑 L1 账户已加载", zap.String("address", s.Address().Hex()))

	// 3. 连接 L1 节点
	dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
	l1, err := chain.Dial(dialCtx, cfg.Network.L1RpcUrl)
	dialCancel()
	if err != nil {
		logger.Fatal("连接 L1 节点失败", zap.Error(err))
	}
	defer l1.Close()
	wallet := chain.NewWallet(l1, s, l1.ChainID())

	// 4. 网络注册表
	registry, err := loadRegistry(cfg.Network)
	if err != nil {
		logger.Fatal("加载网络注册表失败", zap.Error(err))
	}
	target := registry.Default()
	logger.Info("目标 L2 网络",
		zap.String("key", target.Key),
		zap.Uint64("chain_id", target.ChainID),
		zap.String("portal", target.PortalAddress))

	mode, err := relay.ParseMode(cfg.Relay.Mode)
	if err != nil {
		logger.Fatal("中继模式无效", zap.Error(err))
	}

	// 5. 连接 Redis (Redis Streams 模式必需，Kafka 模式只用于去重)
	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		if cfg.Redis.MQType != "kafka" {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		logger.Warn("Redis 不可用，去重退化为进程内", zap.Error(err))
		rdb = nil
	}

	// 6. 初始化消息队列
	producer, _, err := mq.New(cfg, rdb)
	if err != nil {
		logger.Fatal("初始化消息队列失败", zap.Error(err))
	}
	newConsumer, err := mq.NewConsumerFunc(cfg, rdb)
	if err != nil {
		logger.Fatal("初始化消息队列失败", zap.Error(err))
	}
	logger.Info("消息队列已就绪", zap.String("type", cfg.Redis.MQType))

	// 7. 核心状态: 队列 + 状态面
	q := queue.New()
	board := status.NewBoard()

	// 8. 推送 / 归档
	notifier := service.NewNotifier(producer, cfg.Transport.StatusTopic, registry, 0)
	board.Subscribe(notifier)

	var (
		db        *gorm.DB
		archive   *service.ArchiveService
		recorders []relay.Recorder
		history   handler.HistoryReader
	)
	if cfg.DB.Enabled {
		db = openDatabase(cfg)
		archive = service.NewArchiveService(db, cfg.Transport.StatusTopic, registry).WithCache(historyCache(rdb))
		recorders = append(recorders, archive)
		history = archive
	} else {
		// 没有数据库时直接推送中继结果
		recorders = append(recorders, notifier)
	}

	// 9. 会话管理器 + 中继引擎
	var engine *relay.Engine
	manager := session.NewManager(
		transport.Factory(producer, newConsumer, transport.Options{
			EventsTopic:  cfg.Transport.EventsTopic,
			ActionsTopic: cfg.Transport.ActionsTopic,
		}),
		q, board, registry, wallet,
		session.Options{
			Dedup:    dedupLock(rdb),
			DedupTTL: cfg.Transport.DedupTTL,
			OnPurge: func() {
				if engine != nil {
					engine.AbortAll()
				}
			},
		},
	)
	engine = relay.NewEngine(q, l1, wallet, manager, board, target, relay.Options{
		Mode:         mode,
		PollInterval: cfg.Relay.PollInterval,
		CheckRate:    cfg.Relay.CheckRate,
		Recorders:    recorders,
	})

	if err := manager.Init(ctx, session.Identity{Address: wallet.Address(), Name: "bridge-relay"}); err != nil {
		// 可以稍后通过 POST /api/v1/session/init 重试
		logger.Error("会话传输层初始化失败", zap.Error(err))
	}

	// 10. 后台任务
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Start(ctx)
	}()
	if db != nil {
		outbox := service.NewOutboxService(db, producer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outbox.Start(ctx)
		}()
	}

	// 11. HTTP
	h := handler.NewRelayHandler(manager, engine, q, board, registry, history)
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, server.NewHTTPRouter(h))
	app.OnShutdown(func() {
		manager.Close()
		engine.Close()
		cancel()
		notifier.Close()
		wg.Wait()
	})

	logger.Info("🚀 Bridge relay 已启动",
		zap.String("mode", string(mode)),
		zap.String("network", target.Key),
		zap.String("account", wallet.Address().Hex()))

	// 运行 (阻塞)
	app.Run()

	// 12. 退出后资源清理
	if c, ok := producer.(io.Closer); ok {
		c.Close()
	}
	if db != nil {
		logger.Info("正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("系统已退出")
}

func loadRegistry(c config.NetworkConfig) (*network.Registry, error) {
	if c.RegistryFile != "" {
		return network.LoadFile(c.RegistryFile, c.Default)
	}
	return network.NewRegistry(c.Default)
}

func dedupLock(rdb *redis.Client) lock.DistributedLock {
	if rdb == nil {
		return lock.NewMemoryLock(time.Minute)
	}
	return lock.NewRedisLock(rdb)
}

func historyCache(rdb *redis.Client) cache.Cache {
	local := cache.NewMemoryCache(time.Minute, 5*time.Minute)
	if rdb == nil {
		return local
	}
	return cache.NewMultiLevelCache(local, cache.NewRedisCache(rdb, "bridge_relay:"))
}

func openDatabase(cfg config.Config) *gorm.DB {
	db, err := database.ConnectPostgres(database.PostgresDSN(cfg.DB), cfg.App.Env == "development")
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 开发环境自动迁移，生产环境使用 cmd/migrate
	if cfg.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}
	return db
}
