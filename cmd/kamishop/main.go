// cmd/kamishop/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"kamishop/internal/pkg/bootstrap"
	"kamishop/internal/pkg/config"
	"kamishop/internal/pkg/httpclient"
	"kamishop/internal/pkg/mq"
	"kamishop/internal/pkg/mysql"
	"kamishop/internal/pkg/nacos"
	"kamishop/internal/pkg/redis"
	accountapp "kamishop/internal/service/account/application"
	accountinfra "kamishop/internal/service/account/infrastructure"
	cardapp "kamishop/internal/service/card/application"
	carddomain "kamishop/internal/service/card/domain"
	cardinfra "kamishop/internal/service/card/infrastructure"
	"kamishop/internal/service/card/infrastructure/rule"
	orderapp "kamishop/internal/service/order/application"
	orderinfra "kamishop/internal/service/order/infrastructure"
	"kamishop/internal/service/order/infrastructure/adapter"
	"kamishop/internal/service/order/interfaces"
	"kamishop/internal/service/order/port"
	productapp "kamishop/internal/service/product/application"
	productinfra "kamishop/internal/service/product/infrastructure"
	"kamishop/internal/tracing"
	"kamishop/internal/zookeeper"
)

func main() {
	configPath := flag.String("config", "configs/kamishop.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// 1. 初始化 TracerProvider
	tp, err := tracing.InitTracerProvider(cfg.Server.Name, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}
	tracer := otel.Tracer(cfg.Server.Name)

	// 2. MySQL：连接并迁移表结构
	db, err := mysql.NewDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MySQL")
	}
	if err := db.AutoMigrate(
		&productinfra.ProductModel{},
		&cardinfra.CardCodeModel{},
		&orderinfra.OrderModel{},
		&accountinfra.UserModel{},
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database schema")
	}
	txManager := mysql.NewTxManager(db)

	// 3. Redis：支付事件去重的快路径
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	// 4. Kafka：支付结果消费 + 发货通知生产
	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	paymentReader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.PaymentTopic, cfg.Infra.Kafka.PaymentGroupID)
	notificationWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.NotificationTopic)

	// 5. ZooKeeper：批处理任务的执行权锁
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Addrs, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ZooKeeper")
	}

	// 6. 仓储与领域服务
	productRepo := productinfra.NewGormProductRepository(db)
	cardRepo := cardinfra.NewGormCardRepository(db)
	orderRepo := orderinfra.NewGormOrderRepository(db)
	userRepo := accountinfra.NewGormUserRepository(db)

	var codeRule carddomain.CodeRule
	if cfg.Card.ImportRule != "" {
		codeRule, err = rule.NewCELCodeRule(cfg.Card.ImportRule)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid card import rule expression")
		}
	}

	productSvc := productapp.NewProductService(productRepo, cardRepo)
	cardSvc := cardapp.NewCardService(cardRepo, productSvc, codeRule)
	accountSvc := accountapp.NewAccountService(userRepo)

	pushHub := interfaces.NewPushHub()
	notifier := adapter.NewNotificationKafkaAdapter(notificationWriter)
	orderSvc := orderapp.NewOrderService(orderRepo, cardRepo, productSvc, txManager, tracer, notifier, pushHub)

	// 7. 入站适配器
	replayGuard, err := adapter.NewReplayGuardRedisAdapter(redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load replay guard script")
	}
	paymentConsumer := adapter.NewPaymentConsumerAdapter(paymentReader, orderSvc, replayGuard)

	var verifier port.PaymentVerifier
	if cfg.Payment.VerifyURL != "" {
		verifier = adapter.NewPaymentHTTPAdapter(httpclient.NewClient(tracer), cfg.Payment.VerifyURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化管理员账户
	if err := accountSvc.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure default admin account")
	}

	// 8. 后台循环：推送 hub、支付消费者、清理和补发 worker
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pushHub.Run()
		return nil
	})
	g.Go(func() error {
		paymentConsumer.Start(gctx)
		return nil
	})

	var cleanupWorker *interfaces.CleanupWorker
	if cfg.Cleanup.Enabled {
		cleanupWorker, err = interfaces.NewCleanupWorker(orderSvc, zkConn, cfg.Cleanup.Interval, cfg.Cleanup.Hours)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create cleanup worker")
		}
		w := cleanupWorker
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	var reconcileWorker *interfaces.ReconcileWorker
	if cfg.Reconcile.Enabled {
		reconcileWorker, err = interfaces.NewReconcileWorker(orderSvc, zkConn, cfg.Reconcile.Interval)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create reconcile worker")
		}
		w := reconcileWorker
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	// 9. HTTP 路由
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// 手动触发的清理/补发与 worker 抢同一个锁路径，等并发轮次结束再跑
	cleanupLock, err := zookeeper.NewDistributedLock(zkConn, "order-cleanup")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create cleanup lock")
	}
	reconcileLock, err := zookeeper.NewDistributedLock(zkConn, "order-reconcile")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconcile lock")
	}
	handler := interfaces.NewOrderHandler(orderSvc, cardSvc, productSvc, accountSvc, verifier, pushHub, cleanupLock, reconcileLock)
	handler.RegisterRoutes(mux)

	// 10. 服务注册（可选）
	var nacosClient *nacos.Client
	if cfg.Infra.Nacos.ServerAddrs != "" {
		nacosClient, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Nacos client")
		}
	}

	err = bootstrap.Run(bootstrap.AppInfo{
		ServiceName: cfg.Server.Name,
		Port:        cfg.Server.Port,
		Mux:         mux,
		Nacos:       nacosClient,
		OnShutdown: []func(ctx context.Context){
			func(shutdownCtx context.Context) {
				cancel()
				if cleanupWorker != nil {
					cleanupWorker.Stop()
				}
				if reconcileWorker != nil {
					reconcileWorker.Stop()
				}
				paymentConsumer.Stop()
				pushHub.Stop()
				_ = g.Wait()
			},
			func(shutdownCtx context.Context) {
				if err := notificationWriter.Close(); err != nil {
					log.Printf("Error closing notification writer: %v", err)
				}
				if err := redisClient.Close(); err != nil {
					log.Printf("Error closing redis client: %v", err)
				}
				zkConn.Close()
			},
			func(shutdownCtx context.Context) {
				if err := tp.Shutdown(shutdownCtx); err != nil {
					log.Printf("Error shutting down tracer provider: %v", err)
				}
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Service terminated with error")
	}
}
