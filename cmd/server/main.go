package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/handler"
	"ewallet/internal/infrastructure/cache"
	"ewallet/internal/infrastructure/database"
	"ewallet/internal/infrastructure/lock"
	"ewallet/internal/infrastructure/mq"
	"ewallet/internal/job"
	"ewallet/internal/repository"
	"ewallet/internal/repository/memory"
	"ewallet/internal/service"
	"ewallet/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker", 1, "流水号生成器 worker ID")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化 ID 生成器
	ids, err := idgen.NewSnowflake(*workerID)
	if err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	// 初始化存储
	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}

	// 初始化 Redis（未启用时退化为进程内锁）
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	var locker lock.Locker = lock.NewLocalLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, lock.Options{
			TTL:           cfg.Ledger.LockTTL,
			RetryInterval: cfg.Ledger.LockRetryInterval,
			MaxRetries:    cfg.Ledger.LockMaxRetries,
		})
	}

	// 初始化 Kafka（未配置 broker 时只打印事件）
	var publisher mq.Publisher = mq.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 失败: %v", err)
		}
		publisher = kafka
	}
	defer publisher.Close()

	// 组装服务
	house := service.NewHouseAccountResolver(cfg.Ledger.HouseAccountNumber)
	gateway := service.NewGatewayAdapter(service.NewSimulatedProcessor(&cfg.Gateway), store.Gateway(), cfg.Gateway.Timeout)
	ledgerService := service.NewLedgerService(store, gateway, house, locker, ids, cfg)
	accountService := service.NewAccountService(store, house)

	if _, err := accountService.GetHouseAccount(context.Background()); err != nil {
		log.Fatalf("初始化手续费账户失败: %v", err)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(store.Outbox(), publisher, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(handler.NewHandler(accountService, ledgerService, cfg))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d, 存储: %s", cfg.Server.Port, cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}

func newStore(cfg *config.Config) (repository.Store, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Println("[Storage] 使用内存存储，重启后数据丢失")
		return memory.NewStore(), nil
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db), nil
}
