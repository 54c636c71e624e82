package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"retailbank/internal/config"
	"retailbank/internal/handler"
	"retailbank/internal/infrastructure/cache"
	"retailbank/internal/infrastructure/database"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/infrastructure/mail"
	"retailbank/internal/infrastructure/mq"
	"retailbank/internal/job"
	"retailbank/pkg/idgen"
	"retailbank/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if lvl := os.Getenv("BANK_LOG_LEVEL"); lvl != "" {
		logger.SetLevel(logger.ParseLevel(lvl))
	}

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	logger.Infof("数据库连接成功: driver=%s", cfg.Database.Driver)

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	defer redisClient.Close()
	logger.Infof("Redis 连接成功")

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatalf("初始化 Kafka 失败: %v", err)
	}
	defer publisher.Close()
	logger.Infof("Kafka 生产者创建成功")

	locker := lock.NewRedisLocker(redisClient,
		time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
		time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
		cfg.Business.LockMaxRetries,
	)
	notifier := mail.NewNotifier(&cfg.SMTP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	var jobs sync.WaitGroup
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	pairAuditJob := job.NewPendingPairAuditJob(db, cfg)
	jobs.Add(2)
	go func() {
		defer jobs.Done()
		outboxSender.Start(ctx)
	}()
	go func() {
		defer jobs.Done()
		pairAuditJob.Start(ctx)
	}()

	router := handler.SetupRouter(db, locker, notifier, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("服务关闭异常: %v", err)
	}

	// 先让后台任务跑完手上的批次，再关闭 Kafka 生产者
	outboxSender.Stop()
	pairAuditJob.Stop()
	jobs.Wait()
	cancel()

	logger.Infof("服务已关闭")
}
