package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/bootstrap"
	"github.com/Domenick1991/flightbooking/internal/cache"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/Domenick1991/flightbooking/internal/replica"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := bootstrap.OpenStorage(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("open storage", zap.Error(err))
	}
	defer storage.Close()

	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache = cache.NewRedisCache(cfg.Redis, cfg.Booking.CacheTTL())
		defer redisCache.Close()
	}

	app := bootstrap.NewApp(cfg, storage, redisCache, zl)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, zl)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		zl.Warn("kafka not reachable yet, events stay pending", zap.Error(err))
	}

	var (
		projector *replica.Projector
		consumer  *kafka.Consumer
	)
	if redisCache != nil {
		projector = replica.NewProjector(redisCache, zl)
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.TopicPrefix, replica.Topics...)
		defer consumer.Close()
	}

	if err := bootstrap.RunWorkers(ctx, cfg.Worker, app, app.NewDispatcher(cfg.Worker, producer), projector, consumer); err != nil {
		zl.Fatal("worker stopped", zap.Error(err))
	}
	zl.Info("worker stopped")
}
