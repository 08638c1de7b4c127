package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/bootstrap"
	"github.com/Domenick1991/flightbooking/internal/cache"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/logger"
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

	var flightCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		flightCache = cache.NewRedisCache(cfg.Redis, cfg.Booking.CacheTTL())
		defer flightCache.Close()
	}

	app := bootstrap.NewApp(cfg, storage, flightCache, zl)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, zl)
	defer producer.Close()
	dispatcher := app.NewDispatcher(cfg.Worker, producer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bootstrap.Run(ctx, cfg, app, dispatcher) })
	if cfg.Worker.Embedded {
		g.Go(func() error { return bootstrap.RunWorkers(ctx, cfg.Worker, app, dispatcher, nil, nil) })
	}

	if err := g.Wait(); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
	zl.Info("shutdown complete")
}
