// Command enricher starts the enrichment stage service.
//
// It consumes lead.enrichment, augments leads with best-effort geolocation
// and company lookups (memoized in a TTL cache, optionally shared via
// Redis), computes the score, and forwards to lead.storage.
//
// Usage:
//
//	go run ./cmd/enricher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leadforge/lead-processing-pipeline/internal/pipeline"
	"github.com/leadforge/lead-processing-pipeline/internal/stage/enrich"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	"github.com/leadforge/lead-processing-pipeline/pkg/health"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
	"github.com/leadforge/lead-processing-pipeline/pkg/rabbit"
	"github.com/leadforge/lead-processing-pipeline/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting enricher service", "queue", pipeline.QueueEnrichment)

	m := metrics.New()
	checker := health.NewChecker()
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, checker)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := buildCache(ctx, cfg, checker)

	client, err := rabbit.Connect(ctx, cfg.Rabbit, pipeline.AllQueues()...)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	client.OnReconnect(m.BrokerReconnects.Inc)
	checker.Register("rabbitmq", func(context.Context) health.ComponentHealth {
		if client.IsReady() {
			return health.Up()
		}
		return health.Down("connection lost")
	})

	stage, err := enrich.New(enrich.NewGeoClient(cfg.Enrich), cache, m)
	if err != nil {
		slog.Error("failed to create enrichment stage", "error", err)
		os.Exit(1)
	}
	consumer := pipeline.NewConsumer(client, stage.Route(), stage.Handle, cfg.Pipeline, m)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
	slog.Info("enricher service stopped")
}

// buildCache returns the Redis-backed cache when configured and reachable,
// falling back to the bounded in-process cache otherwise.
func buildCache(ctx context.Context, cfg *config.Config, checker *health.Checker) enrich.Cache {
	if cfg.Enrich.UseRedis {
		rdb, err := redis.NewClient(cfg.Redis)
		if err == nil {
			slog.Info("using redis enrichment cache", "addr", cfg.Redis.Addr)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := rdb.Ping(ctx); err != nil {
					return health.Down(err.Error())
				}
				return health.Up()
			})
			return enrich.NewRedisCache(rdb, cfg.Enrich.CacheTTL)
		}
		slog.Warn("redis unavailable, falling back to in-process cache", "error", err)
	}
	cache := enrich.NewMemoryCache(cfg.Enrich.CacheTTL, cfg.Enrich.CacheMaxEntries)
	cache.StartSweep(ctx, cfg.Enrich.CacheSweepInterval)
	return cache
}
