// Command storer starts the terminal storage stage service.
//
// It consumes lead.storage and upserts each lead into PostgreSQL keyed by
// email. Transient database failures are retried rather than dropping the
// lead.
//
// Usage:
//
//	go run ./cmd/storer [-config configs/development.yaml]
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
	"github.com/leadforge/lead-processing-pipeline/internal/stage/store"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	"github.com/leadforge/lead-processing-pipeline/pkg/health"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
	"github.com/leadforge/lead-processing-pipeline/pkg/postgres"
	"github.com/leadforge/lead-processing-pipeline/pkg/rabbit"
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
	slog.Info("starting storer service", "queue", pipeline.QueueStorage)

	m := metrics.New()
	checker := health.NewChecker()
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, checker)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.Down(err.Error())
		}
		return health.Up()
	})

	repo := store.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres", "database", cfg.Postgres.Database)

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

	stage, err := store.New(repo, m)
	if err != nil {
		slog.Error("failed to create storage stage", "error", err)
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
	slog.Info("storer service stopped")
}
