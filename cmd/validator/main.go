// Command validator starts the validation stage service.
//
// It consumes lead.validation, applies the email/name gate, and forwards
// valid leads to lead.cleaning. Invalid leads are rejected and never travel
// downstream.
//
// Usage:
//
//	go run ./cmd/validator [-config configs/development.yaml]
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
	"github.com/leadforge/lead-processing-pipeline/internal/stage/validate"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	"github.com/leadforge/lead-processing-pipeline/pkg/health"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
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
	slog.Info("starting validator service", "queue", pipeline.QueueValidation)

	m := metrics.New()
	checker := health.NewChecker()
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, checker)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	stage, err := validate.New()
	if err != nil {
		slog.Error("failed to create validation stage", "error", err)
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
	slog.Info("validator service stopped")
}
