// Command salinity-etl runs the global river-segment salinity classification
// pipeline once, then keeps serving its operational endpoints until
// terminated so orchestration can scrape final metrics and read /status.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/estuarymap/salinity-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/estuarymap/salinity-etl/internal/adapter/kafka"
	"github.com/estuarymap/salinity-etl/internal/config"
	"github.com/estuarymap/salinity-etl/internal/observability"
	"github.com/estuarymap/salinity-etl/internal/pipeline"
	"github.com/estuarymap/salinity-etl/internal/source"
	"github.com/estuarymap/salinity-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	db, err := store.Open(filepath.Join(cfg.OutputDir, "salinity.db"))
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	loader := source.NewLoader(cfg.DataDir, logger)

	// Kafka sink is feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED.
	var publisher pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(loader, db, publisher, cfg, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var exitCode atomic.Int32
	go func() {
		rep, err := p.Run(ctx)
		if err != nil {
			logger.Error("pipeline error", "error", err)
			srv.SetFailed(err)
			exitCode.Store(1)
			stop()
			return
		}
		srv.SetCompleted(rep)
		if !rep.Valid {
			logger.Warn("run completed but failed validation", "run_id", rep.RunID)
			exitCode.Store(2)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	os.Exit(int(exitCode.Load()))
}
