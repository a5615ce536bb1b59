package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haithamq/visaflow/internal/bootstrap"
	"github.com/haithamq/visaflow/internal/config"
	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker", logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.PipelineMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRunCommands(ctx, func(handlerCtx context.Context, cmd domain.RunCommand) error {
		if !cmd.EnqueuedAt.IsZero() {
			app.PipelineMetrics.ObserveQueueLag("worker", time.Since(cmd.EnqueuedAt))
		}

		runCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		switch cmd.Action {
		case domain.ActionResume:
			_, err := app.Machine.Resume(runCtx, cmd.RequestID)
			return err
		default:
			_, err := app.Machine.Run(runCtx, cmd)
			return err
		}
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
