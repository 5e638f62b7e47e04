package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	logging.Setup(serviceName, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("config_invalid")
	}
	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

// run owns every deferred cleanup, so failures are returned instead of exiting.
func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithQueue(),
		bootstrap.WithBreakerObserver(workerMetrics.Breakers().OnStateChange),
	)
	if err != nil {
		log.Error().Err(err).Msg("bootstrap_failed")
		return err
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("worker_metrics_server_failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("subject", cfg.NATSSubject).Msg("worker_subscribed")
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		return processDocument(handlerCtx, app, workerMetrics, documentID)
	})
	if err != nil {
		log.Error().Err(err).Msg("worker_subscribe_failed")
		return err
	}
	return nil
}

func processDocument(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, documentID string) error {
	logger := log.Ctx(ctx).With().Str("document_id", documentID).Logger()
	ctx = logger.WithContext(ctx)

	if doc, err := app.Repo.GetByID(ctx, documentID); err == nil {
		m.ObserveQueueLag(serviceName, time.Since(doc.CreatedAt))
	}

	m.StartDocument()
	start := time.Now()
	err := app.ProcessUC.ProcessByID(ctx, documentID)
	m.FinishDocument(serviceName, time.Since(start), err)
	if err != nil {
		return err
	}

	if doc, err := app.Repo.GetByID(ctx, documentID); err == nil {
		m.ObserveChunks(serviceName, doc.ChunksCreated)
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("document_processed")
	return nil
}
