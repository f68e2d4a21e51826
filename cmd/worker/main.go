package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook-api/internal/bootstrap"
	"github.com/jwalitptl/carebook-api/internal/config"
	"github.com/jwalitptl/carebook-api/internal/repository/postgres"
	"github.com/jwalitptl/carebook-api/internal/service/notification"
	retention "github.com/jwalitptl/carebook-api/internal/worker"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
	"github.com/jwalitptl/carebook-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := bootstrap.Logger(cfg.Log).WithFields(map[string]interface{}{"component": "worker"})
	if err := run(cfg, logger); err != nil {
		logger.Error(err, "Worker stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logger.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("the worker needs database.driver postgres, got %q", cfg.Database.Driver)
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	broker, err := bootstrap.Broker(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to message broker: %w", err)
	}
	if broker == nil {
		return fmt.Errorf("the worker needs a message broker, messaging.broker is %q", cfg.Messaging.Broker)
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace)

	base := postgres.NewBaseRepository(db, cfg.Database.SerializationRetries)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, bootstrap.OutboxConfig(cfg), logger, m)
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(broker, cfg.Messaging.Topic, bootstrap.Mailer(cfg.SMTP), logger, m)
	cleaner := retention.NewRetentionWorker(
		outboxRepo,
		auditRepo,
		cfg.Outbox.Retention,
		cfg.Outbox.AuditRetention,
		cfg.Outbox.CleanupInterval,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := healthServer(cfg.Outbox.HealthPort, reg, broker)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error(err, "Notification dispatcher stopped")
		}
	}()
	go func() {
		defer wg.Done()
		cleaner.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}

func healthServer(port int, reg prometheus.Gatherer, broker messaging.Broker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := broker.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
