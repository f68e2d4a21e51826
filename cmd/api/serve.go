package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carebook-api/internal/bootstrap"
	"github.com/jwalitptl/carebook-api/internal/config"
	appointmentHandler "github.com/jwalitptl/carebook-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/carebook-api/internal/handler/audit"
	"github.com/jwalitptl/carebook-api/internal/handler/health"
	"github.com/jwalitptl/carebook-api/internal/middleware"
	"github.com/jwalitptl/carebook-api/internal/repository"
	"github.com/jwalitptl/carebook-api/internal/repository/memory"
	"github.com/jwalitptl/carebook-api/internal/repository/postgres"
	"github.com/jwalitptl/carebook-api/internal/router"
	appointmentService "github.com/jwalitptl/carebook-api/internal/service/appointment"
	"github.com/jwalitptl/carebook-api/internal/service/audit"
	"github.com/jwalitptl/carebook-api/internal/service/notification"
	"github.com/jwalitptl/carebook-api/internal/service/user"
	"github.com/jwalitptl/carebook-api/pkg/auth"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
	"github.com/jwalitptl/carebook-api/pkg/validator"
	"github.com/jwalitptl/carebook-api/pkg/worker"
)

type repositories struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	outbox       repository.OutboxRepository
	audit        repository.AuditRepository
}

func runServer(cfg *config.Config, usersFile string) error {
	log := bootstrap.Logger(cfg.Log)

	if err := validator.RegisterWithGin(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db    *sqlx.DB
		repos repositories
	)
	switch cfg.Database.Driver {
	case "postgres":
		var err error
		db, err = postgres.NewDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		base := postgres.NewBaseRepository(db, cfg.Database.SerializationRetries)
		repos = repositories{
			appointments: postgres.NewAppointmentRepository(base),
			users:        postgres.NewUserRepository(base),
			outbox:       postgres.NewOutboxRepository(base),
			audit:        postgres.NewAuditRepository(base),
		}
	case "memory":
		users, err := loadUsers(usersFile)
		if err != nil {
			return err
		}
		repos = repositories{
			appointments: memory.NewAppointmentRepository(),
			users:        memory.NewUserRepository(users...),
			outbox:       memory.NewOutboxRepository(),
			audit:        memory.NewAuditRepository(),
		}
		log.Warn("Using in-memory storage; data is lost on restart", "users", len(users))
	}

	broker, err := bootstrap.Broker(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to message broker: %w", err)
	}
	if broker == nil && db == nil {
		// nothing else can drain an in-memory outbox
		broker = messaging.NewInProcessBroker()
	}
	if broker != nil {
		defer broker.Close()
	}

	blobs, err := bootstrap.BlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open attachment storage: %w", err)
	}

	slots, err := appointmentService.SlotConfigFrom(cfg.Scheduling)
	if err != nil {
		return err
	}

	auditSvc := audit.NewService(repos.audit)
	appointmentSvc := appointmentService.NewService(
		repos.appointments,
		user.NewService(repos.users, cfg.Cache.UserTTL),
		notification.NewService(repos.outbox),
		auditSvc,
		blobs,
		appointmentService.Config{
			Slots:              slots,
			MaxAttachments:     cfg.Scheduling.MaxAttachments,
			MaxAttachmentBytes: cfg.Scheduling.MaxAttachmentBytes,
		},
		m,
		log,
	)

	if db == nil && broker != nil {
		if err := startInProcessDelivery(ctx, cfg, repos, broker, log, m); err != nil {
			return err
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		})
		go sweep(ctx, limiter)
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if cfg.Server.MaxBodyBytes > 0 {
		sizeLimit.MaxUploadSize = cfg.Server.MaxBodyBytes
	}

	tokens := auth.NewJWTService(auth.JWTConfig{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer})
	r := router.NewRouter(
		middleware.NewAuthMiddleware(tokens),
		health.NewHandler(db, broker),
		m,
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RequestTimeout: cfg.Server.RequestTimeout,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			SizeLimit:      sizeLimit,
			Security:       middleware.DefaultSecurityConfig(),
			RateLimiter:    limiter,
			Gatherer:       reg,
		},
		appointmentHandler.NewHandler(appointmentSvc, middleware.NewAuditMiddleware(auditSvc)),
		auditHandler.NewHandler(auditSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Server.Port, "database", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := withTimeout(cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// startInProcessDelivery runs the outbox processor and the notification
// dispatcher inside the API process for the memory driver.
func startInProcessDelivery(ctx context.Context, cfg *config.Config, repos repositories, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics) error {
	processor, err := worker.NewOutboxProcessor(repos.outbox, broker, bootstrap.OutboxConfig(cfg), log, m)
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(broker, cfg.Messaging.Topic, bootstrap.Mailer(cfg.SMTP), log, m)

	go processor.Start(ctx)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			log.Error(err, "Notification dispatcher stopped")
		}
	}()
	return nil
}

func sweep(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
