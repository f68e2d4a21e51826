package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/carebook-api/internal/repository"
	"github.com/jwalitptl/carebook-api/pkg/logger"
)

// RetentionWorker periodically deletes published outbox events and, when
// auditRetention is set, audit logs older than the retention window.
type RetentionWorker struct {
	outbox          repository.OutboxRepository
	audit           repository.AuditRepository
	outboxRetention time.Duration
	auditRetention  time.Duration
	cleanupInterval time.Duration
	logger          *logger.Logger
}

func NewRetentionWorker(
	outbox repository.OutboxRepository,
	audit repository.AuditRepository,
	outboxRetention, auditRetention, cleanupInterval time.Duration,
	logger *logger.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		outbox:          outbox,
		audit:           audit,
		outboxRetention: outboxRetention,
		auditRetention:  auditRetention,
		cleanupInterval: cleanupInterval,
		logger:          logger,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx, time.Now()); err != nil {
				w.logger.Error(err, "Retention cleanup failed")
			}
		}
	}
}

func (w *RetentionWorker) Cleanup(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-w.outboxRetention)
	rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup outbox events: %w", err)
	}
	w.logger.Info("Cleaned up outbox events", "count", rows, "before", cutoff)

	if w.audit == nil || w.auditRetention <= 0 {
		return nil
	}

	cutoff = now.Add(-w.auditRetention)
	rows, err = w.audit.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	w.logger.Info("Cleaned up audit logs", "count", rows, "before", cutoff)
	return nil
}
