package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Topic         string
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OutboxProcessor relays committed outbox events to the broker. An event
// whose publish fails is retried on later polls with a growing delay and
// marked failed once RetryAttempts polls have failed.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.Topic == "" {
		return nil, fmt.Errorf("outbox processor: topic is required")
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("outbox processor: batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("outbox processor: poll interval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("outbox processor: retry attempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("outbox processor: retry delay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "topic", p.config.Topic)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims one batch of due events and publishes them. It
// returns the number of events published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	body, err := json.Marshal(messaging.Message{Type: event.EventType, Payload: event.Payload})
	if err != nil {
		return p.fail(ctx, event, fmt.Errorf("failed to encode event: %w", err), true)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.RetryDelay), 1), ctx)
	err = backoff.Retry(func() error {
		return p.broker.Publish(ctx, p.config.Topic, body)
	}, policy)
	if err != nil {
		return p.fail(ctx, event, err, false)
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

// fail records a failed attempt. The event stays pending with a retry
// time until its attempts are used up.
func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error, permanent bool) error {
	p.metrics.OutboxEventsFailed.Inc()
	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()

	msg := cause.Error()
	status := model.OutboxStatusFailed
	var retryAt *time.Time
	if !permanent && event.RetryCount+1 < p.config.RetryAttempts {
		status = model.OutboxStatusPending
		next := p.now().Add(p.config.RetryDelay << uint(event.RetryCount))
		retryAt = &next
	}

	if err := p.repo.UpdateStatus(ctx, event.ID, status, &msg, retryAt); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
	return cause
}
