package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/carebook-api/internal/email"
	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/messaging"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
)

// Dispatcher consumes published notifications and delivers them. In-app
// notifications are handed to the portal through the broker itself; a
// recipient address additionally gets an email when mail is configured.
type Dispatcher struct {
	broker  messaging.Broker
	topic   string
	mailer  email.Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds a dispatcher. mailer may be nil to disable email.
func NewDispatcher(broker messaging.Broker, topic string, mailer email.Service, logger *logger.Logger, metrics *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		broker:  broker,
		topic:   topic,
		mailer:  mailer,
		logger:  logger,
		metrics: metrics,
	}
}

// Run blocks until ctx is done or the subscription ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.broker.Subscribe(ctx, d.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", d.topic, err)
	}

	d.logger.Info("Notification dispatcher started", "topic", d.topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, raw); err != nil {
				d.logger.Error(err, "Failed to deliver notification")
			}
		}
	}
}

func (d *Dispatcher) Handle(ctx context.Context, raw []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}

	var n model.Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return fmt.Errorf("malformed notification payload: %w", err)
	}

	d.logger.Info("Notification delivered",
		"notification_id", n.ID.String(),
		"user_id", n.UserID.String(),
		"appointment_id", n.AppointmentID.String(),
		"event", string(n.Event))

	if d.mailer == nil || n.Recipient == "" {
		return nil
	}
	if err := d.mailer.Send(ctx, n.Recipient, n.Title, n.Message); err != nil {
		d.metrics.NotificationFailures.WithLabelValues(string(model.ChannelEmail)).Inc()
		return err
	}
	return nil
}
