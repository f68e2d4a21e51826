package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

type Service interface {
	Send(ctx context.Context, notification *model.Notification) error
}

// service records notifications in the outbox. The outbox processor
// publishes them and the Dispatcher delivers them.
type service struct {
	outbox repository.OutboxRepository
	now    func() time.Time
}

func NewService(outbox repository.OutboxRepository) Service {
	return &service{outbox: outbox, now: time.Now}
}

func (s *service) Send(ctx context.Context, notification *model.Notification) error {
	if err := validateNotification(notification); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	notification.ID = uuid.New()
	notification.CreatedAt = s.now()
	if notification.Channel == "" {
		notification.Channel = model.ChannelInApp
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: string(notification.Event),
		Payload:   payload,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

func validateNotification(notification *model.Notification) error {
	if notification == nil {
		return fmt.Errorf("notification is nil")
	}
	if notification.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if notification.Event == "" {
		return fmt.Errorf("event is required")
	}
	if notification.Title == "" || notification.Message == "" {
		return fmt.Errorf("title and message are required")
	}
	return nil
}
