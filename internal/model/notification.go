package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
)

type NotificationEventType string

const (
	NotificationAppointmentCreated     NotificationEventType = "appointment.created"
	NotificationAppointmentConfirmed   NotificationEventType = "appointment.confirmed"
	NotificationAppointmentCancelled   NotificationEventType = "appointment.cancelled"
	NotificationAppointmentRescheduled NotificationEventType = "appointment.rescheduled"
	NotificationAppointmentCompleted   NotificationEventType = "appointment.completed"
	NotificationMeetingLinkUpdated     NotificationEventType = "appointment.meeting_link"
)

// Notification is a composed message for one recipient.
type Notification struct {
	ID            uuid.UUID             `json:"id"`
	UserID        uuid.UUID             `json:"user_id"`
	AppointmentID uuid.UUID             `json:"appointment_id"`
	Event         NotificationEventType `json:"event"`
	Title         string                `json:"title"`
	Message       string                `json:"message"`
	Channel       NotificationChannel   `json:"channel"`
	Recipient     string                `json:"recipient,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}
