package appointment

import (
	"context"
	"fmt"

	"github.com/jwalitptl/carebook-api/internal/model"
)

// participants are the two people an appointment notification can go to.
type participants struct {
	patient  *model.User
	provider *model.User
}

func (s *Service) loadParticipants(ctx context.Context, apt *model.Appointment) (participants, error) {
	patient, err := s.users.Get(ctx, apt.PatientID)
	if err != nil {
		return participants{}, fmt.Errorf("patient lookup: %w", err)
	}
	provider, err := s.users.Get(ctx, apt.ProviderID)
	if err != nil {
		return participants{}, fmt.Errorf("provider lookup: %w", err)
	}
	return participants{patient: patient, provider: provider}, nil
}

func kind(apt *model.Appointment) string {
	if apt.IsVirtual {
		return "telehealth appointment"
	}
	return "appointment"
}

func when(apt *model.Appointment) string {
	return fmt.Sprintf("%s at %s", apt.Date.Long(), apt.StartTime)
}

func to(user *model.User, apt *model.Appointment, event model.NotificationEventType, title, message string) *model.Notification {
	return &model.Notification{
		UserID:        user.ID,
		AppointmentID: apt.ID,
		Event:         event,
		Title:         title,
		Message:       message,
		Channel:       model.ChannelInApp,
		Recipient:     user.Email,
	}
}

func composeCreated(p participants, apt *model.Appointment) *model.Notification {
	return to(p.provider, apt, model.NotificationAppointmentCreated, "New Appointment Request",
		fmt.Sprintf("%s has requested a %s on %s.", p.patient.FullName(), kind(apt), when(apt)))
}

// composeStatusChange addresses the counterpart of whoever made the change:
// changes by the patient go to the provider, everything else to the patient.
func composeStatusChange(actor model.Actor, p participants, apt *model.Appointment) *model.Notification {
	byPatient := actor.Role == model.RolePatient

	switch apt.Status {
	case model.AppointmentStatusConfirmed:
		if byPatient {
			return to(p.provider, apt, model.NotificationAppointmentConfirmed, "Appointment Confirmed",
				fmt.Sprintf("Your %s with %s on %s has been confirmed.", kind(apt), p.patient.FullName(), when(apt)))
		}
		return to(p.patient, apt, model.NotificationAppointmentConfirmed, "Appointment Confirmed",
			fmt.Sprintf("Your %s with %s on %s has been confirmed.", kind(apt), p.provider.DisplayName(), when(apt)))

	case model.AppointmentStatusCancelled:
		if byPatient {
			return to(p.provider, apt, model.NotificationAppointmentCancelled, "Appointment Cancelled",
				fmt.Sprintf("Your %s with %s on %s has been cancelled by the patient.", kind(apt), p.patient.FullName(), when(apt)))
		}
		by := "the clinic"
		if actor.Role == model.RoleDoctor {
			by = "the doctor"
		}
		return to(p.patient, apt, model.NotificationAppointmentCancelled, "Appointment Cancelled",
			fmt.Sprintf("Your %s with %s on %s has been cancelled by %s.", kind(apt), p.provider.DisplayName(), when(apt), by))

	case model.AppointmentStatusCompleted:
		return to(p.patient, apt, model.NotificationAppointmentCompleted, "Appointment Completed",
			fmt.Sprintf("Your %s with %s on %s has been marked as completed.", kind(apt), p.provider.DisplayName(), apt.Date.Long()))
	}
	return nil
}

func composeRescheduled(actor model.Actor, p participants, apt *model.Appointment) *model.Notification {
	if actor.Role == model.RolePatient {
		return to(p.provider, apt, model.NotificationAppointmentRescheduled, "Appointment Rescheduled",
			fmt.Sprintf("Your %s with %s has been rescheduled to %s.", kind(apt), p.patient.FullName(), when(apt)))
	}
	return to(p.patient, apt, model.NotificationAppointmentRescheduled, "Appointment Rescheduled",
		fmt.Sprintf("Your %s with %s has been rescheduled to %s.", kind(apt), p.provider.DisplayName(), when(apt)))
}

func composeMeetingLink(p participants, apt *model.Appointment) *model.Notification {
	return to(p.patient, apt, model.NotificationMeetingLinkUpdated, "Telehealth Link Available",
		fmt.Sprintf("The meeting link for your telehealth appointment with %s on %s is now available.", p.provider.DisplayName(), when(apt)))
}

// notify delivers a composed notification after the write committed.
// Failures are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, apt *model.Appointment, compose func(participants) *model.Notification) {
	p, err := s.loadParticipants(ctx, apt)
	if err != nil {
		s.notifyFailed(err, apt)
		return
	}
	n := compose(p)
	if n == nil {
		return
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.notifyFailed(err, apt)
	}
}

func (s *Service) notifyFailed(err error, apt *model.Appointment) {
	s.metrics.NotificationFailures.WithLabelValues(string(model.ChannelInApp)).Inc()
	s.logger.Error(err, "Failed to send notification", "appointment_id", apt.ID.String())
}
