package appointment

import (
	"strings"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/pkg/errors"
)

// checkMeetingLink gates setting a meeting link. The checks run in a fixed
// order so each failure maps to exactly one error code.
func checkMeetingLink(actor model.Actor, apt *model.Appointment, link string) error {
	if !Can(actor, apt, ActionSetMeetingLink) {
		return errors.NewForbidden("only the appointment's provider can set the meeting link")
	}
	if !apt.IsVirtual {
		return errors.New(errors.CodeNotTelehealth, "appointment is not a telehealth appointment", nil)
	}
	if apt.Status != model.AppointmentStatusConfirmed {
		return errors.New(errors.CodeNotConfirmed, "meeting links can only be set on confirmed appointments", nil)
	}
	if !validMeetingLink(link) {
		return errors.New(errors.CodeInvalidLink, "meeting link must start with http:// or https://", nil)
	}
	return nil
}

func validMeetingLink(link string) bool {
	return strings.HasPrefix(link, "https://") || strings.HasPrefix(link, "http://")
}
