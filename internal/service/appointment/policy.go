package appointment

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
)

// Action is something a caller may attempt on an existing appointment.
type Action string

const (
	ActionView           Action = "view"
	ActionConfirm        Action = "confirm"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
	ActionReschedule     Action = "reschedule"
	ActionSetMeetingLink Action = "set_meeting_link"
	ActionDelete         Action = "delete"
)

// relation is how a caller stands to one appointment.
type relation uint8

const (
	relProviderOwner relation = 1 << iota
	relPatientOwner
	relNurse
	relAdmin
)

// capabilities is the whole access policy for existing appointments.
var capabilities = map[Action]relation{
	ActionView:           relProviderOwner | relPatientOwner | relNurse | relAdmin,
	ActionConfirm:        relProviderOwner | relNurse | relAdmin,
	ActionComplete:       relProviderOwner | relNurse | relAdmin,
	ActionCancel:         relProviderOwner | relPatientOwner | relNurse | relAdmin,
	ActionReschedule:     relProviderOwner | relPatientOwner,
	ActionSetMeetingLink: relProviderOwner,
	ActionDelete:         relAdmin,
}

func relationsOf(actor model.Actor, apt *model.Appointment) relation {
	var r relation
	switch actor.Role {
	case model.RoleDoctor:
		if apt.IsProvider(actor.ID) {
			r |= relProviderOwner
		}
	case model.RolePatient:
		if apt.IsPatient(actor.ID) {
			r |= relPatientOwner
		}
	case model.RoleNurse:
		r |= relNurse
	case model.RoleAdmin:
		r |= relAdmin
	}
	return r
}

// Can reports whether actor may perform action on apt.
func Can(actor model.Actor, apt *model.Appointment, action Action) bool {
	return relationsOf(actor, apt)&capabilities[action] != 0
}

// transitionActions maps the statuses settable through a direct status
// change to the action that authorizes them. RESCHEDULED is reached only by
// rescheduling and PENDING only by creation.
var transitionActions = map[model.AppointmentStatus]Action{
	model.AppointmentStatusConfirmed: ActionConfirm,
	model.AppointmentStatusCompleted: ActionComplete,
	model.AppointmentStatusCancelled: ActionCancel,
}

func actionForStatus(target model.AppointmentStatus) (Action, bool) {
	a, ok := transitionActions[target]
	return a, ok
}

// transitions is the lifecycle graph of direct status changes.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:     {model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled},
	model.AppointmentStatusConfirmed:   {model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
	model.AppointmentStatusRescheduled: {model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// canReschedule lists the statuses the reschedule path may leave.
func canReschedule(from model.AppointmentStatus) bool {
	return !from.IsTerminal()
}

// canBookFor: patients book for themselves, staff and admins for anyone.
func canBookFor(actor model.Actor, patientID uuid.UUID) bool {
	if actor.Role == model.RolePatient {
		return actor.ID == patientID
	}
	return actor.Role.IsStaff()
}

// canListFor: a user's own appointments, or any user's for staff.
func canListFor(actor model.Actor, userID uuid.UUID) bool {
	return actor.ID == userID || actor.Role.IsStaff()
}

func canListAll(actor model.Actor) bool {
	return actor.Role == model.RoleAdmin || actor.Role == model.RoleNurse
}
