package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/pkg/errors"
)

func TestCheckMeetingLink_Order(t *testing.T) {
	base := model.Appointment{
		ID:         uuid.New(),
		PatientID:  uuid.New(),
		ProviderID: uuid.New(),
		Status:     model.AppointmentStatusConfirmed,
		IsVirtual:  true,
	}
	provider := model.Actor{ID: base.ProviderID, Role: model.RoleDoctor}

	inPerson := base
	inPerson.IsVirtual = false
	inPerson.Status = model.AppointmentStatusPending

	pending := base
	pending.Status = model.AppointmentStatusPending

	tests := []struct {
		name  string
		actor model.Actor
		apt   model.Appointment
		link  string
		code  errors.ErrorCode
	}{
		{"patient is forbidden even with a bad link", model.Actor{ID: base.PatientID, Role: model.RolePatient}, inPerson, "", errors.CodeForbidden},
		{"admin is forbidden", model.Actor{ID: uuid.New(), Role: model.RoleAdmin}, base, "https://meet.example.com/a", errors.CodeForbidden},
		{"in person before status", provider, inPerson, "", errors.CodeNotTelehealth},
		{"pending before link", provider, pending, "ftp://x", errors.CodeNotConfirmed},
		{"empty link", provider, base, "", errors.CodeInvalidLink},
		{"upper case scheme", provider, base, "HTTPS://meet.example.com/a", errors.CodeInvalidLink},
		{"wrong scheme", provider, base, "meet.example.com/a", errors.CodeInvalidLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apt := tt.apt
			err := checkMeetingLink(tt.actor, &apt, tt.link)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	apt := base
	assert.NoError(t, checkMeetingLink(provider, &apt, "https://meet.example.com/a"))
	assert.NoError(t, checkMeetingLink(provider, &apt, "http://meet.local/a"))
	assert.NoError(t, checkMeetingLink(provider, &apt, "https://"), "only the prefix is checked")
	assert.NoError(t, checkMeetingLink(provider, &apt, "http://"))
}
