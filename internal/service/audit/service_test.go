package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository/memory"
)

func TestService_Log(t *testing.T) {
	svc := NewService(memory.NewAuditRepository())
	actor, entity := uuid.New(), uuid.New()

	ctx := WithRequestInfo(context.Background(), "10.0.0.7", "curl/8.0")
	err := svc.Log(ctx, actor, model.AuditActionStatus, model.AuditEntityAppointment, entity, &LogOptions{
		Changes: map[string]string{"from": "PENDING", "to": "CONFIRMED"},
	})
	require.NoError(t, err)

	logs, err := svc.History(context.Background(), model.AuditEntityAppointment, entity)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, actor, logs[0].UserID)
	assert.Equal(t, "10.0.0.7", logs[0].IPAddress)
	assert.Equal(t, "curl/8.0", logs[0].UserAgent)
	assert.JSONEq(t, `{"from":"PENDING","to":"CONFIRMED"}`, string(logs[0].Changes))
}

func TestService_LogWithoutOptions(t *testing.T) {
	svc := NewService(memory.NewAuditRepository())
	entity := uuid.New()

	require.NoError(t, svc.Log(context.Background(), uuid.New(), model.AuditActionDelete, model.AuditEntityAppointment, entity, nil))

	logs, err := svc.History(context.Background(), model.AuditEntityAppointment, entity)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].Changes)
}
