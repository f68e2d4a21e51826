package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/service/audit"
)

type AuditMiddleware struct {
	auditSvc *audit.Service
}

func NewAuditMiddleware(auditSvc *audit.Service) *AuditMiddleware {
	return &AuditMiddleware{auditSvc: auditSvc}
}

// AuditRead records successful reads of a single entity. Writes are
// audited by the services themselves.
func (m *AuditMiddleware) AuditRead(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != http.StatusOK {
			return
		}
		actor, ok := ActorFrom(c)
		if !ok {
			return
		}
		entityID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return
		}

		if err := m.auditSvc.Log(c.Request.Context(), actor.ID, model.AuditActionRead, entityType, entityID, &audit.LogOptions{
			Changes: map[string]interface{}{"path": c.FullPath()},
		}); err != nil {
			log.Error().Err(err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("entity_id", entityID.String()).
				Msg("Failed to write access audit log")
		}
	}
}
