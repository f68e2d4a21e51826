package audit

import (
	"encoding/csv"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/middleware"
	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/service/audit"
	"github.com/jwalitptl/carebook-api/pkg/errors"
	"github.com/jwalitptl/carebook-api/pkg/httputil"
)

// Handler exposes the audit trail of an entity to administrators.
type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs/entity/:type/:id", h.GetEntityLogs)
	}
}

// GetEntityLogs returns the entries for one entity, oldest first. With
// ?format=csv the trail is downloaded as a CSV file.
func (h *Handler) GetEntityLogs(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return
	}
	if actor.Role != model.RoleAdmin {
		httputil.RespondWithError(c, errors.NewForbidden("only admins can read the audit trail"))
		return
	}

	format := c.DefaultQuery("format", "json")
	if format != "csv" && format != "json" {
		httputil.RespondWithError(c, errors.NewBadRequest("unsupported format", nil))
		return
	}

	entityType := c.Param("type")
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid entity_id", err))
		return
	}

	logs, err := h.service.History(c.Request.Context(), entityType, entityID)
	if err != nil {
		httputil.RespondWithError(c, errors.NewInternal(err))
		return
	}

	if format == "json" {
		httputil.RespondWithSuccess(c, logs)
		return
	}

	filename := fmt.Sprintf("audit_%s_%s.csv", entityType, entityID)
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "User ID", "Action", "Entity Type", "Entity ID", "Changes", "IP Address", "Created At"})
	for _, log := range logs {
		_ = writer.Write([]string{
			log.ID.String(),
			log.UserID.String(),
			log.Action,
			log.EntityType,
			log.EntityID.String(),
			string(log.Changes),
			log.IPAddress,
			log.CreatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}
