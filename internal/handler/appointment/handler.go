package appointment

import (
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/middleware"
	"github.com/jwalitptl/carebook-api/internal/model"
	appointmentService "github.com/jwalitptl/carebook-api/internal/service/appointment"
	"github.com/jwalitptl/carebook-api/pkg/errors"
	"github.com/jwalitptl/carebook-api/pkg/httputil"
	"github.com/jwalitptl/carebook-api/pkg/validator"
)

const attachmentsField = "attachments"

type Handler struct {
	service *appointmentService.Service
	audit   *middleware.AuditMiddleware
}

// NewHandler builds the appointment handler. audit may be nil, in which
// case reads are not audited.
func NewHandler(service *appointmentService.Service, audit *middleware.AuditMiddleware) *Handler {
	return &Handler{service: service, audit: audit}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/available-slots", h.GetAvailableSlots)
		appointments.GET("/user/:userId", h.ListUserAppointments)
		appointments.PATCH("/status/:id", h.UpdateStatus)
		appointments.PATCH("/meeting-link/:id", h.SetMeetingLink)

		get := []gin.HandlerFunc{h.GetAppointment}
		if h.audit != nil {
			get = append([]gin.HandlerFunc{h.audit.AuditRead(model.AuditEntityAppointment)}, get...)
		}
		appointments.GET("/:id", get...)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBind(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(validator.Describe(err), err))
		return
	}

	uploads, closeAll, err := uploadsFrom(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer closeAll()

	appointment, err := h.service.Create(c.Request.Context(), actor, &req, uploads)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, appointment)
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	if _, ok := actorOrAbort(c); !ok {
		return
	}

	providerID, err := uuid.Parse(c.Query("provider"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("provider must be a valid UUID", err))
		return
	}
	date, err := model.ParseDate(c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("date must be a date in YYYY-MM-DD format", err))
		return
	}

	slots, err := h.service.GetSlots(c.Request.Context(), providerID, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) ListUserAppointments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid user ID", err))
		return
	}

	appointments, err := h.service.ListForUser(c.Request.Context(), actor, userID, listQuery(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	appointments, err := h.service.ListAll(c.Request.Context(), actor, listQuery(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	appointment, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(validator.Describe(err), err))
		return
	}

	appointment, err := h.service.UpdateStatus(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) SetMeetingLink(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req model.MeetingLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(validator.Describe(err), err))
		return
	}

	appointment, err := h.service.SetMeetingLink(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBind(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest(validator.Describe(err), err))
		return
	}

	uploads, closeAll, err := uploadsFrom(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer closeAll()

	appointment, err := h.service.Update(c.Request.Context(), actor, id, &req, uploads)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, "appointment deleted")
}

func actorOrAbort(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
	}
	return actor, ok
}

func actorAndID(c *gin.Context) (model.Actor, uuid.UUID, bool) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return model.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid appointment ID", err))
		return model.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func listQuery(c *gin.Context) appointmentService.ListQuery {
	return appointmentService.ListQuery{
		Status:     c.Query("status"),
		ProviderID: c.Query("provider"),
		PatientID:  c.Query("patient"),
		Department: c.Query("department"),
		StartDate:  c.Query("start_date"),
		EndDate:    c.Query("end_date"),
	}
}

// uploadsFrom opens the attachment files of a multipart request. The
// returned func closes them and must be called once the service is done.
func uploadsFrom(c *gin.Context) ([]appointmentService.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return nil, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, errors.NewBadRequest("invalid multipart form", err)
	}

	var (
		uploads []appointmentService.Upload
		files   []multipart.File
	)
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	for _, fh := range form.File[attachmentsField] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, noop, errors.NewBadRequest("failed to read attachment "+fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, appointmentService.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
