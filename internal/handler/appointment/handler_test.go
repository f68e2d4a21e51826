package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook-api/internal/middleware"
	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository/memory"
	appointmentService "github.com/jwalitptl/carebook-api/internal/service/appointment"
	"github.com/jwalitptl/carebook-api/internal/service/audit"
	"github.com/jwalitptl/carebook-api/internal/service/notification"
	"github.com/jwalitptl/carebook-api/internal/service/user"
	"github.com/jwalitptl/carebook-api/pkg/errors"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
	"github.com/jwalitptl/carebook-api/pkg/storage"
	"github.com/jwalitptl/carebook-api/pkg/validator"
)

type envelope struct {
	Status  string           `json:"status"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
}

type testServer struct {
	router  *gin.Engine
	audits  *memory.AuditRepository
	patient *model.User
	doctor  *model.User
	admin   *model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validator.RegisterWithGin())

	s := &testServer{
		audits:  memory.NewAuditRepository(),
		patient: &model.User{ID: uuid.New(), Role: model.RolePatient, FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"},
		doctor:  &model.User{ID: uuid.New(), Role: model.RoleDoctor, FirstName: "Gregory", LastName: "House", Email: "house@example.com", Department: "Cardiology", Telehealth: true},
		admin:   &model.User{ID: uuid.New(), Role: model.RoleAdmin, FirstName: "Ada", LastName: "Min"},
	}

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	auditor := audit.NewService(s.audits)
	svc := appointmentService.NewService(
		memory.NewAppointmentRepository(),
		user.NewService(memory.NewUserRepository(s.patient, s.doctor, s.admin), time.Minute),
		notification.NewService(memory.NewOutboxRepository()),
		auditor,
		blobs,
		appointmentService.DefaultConfig(),
		metrics.Nop(),
		logger.Nop(),
	)

	s.router = gin.New()
	api := s.router.Group("/api/v1")
	// stands in for Authenticate: the caller id travels in a test header
	api.Use(func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-Actor"); raw != "" {
			id := uuid.MustParse(raw)
			for _, u := range []*model.User{s.patient, s.doctor, s.admin} {
				if u.ID == id {
					c.Set(middleware.ContextActor, model.Actor{ID: u.ID, Role: u.Role})
				}
			}
		}
		c.Next()
	})
	NewHandler(svc, middleware.NewAuditMiddleware(auditor)).RegisterRoutes(api)
	return s
}

func (s *testServer) do(t *testing.T, as *model.User, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Test-Actor", as.ID.String())
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) create(t *testing.T, start, end string) model.Appointment {
	t.Helper()
	code, env := s.do(t, s.patient, http.MethodPost, "/api/v1/appointments", gin.H{
		"patient_id":  s.patient.ID.String(),
		"provider_id": s.doctor.ID.String(),
		"date":        "2024-06-01",
		"start_time":  start,
		"end_time":    end,
		"reason":      "Checkup",
		"is_virtual":  true,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var apt model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &apt))
	return apt
}

func TestHandler_RequiresActor(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, nil, http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, errors.CodeUnauthorized, env.Code)
}

func TestHandler_CreateAndConflict(t *testing.T) {
	s := newTestServer(t)

	apt := s.create(t, "10:00", "10:30")
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, model.NewClock(10, 0), apt.StartTime)

	code, env := s.do(t, s.patient, http.MethodPost, "/api/v1/appointments", gin.H{
		"patient_id":  s.patient.ID.String(),
		"provider_id": s.doctor.ID.String(),
		"date":        "2024-06-01",
		"start_time":  "10:15",
		"end_time":    "10:45",
		"reason":      "Second opinion",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeSchedulingConflict, env.Code)
}

func TestHandler_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, s.patient, http.MethodPost, "/api/v1/appointments", gin.H{
		"patient_id":  s.patient.ID.String(),
		"provider_id": s.doctor.ID.String(),
		"date":        "2024-06-01",
		"start_time":  "25:00",
		"end_time":    "10:30",
		"reason":      "Checkup",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Code)
	assert.Contains(t, env.Message, "start_time")
}

func TestHandler_CreateMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"patient_id":  s.patient.ID.String(),
		"provider_id": s.doctor.ID.String(),
		"date":        "2024-06-01",
		"start_time":  "09:00",
		"end_time":    "09:30",
		"reason":      "Rash",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="attachments"; filename="photo.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-Actor", s.patient.ID.String())

	code, env := s.serve(t, req)
	require.Equal(t, http.StatusCreated, code, env.Message)

	var apt model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &apt))
	assert.Len(t, apt.Attachments, 1)
}

func TestHandler_AvailableSlots(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "08:00", "08:30")

	code, env := s.do(t, s.patient, http.MethodGet,
		"/api/v1/appointments/available-slots?provider="+s.doctor.ID.String()+"&date=2024-06-01", nil)
	require.Equal(t, http.StatusOK, code)

	var slots model.AvailableSlots
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	require.NotEmpty(t, slots.Slots)
	assert.Equal(t, model.NewClock(8, 30), slots.Slots[0])

	code, env = s.do(t, s.patient, http.MethodGet, "/api/v1/appointments/available-slots?provider=nope&date=2024-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Code)
}

func TestHandler_StatusTransitions(t *testing.T) {
	s := newTestServer(t)
	apt := s.create(t, "10:00", "10:30")
	path := "/api/v1/appointments/status/" + apt.ID.String()

	code, env := s.do(t, s.patient, http.MethodPatch, path, gin.H{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, errors.CodeForbiddenTransition, env.Code)

	code, env = s.do(t, s.doctor, http.MethodPatch, path, gin.H{"status": "ARCHIVED"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeInvalidStatus, env.Code)

	code, env = s.do(t, s.doctor, http.MethodPatch, path, gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, s.doctor, http.MethodPatch, path, gin.H{"status": "CANCELLED", "version": 1})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errors.CodeConcurrentModification, env.Code)
}

func TestHandler_MeetingLink(t *testing.T) {
	s := newTestServer(t)
	apt := s.create(t, "11:00", "11:30")
	path := "/api/v1/appointments/meeting-link/" + apt.ID.String()

	code, env := s.do(t, s.doctor, http.MethodPatch, path, gin.H{"meeting_link": "https://meet.example.com/abc"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeNotConfirmed, env.Code)

	code, _ = s.do(t, s.doctor, http.MethodPatch, "/api/v1/appointments/status/"+apt.ID.String(), gin.H{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, s.doctor, http.MethodPatch, path, gin.H{"meeting_link": "https://meet.example.com/abc"})
	require.Equal(t, http.StatusOK, code, env.Message)

	var updated model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "https://meet.example.com/abc", updated.MeetingLink)
}

func TestHandler_GetIsAudited(t *testing.T) {
	s := newTestServer(t)
	apt := s.create(t, "12:00", "12:30")

	code, _ := s.do(t, s.doctor, http.MethodGet, "/api/v1/appointments/"+apt.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)

	logs, err := s.audits.ListByEntity(context.Background(), model.AuditEntityAppointment, apt.ID)
	require.NoError(t, err)
	var reads int
	for _, l := range logs {
		if l.Action == model.AuditActionRead {
			reads++
		}
	}
	assert.Equal(t, 1, reads)

	code, env := s.do(t, s.patient, http.MethodGet, "/api/v1/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Code)
}

func TestHandler_ListsAndDelete(t *testing.T) {
	s := newTestServer(t)
	apt := s.create(t, "13:00", "13:30")

	code, env := s.do(t, s.patient, http.MethodGet, "/api/v1/appointments/user/"+s.patient.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	var mine []model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	code, _ = s.do(t, s.patient, http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, s.admin, http.MethodGet, "/api/v1/appointments?department=Cardiology", nil)
	require.Equal(t, http.StatusOK, code)
	var all []model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 1)

	code, _ = s.do(t, s.patient, http.MethodDelete, "/api/v1/appointments/"+apt.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, s.admin, http.MethodDelete, "/api/v1/appointments/"+apt.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, s.admin, http.MethodGet, "/api/v1/appointments/"+apt.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errors.CodeNotFound, env.Code)
}

func TestHandler_Reschedule(t *testing.T) {
	s := newTestServer(t)
	apt := s.create(t, "14:00", "14:30")

	code, env := s.do(t, s.patient, http.MethodPut, "/api/v1/appointments/"+apt.ID.String(), gin.H{
		"start_time": "15:00",
		"end_time":   "15:30",
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	var updated model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, model.AppointmentStatusRescheduled, updated.Status)
	assert.Equal(t, model.NewClock(15, 0), updated.StartTime)
}
