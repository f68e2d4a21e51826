package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
	"github.com/jwalitptl/carebook-api/internal/service/audit"
	"github.com/jwalitptl/carebook-api/internal/service/notification"
	"github.com/jwalitptl/carebook-api/internal/service/user"
	"github.com/jwalitptl/carebook-api/pkg/errors"
	"github.com/jwalitptl/carebook-api/pkg/logger"
	"github.com/jwalitptl/carebook-api/pkg/metrics"
	"github.com/jwalitptl/carebook-api/pkg/storage"
)

type Config struct {
	Slots              SlotConfig
	MaxAttachments     int
	MaxAttachmentBytes int64
}

func DefaultConfig() Config {
	return Config{
		Slots:              DefaultSlotConfig(),
		MaxAttachments:     5,
		MaxAttachmentBytes: 10 << 20,
	}
}

type Service struct {
	repo     repository.AppointmentRepository
	users    user.Directory
	notifier notification.Service
	auditor  *audit.Service
	blobs    storage.BlobStore
	config   Config
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewService(
	repo repository.AppointmentRepository,
	users user.Directory,
	notifier notification.Service,
	auditor *audit.Service,
	blobs storage.BlobStore,
	config Config,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		auditor:  auditor,
		blobs:    blobs,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// Create books a new PENDING appointment. Uploads are stored before the
// insert and removed again if the insert fails.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest, uploads []Upload) (*model.Appointment, error) {
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, errors.NewBadRequest("patient_id must be a valid id", err)
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, errors.NewBadRequest("provider_id must be a valid id", err)
	}
	date, window, err := parseSchedule(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.NewBadRequest("reason is required", nil)
	}

	if !canBookFor(actor, patientID) {
		return nil, errors.NewForbidden("patients can only book appointments for themselves")
	}

	provider, err := s.provider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("patient", err)
		}
		return nil, errors.NewInternal(err)
	}
	if patient.Role != model.RolePatient {
		return nil, errors.NewBadRequest("patient_id does not reference a patient", nil)
	}
	if req.IsVirtual && !provider.Telehealth {
		return nil, errors.New(errors.CodeNotTelehealth, "provider does not offer telehealth appointments", nil)
	}
	if err := s.validateUploads(0, uploads); err != nil {
		return nil, err
	}

	if _, err := s.CheckConflicts(ctx, providerID, date, window, nil); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		ProviderID: providerID,
		Date:       date,
		StartTime:  window.Start,
		EndTime:    window.End,
		Status:     model.AppointmentStatusPending,
		Reason:     reason,
		Notes:      req.Notes,
		IsVirtual:  req.IsVirtual,
		CreatedBy:  actor.ID,
		UpdatedBy:  actor.ID,
	}

	keys, err := s.storeUploads(ctx, apt.ID, uploads)
	if err != nil {
		return nil, err
	}
	apt.Attachments = keys

	if err := s.repo.Insert(ctx, apt); err != nil {
		s.removeBlobs(ctx, apt.ID, keys)
		return nil, s.mapRepoError("create", err)
	}

	s.metrics.AppointmentsCreated.Inc()
	s.audit(ctx, actor, model.AuditActionCreate, apt.ID, apt)
	s.notify(ctx, apt, func(p participants) *model.Notification {
		return composeCreated(p, apt)
	})

	s.logger.Info("Appointment created",
		"appointment_id", apt.ID.String(),
		"provider_id", providerID.String(),
		"date", date.String())
	return apt, nil
}

// GetSlots lists the free start marks of a provider's working day.
func (s *Service) GetSlots(ctx context.Context, providerID uuid.UUID, date model.Date) (*model.AvailableSlots, error) {
	if _, err := s.provider(ctx, providerID); err != nil {
		return nil, err
	}

	booked, err := s.repo.ListActiveForProviderDate(ctx, providerID, date)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to load bookings: %w", err))
	}

	return &model.AvailableSlots{
		ProviderID: providerID,
		Date:       date,
		Slots:      GenerateSlots(s.config.Slots, providerID, date, booked),
	}, nil
}

// CheckConflicts returns SCHEDULING_CONFLICT along with the conflicting
// ids when window overlaps an active booking of the provider.
func (s *Service) CheckConflicts(ctx context.Context, providerID uuid.UUID, date model.Date, window model.Window, excludeID *uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.FindConflicting(ctx, providerID, date, window.Start, window.End, excludeID)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to check conflicts: %w", err))
	}
	if len(ids) > 0 {
		s.metrics.SchedulingConflicts.WithLabelValues("precheck").Inc()
		return ids, errors.NewSchedulingConflict(fmt.Errorf("conflicts with %d appointment(s)", len(ids)))
	}
	return nil, nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Can(actor, apt, ActionView) {
		return nil, errors.NewForbidden("you do not have access to this appointment")
	}
	return apt, nil
}

// ListQuery carries the raw list filters of a request.
type ListQuery struct {
	Status     string
	ProviderID string
	PatientID  string
	Department string
	StartDate  string
	EndDate    string
}

func (q ListQuery) filters() (*model.AppointmentFilters, error) {
	f := &model.AppointmentFilters{}
	if q.Status != "" {
		status, ok := model.ParseAppointmentStatus(q.Status)
		if !ok {
			return nil, errors.NewBadRequest(fmt.Sprintf("unknown status %q", q.Status), nil)
		}
		f.Status = status
	}
	if q.ProviderID != "" {
		id, err := uuid.Parse(q.ProviderID)
		if err != nil {
			return nil, errors.NewBadRequest("provider must be a valid id", err)
		}
		f.ProviderID = &id
	}
	if q.PatientID != "" {
		id, err := uuid.Parse(q.PatientID)
		if err != nil {
			return nil, errors.NewBadRequest("patient must be a valid id", err)
		}
		f.PatientID = &id
	}
	if q.StartDate != "" {
		d, err := model.ParseDate(q.StartDate)
		if err != nil {
			return nil, errors.NewBadRequest(err.Error(), err)
		}
		f.StartDate = &d
	}
	if q.EndDate != "" {
		d, err := model.ParseDate(q.EndDate)
		if err != nil {
			return nil, errors.NewBadRequest(err.Error(), err)
		}
		f.EndDate = &d
	}
	return f, nil
}

// ListForUser returns the appointments a user takes part in: as patient
// for patients, as provider for doctors.
func (s *Service) ListForUser(ctx context.Context, actor model.Actor, userID uuid.UUID, q ListQuery) ([]*model.Appointment, error) {
	if !canListFor(actor, userID) {
		return nil, errors.NewForbidden("you can only list your own appointments")
	}

	filters, err := ListQuery{Status: q.Status, StartDate: q.StartDate, EndDate: q.EndDate}.filters()
	if err != nil {
		return nil, err
	}

	subject, err := s.users.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("user", err)
		}
		return nil, errors.NewInternal(err)
	}
	switch subject.Role {
	case model.RolePatient:
		filters.PatientID = &userID
	case model.RoleDoctor:
		filters.ProviderID = &userID
	default:
		return []*model.Appointment{}, nil
	}

	return s.list(ctx, filters)
}

// ListAll is the clinic-wide view for admins and nurses. Department narrows
// the result to that department's providers.
func (s *Service) ListAll(ctx context.Context, actor model.Actor, q ListQuery) ([]*model.Appointment, error) {
	if !canListAll(actor) {
		return nil, errors.NewForbidden("only admins and nurses can list all appointments")
	}

	filters, err := q.filters()
	if err != nil {
		return nil, err
	}

	if q.Department != "" {
		ids, err := s.users.ProviderIDsInDepartment(ctx, q.Department)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if len(ids) == 0 {
			return []*model.Appointment{}, nil
		}
		filters.ProviderIDs = ids
	}

	return s.list(ctx, filters)
}

func (s *Service) list(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return appointments, nil
}

// UpdateStatus applies a direct status change. The target is parsed first,
// then the caller's right to it is checked, then the lifecycle graph.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateStatusRequest) (*model.Appointment, error) {
	target, ok := model.ParseAppointmentStatus(req.Status)
	if !ok {
		return nil, errors.New(errors.CodeInvalidStatus, fmt.Sprintf("unknown status %q", req.Status), nil)
	}

	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	action, settable := actionForStatus(target)
	if !settable {
		return nil, errors.New(errors.CodeForbiddenTransition,
			fmt.Sprintf("status %s cannot be set directly", target), nil)
	}
	if !Can(actor, apt, action) {
		return nil, errors.New(errors.CodeForbiddenTransition,
			fmt.Sprintf("you are not allowed to set status %s on this appointment", target), nil)
	}
	if !canTransition(apt.Status, target) {
		return nil, errors.New(errors.CodeInvalidTransition,
			fmt.Sprintf("cannot change status from %s to %s", apt.Status, target), nil)
	}

	updated, err := s.repo.CompareAndSwapStatus(ctx, id, apt.Status, versionOf(req.Version, apt), target, actor.ID)
	if err != nil {
		return nil, s.mapRepoError("status", err)
	}

	s.metrics.StatusTransitions.WithLabelValues(string(apt.Status), string(target)).Inc()
	s.audit(ctx, actor, model.AuditActionStatus, id, map[string]interface{}{
		"from": apt.Status,
		"to":   target,
	})
	s.notify(ctx, updated, func(p participants) *model.Notification {
		return composeStatusChange(actor, p, updated)
	})
	return updated, nil
}

// Update edits reason and notes, appends attachments and, when any of date,
// start or end time is given, reschedules the appointment. A reschedule
// leaves the appointment RESCHEDULED without a meeting link.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateAppointmentRequest, uploads []Upload) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Can(actor, apt, ActionReschedule) {
		return nil, errors.NewForbidden("only the appointment's patient or provider can change it")
	}
	if req.Version != 0 && req.Version != apt.Version {
		return nil, errors.NewConcurrentModification(repository.ErrVersionMismatch)
	}
	if err := s.validateUploads(len(apt.Attachments), uploads); err != nil {
		return nil, err
	}

	next := apt.Clone()
	next.UpdatedBy = actor.ID
	if req.Reason != "" {
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return nil, errors.NewBadRequest("reason cannot be blank", nil)
		}
		next.Reason = reason
	}
	if req.Notes != "" {
		next.Notes = req.Notes
	}

	rescheduling := req.Reschedules()
	if rescheduling {
		if !canReschedule(apt.Status) {
			return nil, errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("a %s appointment cannot be rescheduled", apt.Status), nil)
		}
		date, window, err := parseSchedule(
			orDefault(req.Date, apt.Date.String()),
			orDefault(req.StartTime, apt.StartTime.String()),
			orDefault(req.EndTime, apt.EndTime.String()),
		)
		if err != nil {
			return nil, err
		}
		if _, err := s.CheckConflicts(ctx, apt.ProviderID, date, window, &apt.ID); err != nil {
			return nil, err
		}
		next.Date = date
		next.StartTime = window.Start
		next.EndTime = window.End
		next.Status = model.AppointmentStatusRescheduled
		next.MeetingLink = ""
	}

	keys, err := s.storeUploads(ctx, apt.ID, uploads)
	if err != nil {
		return nil, err
	}
	next.Attachments = append(next.Attachments, keys...)

	if rescheduling {
		err = s.repo.Reschedule(ctx, next, apt.Version)
	} else {
		err = s.repo.UpdateDetails(ctx, next, apt.Version)
	}
	if err != nil {
		s.removeBlobs(ctx, apt.ID, keys)
		return nil, s.mapRepoError("update", err)
	}

	if !rescheduling {
		s.audit(ctx, actor, model.AuditActionUpdate, id, map[string]interface{}{
			"reason":      next.Reason,
			"notes":       next.Notes,
			"attachments": len(keys),
		})
		return next, nil
	}

	s.metrics.StatusTransitions.WithLabelValues(string(apt.Status), string(next.Status)).Inc()
	s.audit(ctx, actor, model.AuditActionReschedule, id, map[string]interface{}{
		"from": map[string]string{"date": apt.Date.String(), "start_time": apt.StartTime.String(), "end_time": apt.EndTime.String()},
		"to":   map[string]string{"date": next.Date.String(), "start_time": next.StartTime.String(), "end_time": next.EndTime.String()},
	})
	s.notify(ctx, next, func(p participants) *model.Notification {
		return composeRescheduled(actor, p, next)
	})
	return next, nil
}

// SetMeetingLink attaches a telehealth link to a confirmed virtual
// appointment. Only its provider may do so.
func (s *Service) SetMeetingLink(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.MeetingLinkRequest) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkMeetingLink(actor, apt, req.MeetingLink); err != nil {
		return nil, err
	}

	next := apt.Clone()
	next.MeetingLink = req.MeetingLink
	next.UpdatedBy = actor.ID
	if err := s.repo.UpdateDetails(ctx, next, versionOf(req.Version, apt)); err != nil {
		return nil, s.mapRepoError("meeting_link", err)
	}

	s.audit(ctx, actor, model.AuditActionLink, id, map[string]string{"meeting_link": next.MeetingLink})
	s.notify(ctx, next, func(p participants) *model.Notification {
		return composeMeetingLink(p, next)
	})
	return next, nil
}

// Delete removes the appointment and then its attachment blobs.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	apt, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !Can(actor, apt, ActionDelete) {
		return errors.NewForbidden("only admins can delete appointments")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoError("delete", err)
	}

	s.removeBlobs(ctx, id, apt.Attachments)
	s.audit(ctx, actor, model.AuditActionDelete, id, nil)
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.mapRepoError("get", err)
	}
	return apt, nil
}

// provider resolves id to a doctor or fails with INVALID_PROVIDER.
func (s *Service) provider(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.CodeInvalidProvider, "provider not found", err)
		}
		return nil, errors.NewInternal(err)
	}
	if u.Role != model.RoleDoctor {
		return nil, errors.New(errors.CodeInvalidProvider, "provider must be a doctor", nil)
	}
	return u, nil
}

func (s *Service) mapRepoError(op string, err error) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NewNotFound("appointment", err)
	case stderrors.Is(err, repository.ErrSchedulingConflict):
		s.metrics.SchedulingConflicts.WithLabelValues(op).Inc()
		return errors.NewSchedulingConflict(err)
	case stderrors.Is(err, repository.ErrVersionMismatch):
		s.metrics.SerializationRetries.Inc()
		return errors.NewConcurrentModification(err)
	}
	s.metrics.DatabaseOperations.WithLabelValues(op, "error").Inc()
	return errors.NewInternal(fmt.Errorf("%s appointment: %w", op, err))
}

// audit records a committed change. Failures are logged only.
func (s *Service) audit(ctx context.Context, actor model.Actor, action string, id uuid.UUID, changes interface{}) {
	if s.auditor == nil {
		return
	}
	opts := &audit.LogOptions{}
	if changes != nil {
		opts.Changes = changes
	}
	if err := s.auditor.Log(ctx, actor.ID, action, model.AuditEntityAppointment, id, opts); err != nil {
		s.logger.Error(err, "Failed to write audit log",
			"appointment_id", id.String(),
			"action", action)
	}
}

func parseSchedule(dateStr, startStr, endStr string) (model.Date, model.Window, error) {
	date, err := model.ParseDate(dateStr)
	if err != nil {
		return model.Date{}, model.Window{}, errors.NewBadRequest(err.Error(), err)
	}
	start, err := model.ParseClock(startStr)
	if err != nil {
		return model.Date{}, model.Window{}, errors.NewBadRequest(err.Error(), err)
	}
	end, err := model.ParseClock(endStr)
	if err != nil {
		return model.Date{}, model.Window{}, errors.NewBadRequest(err.Error(), err)
	}
	w := model.Window{Start: start, End: end}
	if !w.Valid() {
		return model.Date{}, model.Window{}, errors.NewBadRequest("start_time must be before end_time", nil)
	}
	return date, w, nil
}

// versionOf treats a zero request version as "whatever was just read".
func versionOf(requested int, apt *model.Appointment) int {
	if requested == 0 {
		return apt.Version
	}
	return requested
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
