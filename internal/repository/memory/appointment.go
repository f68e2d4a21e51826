package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

type appointmentRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*model.Appointment
	now          func() time.Time
}

// NewAppointmentRepository returns a process-local store. Writers are
// serialized by a mutex and the overlap check runs inside the same
// critical section as the write.
func NewAppointmentRepository() repository.AppointmentRepository {
	return &appointmentRepository{
		appointments: make(map[uuid.UUID]*model.Appointment),
		now:          time.Now,
	}
}

func (r *appointmentRepository) FindConflicting(ctx context.Context, providerID uuid.UUID, date model.Date, start, end model.Clock, excludeID *uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflictsLocked(providerID, date, model.Window{Start: start, End: end}, excludeID), nil
}

func (r *appointmentRepository) conflictsLocked(providerID uuid.UUID, date model.Date, w model.Window, excludeID *uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range r.appointments {
		if a.ProviderID != providerID || !a.Date.Equal(date) || !a.Status.IsActive() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Window().Overlaps(w) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (r *appointmentRepository) ListActiveForProviderDate(ctx context.Context, providerID uuid.UUID, date model.Date) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Appointment
	for _, a := range r.appointments {
		if a.ProviderID == providerID && a.Date.Equal(date) && a.Status.IsActive() {
			out = append(out, a.Clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *appointmentRepository) Insert(ctx context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appointment.Status.IsActive() {
		if ids := r.conflictsLocked(appointment.ProviderID, appointment.Date, appointment.Window(), nil); len(ids) > 0 {
			return repository.ErrSchedulingConflict
		}
	}

	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := r.now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	appointment.Version = 1

	r.appointments[appointment.ID] = appointment.Clone()
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Appointment, 0)
	for _, a := range r.appointments {
		if filters.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *appointmentRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from model.AppointmentStatus, version int, to model.AppointmentStatus, actorID uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if current.Version != version || current.Status != from {
		return nil, repository.ErrVersionMismatch
	}
	if !from.IsActive() && to.IsActive() {
		if ids := r.conflictsLocked(current.ProviderID, current.Date, current.Window(), &current.ID); len(ids) > 0 {
			return nil, repository.ErrSchedulingConflict
		}
	}

	next := current.Clone()
	next.Status = to
	if to != model.AppointmentStatusConfirmed {
		next.MeetingLink = ""
	}
	r.touch(next, actorID)
	r.appointments[id] = next
	return next.Clone(), nil
}

func (r *appointmentRepository) Reschedule(ctx context.Context, appointment *model.Appointment, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionMismatch
	}
	if ids := r.conflictsLocked(current.ProviderID, appointment.Date, appointment.Window(), &current.ID); len(ids) > 0 {
		return repository.ErrSchedulingConflict
	}

	r.touch(appointment, appointment.UpdatedBy)
	r.appointments[appointment.ID] = appointment.Clone()
	return nil
}

func (r *appointmentRepository) UpdateDetails(ctx context.Context, appointment *model.Appointment, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionMismatch
	}

	next := current.Clone()
	next.Reason = appointment.Reason
	next.Notes = appointment.Notes
	next.Attachments = append(next.Attachments[:0:0], appointment.Attachments...)
	next.MeetingLink = appointment.MeetingLink
	r.touch(next, appointment.UpdatedBy)
	r.appointments[appointment.ID] = next

	appointment.Version = next.Version
	appointment.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *appointmentRepository) touch(a *model.Appointment, actorID uuid.UUID) {
	a.UpdatedBy = actorID
	a.UpdatedAt = r.now()
	a.Version++
}

func sortAppointments(list []*model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].StartTime < list[j].StartTime
	})
}
