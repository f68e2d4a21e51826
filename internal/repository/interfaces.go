package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrVersionMismatch    = errors.New("version mismatch")
)

// All repository interfaces in one file
type (
	// AppointmentRepository persists appointments. Every write that can add
	// an active booking re-validates the overlap predicate atomically with
	// the write and fails with ErrSchedulingConflict; every write to an
	// existing row is conditional on the expected version and fails with
	// ErrVersionMismatch when another writer got there first.
	AppointmentRepository interface {
		// FindConflicting returns the ids of active appointments of the
		// provider on date overlapping [start, end).
		FindConflicting(ctx context.Context, providerID uuid.UUID, date model.Date, start, end model.Clock, excludeID *uuid.UUID) ([]uuid.UUID, error)
		ListActiveForProviderDate(ctx context.Context, providerID uuid.UUID, date model.Date) ([]*model.Appointment, error)
		Insert(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// CompareAndSwapStatus moves the appointment from status `from` at
		// `version` to `to`, clearing the meeting link unless `to` is
		// CONFIRMED. Moving an inactive appointment into the active set
		// re-checks conflicts.
		CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from model.AppointmentStatus, version int, to model.AppointmentStatus, actorID uuid.UUID) (*model.Appointment, error)
		// Reschedule writes the new date, window and details of appointment
		// if its stored version still equals expectedVersion.
		Reschedule(ctx context.Context, appointment *model.Appointment, expectedVersion int) error
		// UpdateDetails writes reason, notes, attachments and meeting link
		// without touching the schedule.
		UpdateDetails(ctx context.Context, appointment *model.Appointment, expectedVersion int) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		ListByDepartment(ctx context.Context, role model.Role, department string) ([]*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
