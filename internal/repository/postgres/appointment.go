package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

const appointmentColumns = `id, patient_id, provider_id, date, start_minute, end_minute,
	status, reason, notes, attachments, is_virtual, meeting_link,
	created_by, updated_by, version, created_at, updated_at`

// activeStatusList renders model.ActiveStatuses as a SQL IN list.
var activeStatusList = func() string {
	quoted := make([]string, 0, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}()

var conflictQuery = `
	SELECT id FROM appointments
	WHERE provider_id = $1
	  AND date = $2
	  AND status IN ` + activeStatusList + `
	  AND start_minute < $4
	  AND $3 < end_minute`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func findConflicting(ctx context.Context, q queryer, providerID uuid.UUID, date model.Date, start, end model.Clock, excludeID *uuid.UUID) ([]uuid.UUID, error) {
	query := conflictQuery
	args := []interface{}{providerID, date, start, end}
	if excludeID != nil {
		query += " AND id <> $5"
		args = append(args, *excludeID)
	}

	var ids []uuid.UUID
	if err := q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return ids, nil
}

func (r *appointmentRepository) FindConflicting(ctx context.Context, providerID uuid.UUID, date model.Date, start, end model.Clock, excludeID *uuid.UUID) ([]uuid.UUID, error) {
	return findConflicting(ctx, r.db, providerID, date, start, end, excludeID)
}

func (r *appointmentRepository) ListActiveForProviderDate(ctx context.Context, providerID uuid.UUID, date model.Date) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1 AND date = $2 AND status IN ` + activeStatusList + `
		ORDER BY start_minute ASC`

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, providerID, date); err != nil {
		return nil, fmt.Errorf("failed to list provider appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) Insert(ctx context.Context, appointment *model.Appointment) error {
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if appointment.Attachments == nil {
		appointment.Attachments = pq.StringArray{}
	}
	appointment.Version = 1

	query := `
		INSERT INTO appointments (
			id, patient_id, provider_id, date, start_minute, end_minute,
			status, reason, notes, attachments, is_virtual, meeting_link,
			created_by, updated_by, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	err := r.WithSerializableTx(ctx, func(tx *sqlx.Tx) error {
		if appointment.Status.IsActive() {
			ids, err := findConflicting(ctx, tx, appointment.ProviderID, appointment.Date, appointment.StartTime, appointment.EndTime, nil)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				return repository.ErrSchedulingConflict
			}
		}

		return tx.QueryRowxContext(ctx, query,
			appointment.ID,
			appointment.PatientID,
			appointment.ProviderID,
			appointment.Date,
			appointment.StartTime,
			appointment.EndTime,
			appointment.Status,
			appointment.Reason,
			appointment.Notes,
			appointment.Attachments,
			appointment.IsVirtual,
			appointment.MeetingLink,
			appointment.CreatedBy,
			appointment.UpdatedBy,
			appointment.Version,
		).Scan(&appointment.CreatedAt, &appointment.UpdatedAt)
	})
	return mapWriteError("create appointment", err)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters != nil {
		if filters.Status != "" {
			add("status = $%d", filters.Status)
		}
		if filters.PatientID != nil {
			add("patient_id = $%d", *filters.PatientID)
		}
		if filters.ProviderID != nil {
			add("provider_id = $%d", *filters.ProviderID)
		}
		if filters.ProviderIDs != nil {
			ids := make(pq.StringArray, len(filters.ProviderIDs))
			for i, id := range filters.ProviderIDs {
				ids[i] = id.String()
			}
			add("provider_id = ANY($%d::uuid[])", ids)
		}
		if filters.StartDate != nil {
			add("date >= $%d", *filters.StartDate)
		}
		if filters.EndDate != nil {
			add("date <= $%d", *filters.EndDate)
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date ASC, start_minute ASC"

	appointments := make([]*model.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from model.AppointmentStatus, version int, to model.AppointmentStatus, actorID uuid.UUID) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1,
			meeting_link = CASE WHEN $1 = 'CONFIRMED' THEN meeting_link ELSE '' END,
			updated_by = $2,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $3 AND status = $4 AND version = $5
		RETURNING ` + appointmentColumns

	var updated model.Appointment
	swap := func(tx *sqlx.Tx) error {
		if !from.IsActive() && to.IsActive() {
			var current model.Appointment
			if err := tx.GetContext(ctx, &current, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id); err != nil {
				return err
			}
			ids, err := findConflicting(ctx, tx, current.ProviderID, current.Date, current.StartTime, current.EndTime, &id)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				return repository.ErrSchedulingConflict
			}
		}
		return tx.GetContext(ctx, &updated, query, to, actorID, id, from, version)
	}

	err := r.WithSerializableTx(ctx, swap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrStale(ctx, id)
	}
	if err != nil {
		return nil, mapWriteError("update appointment status", err)
	}
	return &updated, nil
}

func (r *appointmentRepository) Reschedule(ctx context.Context, appointment *model.Appointment, expectedVersion int) error {
	query := `
		UPDATE appointments
		SET date = $1, start_minute = $2, end_minute = $3, status = $4,
			reason = $5, notes = $6, attachments = $7, meeting_link = $8,
			updated_by = $9, updated_at = NOW(), version = version + 1
		WHERE id = $10 AND version = $11
		RETURNING version, updated_at`

	err := r.WithSerializableTx(ctx, func(tx *sqlx.Tx) error {
		ids, err := findConflicting(ctx, tx, appointment.ProviderID, appointment.Date, appointment.StartTime, appointment.EndTime, &appointment.ID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			return repository.ErrSchedulingConflict
		}

		return tx.QueryRowxContext(ctx, query,
			appointment.Date,
			appointment.StartTime,
			appointment.EndTime,
			appointment.Status,
			appointment.Reason,
			appointment.Notes,
			attachmentsOrEmpty(appointment.Attachments),
			appointment.MeetingLink,
			appointment.UpdatedBy,
			appointment.ID,
			expectedVersion,
		).Scan(&appointment.Version, &appointment.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return r.missOrStale(ctx, appointment.ID)
	}
	return mapWriteError("reschedule appointment", err)
}

func (r *appointmentRepository) UpdateDetails(ctx context.Context, appointment *model.Appointment, expectedVersion int) error {
	query := `
		UPDATE appointments
		SET reason = $1, notes = $2, attachments = $3, meeting_link = $4,
			updated_by = $5, updated_at = NOW(), version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING version, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		appointment.Reason,
		appointment.Notes,
		attachmentsOrEmpty(appointment.Attachments),
		appointment.MeetingLink,
		appointment.UpdatedBy,
		appointment.ID,
		expectedVersion,
	).Scan(&appointment.Version, &appointment.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.missOrStale(ctx, appointment.ID)
	}
	return mapWriteError("update appointment", err)
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// missOrStale tells a missing row apart from a lost version race after a
// conditional update matched nothing.
func (r *appointmentRepository) missOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check appointment: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrVersionMismatch
}

// mapWriteError translates driver errors into repository errors.
func mapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSchedulingConflict):
		return err
	case pqCode(err) == codeExclusionViolation:
		return repository.ErrSchedulingConflict
	case isRetryable(err):
		// still losing after the retry budget
		return fmt.Errorf("%s: %w", op, repository.ErrVersionMismatch)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func attachmentsOrEmpty(a pq.StringArray) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return a
}
