package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

var day = model.NewDate(2024, 6, 1)

func newAppointment(provider uuid.UUID, start, end model.Clock) *model.Appointment {
	return &model.Appointment{
		PatientID:  uuid.New(),
		ProviderID: provider,
		Date:       day,
		StartTime:  start,
		EndTime:    end,
		Status:     model.AppointmentStatusPending,
		Reason:     "checkup",
	}
}

func TestInsert_RejectsOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	provider := uuid.New()

	require.NoError(t, repo.Insert(ctx, newAppointment(provider, model.NewClock(10, 0), model.NewClock(10, 30))))

	err := repo.Insert(ctx, newAppointment(provider, model.NewClock(10, 15), model.NewClock(10, 45)))
	assert.ErrorIs(t, err, repository.ErrSchedulingConflict)

	// touching endpoints do not overlap
	require.NoError(t, repo.Insert(ctx, newAppointment(provider, model.NewClock(10, 30), model.NewClock(11, 0))))

	// other providers are independent
	require.NoError(t, repo.Insert(ctx, newAppointment(uuid.New(), model.NewClock(10, 0), model.NewClock(10, 30))))
}

func TestInsert_ConcurrentSameWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	provider := uuid.New()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Insert(ctx, newAppointment(provider, model.NewClock(10, 0), model.NewClock(10, 30)))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, repository.ErrSchedulingConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestCompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	apt := newAppointment(uuid.New(), model.NewClock(9, 0), model.NewClock(9, 30))
	require.NoError(t, repo.Insert(ctx, apt))

	actor := uuid.New()
	updated, err := repo.CompareAndSwapStatus(ctx, apt.ID, model.AppointmentStatusPending, 1, model.AppointmentStatusConfirmed, actor)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, updated.Status)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, actor, updated.UpdatedBy)

	// stale version loses
	_, err = repo.CompareAndSwapStatus(ctx, apt.ID, model.AppointmentStatusPending, 1, model.AppointmentStatusCancelled, actor)
	assert.ErrorIs(t, err, repository.ErrVersionMismatch)

	_, err = repo.CompareAndSwapStatus(ctx, uuid.New(), model.AppointmentStatusPending, 1, model.AppointmentStatusCancelled, actor)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCompareAndSwapStatus_ReactivationChecksConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	provider := uuid.New()

	moved := newAppointment(provider, model.NewClock(9, 0), model.NewClock(9, 30))
	moved.Status = model.AppointmentStatusRescheduled
	require.NoError(t, repo.Insert(ctx, moved))
	require.NoError(t, repo.Insert(ctx, newAppointment(provider, model.NewClock(9, 0), model.NewClock(9, 30))))

	_, err := repo.CompareAndSwapStatus(ctx, moved.ID, model.AppointmentStatusRescheduled, 1, model.AppointmentStatusConfirmed, uuid.New())
	assert.ErrorIs(t, err, repository.ErrSchedulingConflict)
}

func TestReschedule_ExcludesSelf(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	apt := newAppointment(uuid.New(), model.NewClock(9, 0), model.NewClock(9, 30))
	require.NoError(t, repo.Insert(ctx, apt))

	apt.Status = model.AppointmentStatusRescheduled
	require.NoError(t, repo.Reschedule(ctx, apt, 1))
	assert.Equal(t, 2, apt.Version)

	assert.ErrorIs(t, repo.Reschedule(ctx, apt, 1), repository.ErrVersionMismatch)
}

func TestList_SortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository()
	provider := uuid.New()

	late := newAppointment(provider, model.NewClock(15, 0), model.NewClock(15, 30))
	early := newAppointment(provider, model.NewClock(8, 0), model.NewClock(8, 30))
	other := newAppointment(uuid.New(), model.NewClock(8, 0), model.NewClock(8, 30))
	for _, a := range []*model.Appointment{late, early, other} {
		require.NoError(t, repo.Insert(ctx, a))
	}

	list, err := repo.List(ctx, &model.AppointmentFilters{ProviderID: &provider})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}
