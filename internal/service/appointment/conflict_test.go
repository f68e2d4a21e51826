package appointment

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/carebook-api/internal/model"
)

var allStatuses = []model.AppointmentStatus{
	model.AppointmentStatusPending,
	model.AppointmentStatusConfirmed,
	model.AppointmentStatusCancelled,
	model.AppointmentStatusCompleted,
	model.AppointmentStatusRescheduled,
}

func booking(provider uuid.UUID, date model.Date, start, end model.Clock, status model.AppointmentStatus) *model.Appointment {
	return &model.Appointment{
		ID:         uuid.New(),
		ProviderID: provider,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Status:     status,
	}
}

func TestDetectConflicts_Boundaries(t *testing.T) {
	provider := uuid.New()
	date := model.NewDate(2024, 6, 1)
	existing := []*model.Appointment{
		booking(provider, date, model.NewClock(9, 0), model.NewClock(9, 30), model.AppointmentStatusConfirmed),
	}

	tests := []struct {
		name       string
		start, end model.Clock
		conflict   bool
	}{
		{"touching before", model.NewClock(8, 30), model.NewClock(9, 0), false},
		{"touching after", model.NewClock(9, 30), model.NewClock(10, 0), false},
		{"same window", model.NewClock(9, 0), model.NewClock(9, 30), true},
		{"inside", model.NewClock(9, 10), model.NewClock(9, 20), true},
		{"covering", model.NewClock(8, 0), model.NewClock(10, 0), true},
		{"overlapping start", model.NewClock(8, 45), model.NewClock(9, 15), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := DetectConflicts(existing, provider, date, model.Window{Start: tt.start, End: tt.end}, nil)
			assert.Equal(t, tt.conflict, len(ids) > 0)
		})
	}
}

func TestDetectConflicts_IgnoresInactiveOtherProvidersAndDates(t *testing.T) {
	provider := uuid.New()
	date := model.NewDate(2024, 6, 1)
	w := model.Window{Start: model.NewClock(9, 0), End: model.NewClock(10, 0)}

	existing := []*model.Appointment{
		booking(provider, date, w.Start, w.End, model.AppointmentStatusCancelled),
		booking(provider, date, w.Start, w.End, model.AppointmentStatusCompleted),
		booking(provider, date, w.Start, w.End, model.AppointmentStatusRescheduled),
		booking(uuid.New(), date, w.Start, w.End, model.AppointmentStatusConfirmed),
		booking(provider, model.NewDate(2024, 6, 2), w.Start, w.End, model.AppointmentStatusPending),
	}

	assert.Empty(t, DetectConflicts(existing, provider, date, w, nil))
}

func TestDetectConflicts_ExcludesSelf(t *testing.T) {
	provider := uuid.New()
	date := model.NewDate(2024, 6, 1)
	self := booking(provider, date, model.NewClock(9, 0), model.NewClock(10, 0), model.AppointmentStatusConfirmed)

	w := model.Window{Start: model.NewClock(9, 30), End: model.NewClock(10, 30)}
	assert.Empty(t, DetectConflicts([]*model.Appointment{self}, provider, date, w, &self.ID))
	assert.Equal(t, []uuid.UUID{self.ID}, DetectConflicts([]*model.Appointment{self}, provider, date, w, nil))
}

// TestDetectConflicts_MatchesBruteForce compares the detector with a
// minute by minute occupancy check over random schedules.
func TestDetectConflicts_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	provider := uuid.New()
	date := model.NewDate(2024, 6, 1)

	randomWindow := func() model.Window {
		start := model.Clock(rng.Intn(model.MinutesPerDay - 1))
		end := start + model.Clock(1+rng.Intn(int(model.MinutesPerDay-start)))
		return model.Window{Start: start, End: end}
	}

	for i := 0; i < 500; i++ {
		var existing []*model.Appointment
		for j := 0; j < rng.Intn(8); j++ {
			w := randomWindow()
			existing = append(existing, booking(provider, date, w.Start, w.End, allStatuses[rng.Intn(len(allStatuses))]))
		}
		candidate := randomWindow()

		want := map[uuid.UUID]bool{}
		for _, a := range existing {
			if !a.Status.IsActive() {
				continue
			}
			for m := candidate.Start; m < candidate.End; m++ {
				if a.StartTime <= m && m < a.EndTime {
					want[a.ID] = true
					break
				}
			}
		}

		got := DetectConflicts(existing, provider, date, candidate, nil)
		assert.Len(t, got, len(want), "candidate %s-%s", candidate.Start, candidate.End)
		for _, id := range got {
			assert.True(t, want[id])
		}
	}
}
