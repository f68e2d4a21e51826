package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/config"
	"github.com/jwalitptl/carebook-api/internal/model"
)

// SlotConfig describes a provider's bookable day. Marks start at DayStart
// every Interval; a mark is offered only if a booking of Duration starting
// there ends by DayEnd.
type SlotConfig struct {
	DayStart model.Clock
	DayEnd   model.Clock
	Interval time.Duration
	Duration time.Duration
}

func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		DayStart: model.NewClock(8, 0),
		DayEnd:   model.NewClock(17, 0),
		Interval: 30 * time.Minute,
		Duration: 30 * time.Minute,
	}
}

func SlotConfigFrom(cfg config.SchedulingConfig) (SlotConfig, error) {
	start, err := model.ParseClock(cfg.WorkDayStart)
	if err != nil {
		return SlotConfig{}, fmt.Errorf("scheduling.work_day_start: %w", err)
	}
	end, err := model.ParseClock(cfg.WorkDayEnd)
	if err != nil {
		return SlotConfig{}, fmt.Errorf("scheduling.work_day_end: %w", err)
	}
	sc := SlotConfig{DayStart: start, DayEnd: end, Interval: cfg.SlotInterval, Duration: cfg.SlotDuration}
	if err := sc.Validate(); err != nil {
		return SlotConfig{}, err
	}
	return sc, nil
}

func (c SlotConfig) Validate() error {
	if c.DayStart >= c.DayEnd {
		return fmt.Errorf("working day must start before it ends")
	}
	if c.Interval < time.Minute || c.Duration < time.Minute {
		return fmt.Errorf("slot interval and duration must be at least one minute")
	}
	return nil
}

// GenerateSlots returns the free start marks of providerID's day in
// ascending order. A mark m is free when a booking of [m, m+Duration) would
// pass DetectConflicts against booked.
func GenerateSlots(cfg SlotConfig, providerID uuid.UUID, date model.Date, booked []*model.Appointment) []model.Clock {
	slots := make([]model.Clock, 0)
	for m := cfg.DayStart; m.Add(cfg.Duration) <= cfg.DayEnd; m = m.Add(cfg.Interval) {
		w := model.Window{Start: m, End: m.Add(cfg.Duration)}
		if len(DetectConflicts(booked, providerID, date, w, nil)) == 0 {
			slots = append(slots, m)
		}
	}
	return slots
}
