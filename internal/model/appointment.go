package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AppointmentStatus string

const (
	AppointmentStatusPending     AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed   AppointmentStatus = "CONFIRMED"
	AppointmentStatusCancelled   AppointmentStatus = "CANCELLED"
	AppointmentStatusCompleted   AppointmentStatus = "COMPLETED"
	AppointmentStatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// ActiveStatuses are the statuses that hold a provider's time.
var ActiveStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
}

// ParseAppointmentStatus accepts any casing of a known status.
func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	status := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCancelled,
		AppointmentStatusCompleted, AppointmentStatusRescheduled:
		return status, true
	}
	return "", false
}

func (s AppointmentStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusCompleted
}

type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProviderID  uuid.UUID         `db:"provider_id" json:"provider_id"`
	Date        Date              `db:"date" json:"date"`
	StartTime   Clock             `db:"start_minute" json:"start_time"`
	EndTime     Clock             `db:"end_minute" json:"end_time"`
	Status      AppointmentStatus `db:"status" json:"status"`
	Reason      string            `db:"reason" json:"reason"`
	Notes       string            `db:"notes" json:"notes,omitempty"`
	Attachments pq.StringArray    `db:"attachments" json:"attachments"`
	IsVirtual   bool              `db:"is_virtual" json:"is_virtual"`
	MeetingLink string            `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedBy   uuid.UUID         `db:"created_by" json:"created_by"`
	UpdatedBy   uuid.UUID         `db:"updated_by" json:"updated_by"`
	Version     int               `db:"version" json:"version"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy, safe to mutate.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.Attachments != nil {
		cp.Attachments = append(pq.StringArray(nil), a.Attachments...)
	}
	return &cp
}

func (a *Appointment) IsPatient(id uuid.UUID) bool { return a.PatientID == id }
func (a *Appointment) IsProvider(id uuid.UUID) bool { return a.ProviderID == id }

// Window is a half-open [Start, End) interval on a provider's day.
type Window struct {
	Start Clock
	End   Clock
}

// Overlaps reports whether two half-open windows intersect. Windows that
// only touch at an endpoint do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w Window) Valid() bool {
	return w.Start >= 0 && w.Start < w.End && w.End <= MinutesPerDay
}

func (a *Appointment) Window() Window {
	return Window{Start: a.StartTime, End: a.EndTime}
}

// CreateAppointmentRequest is bound from JSON or multipart form data.
type CreateAppointmentRequest struct {
	PatientID  string `json:"patient_id" form:"patient_id" binding:"required,uuid"`
	ProviderID string `json:"provider_id" form:"provider_id" binding:"required,uuid"`
	Date       string `json:"date" form:"date" binding:"required,civildate"`
	StartTime  string `json:"start_time" form:"start_time" binding:"required,hhmm"`
	EndTime    string `json:"end_time" form:"end_time" binding:"required,hhmm"`
	Reason     string `json:"reason" form:"reason" binding:"required,max=1000"`
	Notes      string `json:"notes" form:"notes" binding:"max=4000"`
	IsVirtual  bool   `json:"is_virtual" form:"is_virtual"`
}

// UpdateAppointmentRequest carries the reschedule fields plus editable
// details. Empty strings mean "leave unchanged".
type UpdateAppointmentRequest struct {
	Date      string `json:"date" form:"date" binding:"omitempty,civildate"`
	StartTime string `json:"start_time" form:"start_time" binding:"omitempty,hhmm"`
	EndTime   string `json:"end_time" form:"end_time" binding:"omitempty,hhmm"`
	Reason    string `json:"reason" form:"reason" binding:"max=1000"`
	Notes     string `json:"notes" form:"notes" binding:"max=4000"`
	Version   int    `json:"version" form:"version" binding:"min=0"`
}

// Reschedules reports whether any of the date/time fields were supplied.
func (r *UpdateAppointmentRequest) Reschedules() bool {
	return r.Date != "" || r.StartTime != "" || r.EndTime != ""
}

type UpdateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Version int    `json:"version" binding:"min=0"`
}

type MeetingLinkRequest struct {
	MeetingLink string `json:"meeting_link"`
	Version     int    `json:"version" binding:"min=0"`
}

type AppointmentFilters struct {
	Status      AppointmentStatus
	PatientID   *uuid.UUID
	ProviderID  *uuid.UUID
	ProviderIDs []uuid.UUID
	StartDate   *Date
	EndDate     *Date
}

// Matches applies the filters in memory.
func (f *AppointmentFilters) Matches(a *Appointment) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
		return false
	}
	if f.ProviderIDs != nil {
		found := false
		for _, id := range f.ProviderIDs {
			if a.ProviderID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartDate != nil && a.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && a.Date.After(*f.EndDate) {
		return false
	}
	return true
}

// AvailableSlots lists the bookable start times of a provider's day.
type AvailableSlots struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       Date      `json:"date"`
	Slots      []Clock   `json:"slots"`
}
