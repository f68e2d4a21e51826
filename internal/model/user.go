package model

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

// IsStaff covers the clinical roles plus admin.
func (r Role) IsStaff() bool {
	return r == RoleDoctor || r == RoleNurse || r == RoleAdmin
}

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// User is the directory record the scheduling core reads. Profiles are
// owned elsewhere.
type User struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Role       Role      `db:"role" json:"role"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	Email      string    `db:"email" json:"email"`
	Department string    `db:"department" json:"department,omitempty"`
	Telehealth bool      `db:"telehealth" json:"telehealth"`
}

func (u *User) FullName() string {
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}

// DisplayName addresses doctors by title and last name.
func (u *User) DisplayName() string {
	if u.Role == RoleDoctor {
		return "Dr. " + u.LastName
	}
	return u.FullName()
}
