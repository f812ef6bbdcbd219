package types

import "time"

// Role represents a participant's fixed role in the system
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether the role is one of the closed set
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor:
		return true
	}
	return false
}

// Gender represents a participant's declared gender
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether the gender is one of the closed set
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale:
		return true
	}
	return false
}

// Profile holds descriptive participant attributes. These never gate
// authorization decisions.
type Profile struct {
	NIK         string `json:"nik"`
	FullName    string `json:"full_name"`
	BloodType   string `json:"blood_type,omitempty"`
	Birthdate   int64  `json:"birthdate,omitempty"`
	Gender      Gender `json:"gender,omitempty"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Participant is a registered identity. Exactly one per principal;
// role is immutable after creation and participants are never deleted.
type Participant struct {
	Principal string    `json:"principal"`
	Role      Role      `json:"role"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}
