package types

import "time"

// RequestStatus is the lifecycle state of an access request.
// Pending transitions exactly once to Approved or Denied; both are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// Valid reports whether the status is one of the closed set
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	}
	return false
}

// AccessRequest governs a doctor's request to read a patient's records.
// At most one live request exists per (doctor, patient) pair.
type AccessRequest struct {
	DoctorPrincipal  string        `json:"doctor_principal"`
	PatientPrincipal string        `json:"patient_principal"`
	Scope            string        `json:"scope"`
	Status           RequestStatus `json:"status"`
	RequestedAt      time.Time     `json:"requested_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	RespondedAt      time.Time     `json:"responded_at,omitempty"`
}

// AccessLogEntry is one immutable entry per granted access. Entries are
// append-only and never mutated after creation.
type AccessLogEntry struct {
	RecordID       string    `json:"record_id"`
	ActorPrincipal string    `json:"actor_principal"`
	Action         string    `json:"action"`
	Nonce          string    `json:"nonce"`
	Timestamp      time.Time `json:"timestamp"`
}
