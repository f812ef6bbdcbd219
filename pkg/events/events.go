// Package events carries the domain notifications the ledger emits after a
// successful state change. Events are emitted post-commit only: a failed
// operation produces no event.
package events

import (
	"time"

	"github.com/0x0wen/MediLock/pkg/types"
)

// Type identifies a domain event
type Type string

const (
	TypeParticipantRegistered  Type = "participant.registered"
	TypeRecordAdded            Type = "record.added"
	TypeAccessRequested        Type = "access.requested"
	TypeAccessRequestResponded Type = "access.responded"
	TypeAccessLogged           Type = "access.logged"
	TypeContributionPaid       Type = "contribution.paid"
)

// Event is the envelope delivered to sinks
type Event struct {
	ID      string      `json:"id"`
	Type    Type        `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// ParticipantRegistered carries a snapshot of the public profile fields
type ParticipantRegistered struct {
	Principal string     `json:"principal"`
	Role      types.Role `json:"role"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Timestamp time.Time  `json:"timestamp"`
}

// RecordAdded announces a new record pointer
type RecordAdded struct {
	RecordID         string    `json:"record_id"`
	ContentPointer   string    `json:"content_pointer"`
	DoctorPrincipal  string    `json:"doctor_principal"`
	PatientPrincipal string    `json:"patient_principal"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccessRequested announces a new pending access request
type AccessRequested struct {
	DoctorPrincipal  string    `json:"doctor_principal"`
	PatientPrincipal string    `json:"patient_principal"`
	Scope            string    `json:"scope"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccessRequestResponded announces the patient's decision
type AccessRequestResponded struct {
	DoctorPrincipal  string    `json:"doctor_principal"`
	PatientPrincipal string    `json:"patient_principal"`
	Approved         bool      `json:"approved"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccessLogged announces an appended access-log entry
type AccessLogged struct {
	RecordID       string    `json:"record_id"`
	ActorPrincipal string    `json:"actor_principal"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
}

// ContributionPaid announces a settled escrow transfer
type ContributionPaid struct {
	PoolRef              string    `json:"pool_ref"`
	ContributionID       uint64    `json:"contribution_id"`
	ContributorPrincipal string    `json:"contributor_principal"`
	Amount               uint64    `json:"amount"`
	Timestamp            time.Time `json:"timestamp"`
}
