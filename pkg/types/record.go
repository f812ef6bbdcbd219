package types

import (
	"fmt"
	"time"
)

// Field length bounds carried over from the on-chain account layout.
const (
	MaxPrincipalLen       = 64
	MaxContentPointerLen  = 64
	MaxMetadataLen        = 256
	MaxScopeLen           = 64
	MaxActionLen          = 32
	MaxPoolNameLen        = 64
	MaxPoolDescriptionLen = 200
)

// MedicalRecord is an immutable pointer to off-system record content.
// The content pointer is opaque and never interpreted by the core.
type MedicalRecord struct {
	ID               string    `json:"id"`
	ContentPointer   string    `json:"content_pointer"`
	DoctorPrincipal  string    `json:"doctor_principal"`
	PatientPrincipal string    `json:"patient_principal"`
	Seq              uint64    `json:"seq"`
	Metadata         string    `json:"metadata"`
	CreatedAt        time.Time `json:"created_at"`
}

// MakeRecordID builds the stable record identifier from its natural keys:
// the subject patient and the caller-supplied per-patient sequence number.
func MakeRecordID(patientPrincipal string, seq uint64) string {
	return fmt.Sprintf("%s/%d", patientPrincipal, seq)
}
