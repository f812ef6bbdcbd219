package access

import (
	"time"

	"github.com/0x0wen/MediLock/pkg/types"
)

// Authorize decides whether an actor may read a patient's record. It is a
// pure function over the actor, the subject patient, the access request in
// force (nil when none exists) and the current time.
//
// Granted when the actor is the patient themself, or when the actor is a
// doctor holding an Approved, unexpired request for this patient. The two
// failure kinds are distinct: AccessDenied means no valid authorization ever
// existed, AccessExpired means an approval lapsed.
func Authorize(actor *types.Participant, patientPrincipal string, request *types.AccessRequest, now time.Time) error {
	if actor.Principal == patientPrincipal {
		return nil
	}

	if actor.Role != types.RoleDoctor {
		return types.NewAccessDeniedError(types.ErrCodeAccessDenied, "actor is neither the patient nor a doctor")
	}

	if request != nil && (request.DoctorPrincipal != actor.Principal || request.PatientPrincipal != patientPrincipal) {
		return types.NewAccessDeniedError(types.ErrCodeAccessDenied, "access request names a different doctor or patient")
	}

	if request == nil || request.Status != types.StatusApproved {
		return types.NewAccessDeniedError(types.ErrCodeAccessDenied, "no approved access request for this doctor and patient")
	}

	if !request.ExpiresAt.After(now) {
		return types.NewAccessExpiredError(types.ErrCodeAccessExpired, "approved access request has expired")
	}

	return nil
}
