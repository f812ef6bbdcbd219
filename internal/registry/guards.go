package registry

import (
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// GetParticipant loads a participant inside an open transaction. Missing
// principals surface as a typed NotFound error.
func GetParticipant(tx store.Tx, principal string, into *types.Participant) error {
	err := tx.Get(store.ParticipantKey(principal), into)
	if err == store.ErrKeyNotFound {
		return types.NewNotFoundError(types.ErrCodeParticipantNotFound, "no participant registered for principal")
	}
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to load participant", err)
	}
	return nil
}

// RequireRole loads a participant and checks its role. Guards run before any
// mutation and are independent of it, so they can be tested in isolation.
func RequireRole(tx store.Tx, principal string, role types.Role) (*types.Participant, error) {
	var participant types.Participant
	if err := GetParticipant(tx, principal, &participant); err != nil {
		return nil, err
	}
	if participant.Role != role {
		return nil, types.NewUnauthorizedRoleError(types.ErrCodeUnauthorizedRole, "participant role does not permit this operation")
	}
	return &participant, nil
}
