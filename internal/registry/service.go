// Package registry implements the identity registry: a write-once mapping
// from authenticated principal to participant profile and role.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Service implements participant registration and lookup
type Service struct {
	store  store.Store
	logger *logger.Logger
	bus    *events.Bus
}

// NewService creates a new registry service
func NewService(st store.Store, log *logger.Logger, bus *events.Bus) *Service {
	return &Service{
		store:  st,
		logger: log,
		bus:    bus,
	}
}

// Register creates the participant for a principal. Identity is write-once:
// a second registration for the same principal fails with AlreadyRegistered,
// and there is no update or deregister operation.
func (s *Service) Register(ctx context.Context, principal string, role types.Role, profile types.Profile) (*types.Participant, error) {
	if err := validateRegistration(principal, role, profile); err != nil {
		return nil, err
	}

	participant := &types.Participant{
		Principal: principal,
		Role:      role,
		Profile:   profile,
		CreatedAt: time.Now().UTC(),
	}

	key := store.ParticipantKey(principal)
	err := s.store.Update(func(tx store.Tx) error {
		exists, err := tx.Has(key)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check participant key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodeAlreadyRegistered, "principal already has a registered participant")
		}
		return tx.Put(key, participant)
	})
	if err != nil {
		s.logger.Audit(principal, "register", key, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(principal, "register", key, true, map[string]interface{}{"role": string(role)})
	s.bus.Emit(events.TypeParticipantRegistered, events.ParticipantRegistered{
		Principal: participant.Principal,
		Role:      participant.Role,
		FullName:  participant.Profile.FullName,
		Email:     participant.Profile.Email,
		Timestamp: participant.CreatedAt,
	})

	return participant, nil
}

// Lookup returns the participant registered for a principal
func (s *Service) Lookup(ctx context.Context, principal string) (*types.Participant, error) {
	var participant types.Participant
	err := s.store.View(func(tx store.Tx) error {
		return GetParticipant(tx, principal, &participant)
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func validateRegistration(principal string, role types.Role, profile types.Profile) error {
	if principal == "" || len(principal) > types.MaxPrincipalLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "principal must be non-empty and within length bound",
			map[string]interface{}{"max_len": types.MaxPrincipalLen})
	}
	// Principals become store key segments, so the separator is reserved.
	// Without this check two different (doctor, patient) pairs could share
	// an access-request key and one pair's approval would cover the other.
	if strings.Contains(principal, "/") {
		return types.NewValidationError(types.ErrCodeInvalidInput, "principal must not contain '/'", nil)
	}
	if !role.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "role must be patient or doctor", nil)
	}
	if profile.FullName == "" || len(profile.FullName) > types.MaxPrincipalLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "full name must be non-empty and within length bound", nil)
	}
	if profile.Gender != "" && !profile.Gender.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "gender must be male or female", nil)
	}
	return nil
}
