// Package access implements the authorization state machine governing who
// may read which record, and the append-only log of granted accesses.
package access

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Service implements access request lifecycle and access logging
type Service struct {
	store   store.Store
	logger  *logger.Logger
	bus     *events.Bus
	archive *Archive
}

// NewService creates a new access service. The archive is optional.
func NewService(st store.Store, log *logger.Logger, bus *events.Bus, archive *Archive) *Service {
	return &Service{
		store:   st,
		logger:  log,
		bus:     bus,
		archive: archive,
	}
}

// RequestAccess creates a Pending access request for the (doctor, patient)
// pair. At most one request per pair exists at a time; re-requesting while
// any request holds the key fails with AlreadyExists, regardless of its
// status. Denied is therefore terminal for the pair.
func (s *Service) RequestAccess(ctx context.Context, doctorPrincipal, patientPrincipal, scope string, expiresAt time.Time) (*types.AccessRequest, error) {
	if scope == "" || len(scope) > types.MaxScopeLen {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "scope must be non-empty and within length bound",
			map[string]interface{}{"max_len": types.MaxScopeLen})
	}

	request := &types.AccessRequest{
		DoctorPrincipal:  doctorPrincipal,
		PatientPrincipal: patientPrincipal,
		Scope:            scope,
		Status:           types.StatusPending,
		RequestedAt:      time.Now().UTC(),
		ExpiresAt:        expiresAt,
	}

	key := store.AccessRequestKey(doctorPrincipal, patientPrincipal)
	err := s.store.Update(func(tx store.Tx) error {
		if _, err := registry.RequireRole(tx, doctorPrincipal, types.RoleDoctor); err != nil {
			return err
		}
		if _, err := registry.RequireRole(tx, patientPrincipal, types.RolePatient); err != nil {
			return err
		}

		exists, err := tx.Has(key)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check access request key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodeRequestExists, "an access request already exists for this doctor and patient")
		}
		return tx.Put(key, request)
	})
	if err != nil {
		s.logger.Audit(doctorPrincipal, "request_access", key, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(doctorPrincipal, "request_access", key, true, map[string]interface{}{"patient": patientPrincipal, "scope": scope})
	s.bus.Emit(events.TypeAccessRequested, events.AccessRequested{
		DoctorPrincipal:  request.DoctorPrincipal,
		PatientPrincipal: request.PatientPrincipal,
		Scope:            request.Scope,
		Timestamp:        request.RequestedAt,
	})

	return request, nil
}

// RespondAccess records the patient's decision on a pending request. Only
// the patient named by the request may respond, and only once: Approved and
// Denied are terminal states.
func (s *Service) RespondAccess(ctx context.Context, doctorPrincipal, patientPrincipal, callerPrincipal string, approve bool) (*types.AccessRequest, error) {
	var request types.AccessRequest
	key := store.AccessRequestKey(doctorPrincipal, patientPrincipal)

	err := s.store.Update(func(tx store.Tx) error {
		if err := getRequest(tx, doctorPrincipal, patientPrincipal, &request); err != nil {
			return err
		}
		if callerPrincipal != request.PatientPrincipal {
			return types.NewUnauthorizedAccessError(types.ErrCodeUnauthorizedAccess, "only the patient named by the request may respond")
		}
		if request.Status != types.StatusPending {
			return types.NewInvalidStateError(types.ErrCodeRequestNotPending, "access request has already been responded to")
		}

		if approve {
			request.Status = types.StatusApproved
		} else {
			request.Status = types.StatusDenied
		}
		request.RespondedAt = time.Now().UTC()
		return tx.Put(key, &request)
	})
	if err != nil {
		s.logger.Audit(callerPrincipal, "respond_access", key, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(callerPrincipal, "respond_access", key, true, map[string]interface{}{"approved": approve})
	s.bus.Emit(events.TypeAccessRequestResponded, events.AccessRequestResponded{
		DoctorPrincipal:  request.DoctorPrincipal,
		PatientPrincipal: request.PatientPrincipal,
		Approved:         approve,
		Timestamp:        request.RespondedAt,
	})

	return &request, nil
}

// GetRequest returns the access request for a (doctor, patient) pair
func (s *Service) GetRequest(ctx context.Context, doctorPrincipal, patientPrincipal string) (*types.AccessRequest, error) {
	var request types.AccessRequest
	err := s.store.View(func(tx store.Tx) error {
		return getRequest(tx, doctorPrincipal, patientPrincipal, &request)
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListForDoctor returns every request filed by a doctor
func (s *Service) ListForDoctor(ctx context.Context, doctorPrincipal string) ([]*types.AccessRequest, error) {
	return s.listRequests(store.AccessRequestPrefix(doctorPrincipal), nil)
}

// ListForPatient returns every request naming a patient as subject
func (s *Service) ListForPatient(ctx context.Context, patientPrincipal string) ([]*types.AccessRequest, error) {
	return s.listRequests(store.AllAccessRequestsPrefix(), func(r *types.AccessRequest) bool {
		return r.PatientPrincipal == patientPrincipal
	})
}

func (s *Service) listRequests(prefix string, keep func(*types.AccessRequest) bool) ([]*types.AccessRequest, error) {
	var requests []*types.AccessRequest
	err := s.store.View(func(tx store.Tx) error {
		return tx.Scan(prefix, func(key string, value []byte) error {
			var request types.AccessRequest
			if err := json.Unmarshal(value, &request); err != nil {
				return types.NewInternalError(types.ErrCodeInternalError, "failed to decode access request", err)
			}
			if keep == nil || keep(&request) {
				requests = append(requests, &request)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func getRequest(tx store.Tx, doctorPrincipal, patientPrincipal string, into *types.AccessRequest) error {
	err := tx.Get(store.AccessRequestKey(doctorPrincipal, patientPrincipal), into)
	if err == store.ErrKeyNotFound {
		return types.NewNotFoundError(types.ErrCodeRequestNotFound, "no access request for this doctor and patient")
	}
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to load access request", err)
	}
	return nil
}

func validNonce(nonce string) bool {
	return nonce != "" && len(nonce) <= types.MaxScopeLen && !strings.Contains(nonce, "/")
}
