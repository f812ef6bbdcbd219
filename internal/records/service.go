// Package records implements the reference-only record store. Content lives
// off-system; the store holds an opaque pointer plus descriptive metadata,
// append-only with no update or delete.
package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Service implements record creation and lookup
type Service struct {
	store  store.Store
	logger *logger.Logger
	bus    *events.Bus
}

// NewService creates a new record store service
func NewService(st store.Store, log *logger.Logger, bus *events.Bus) *Service {
	return &Service{
		store:  st,
		logger: log,
		bus:    bus,
	}
}

// AddRecord creates an immutable record pointer authored by a doctor on
// behalf of a patient. The adding doctor is treated as directly collaborating
// with the patient, so no approved access request is required here; reading
// doctors go through the authorization state machine instead. The caller
// supplies a per-patient sequence number; reusing one fails with
// AlreadyExists.
func (s *Service) AddRecord(ctx context.Context, doctorPrincipal, patientPrincipal string, seq uint64, contentPointer, metadata string) (*types.MedicalRecord, error) {
	if err := validateRecord(contentPointer, metadata); err != nil {
		return nil, err
	}

	record := &types.MedicalRecord{
		ID:               types.MakeRecordID(patientPrincipal, seq),
		ContentPointer:   contentPointer,
		DoctorPrincipal:  doctorPrincipal,
		PatientPrincipal: patientPrincipal,
		Seq:              seq,
		Metadata:         metadata,
		CreatedAt:        time.Now().UTC(),
	}

	key := store.RecordKey(record.ID)
	err := s.store.Update(func(tx store.Tx) error {
		if _, err := registry.RequireRole(tx, doctorPrincipal, types.RoleDoctor); err != nil {
			return err
		}
		if _, err := registry.RequireRole(tx, patientPrincipal, types.RolePatient); err != nil {
			return err
		}

		exists, err := tx.Has(key)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check record key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodeRecordExists, "record sequence already used for this patient")
		}
		return tx.Put(key, record)
	})
	if err != nil {
		s.logger.Audit(doctorPrincipal, "add_record", key, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(doctorPrincipal, "add_record", key, true, map[string]interface{}{"patient": patientPrincipal})
	s.bus.Emit(events.TypeRecordAdded, events.RecordAdded{
		RecordID:         record.ID,
		ContentPointer:   record.ContentPointer,
		DoctorPrincipal:  record.DoctorPrincipal,
		PatientPrincipal: record.PatientPrincipal,
		Timestamp:        record.CreatedAt,
	})

	return record, nil
}

// GetRecord returns a record by its composite id
func (s *Service) GetRecord(ctx context.Context, recordID string) (*types.MedicalRecord, error) {
	var record types.MedicalRecord
	err := s.store.View(func(tx store.Tx) error {
		return GetRecord(tx, recordID, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByPatient returns all records whose subject is the given patient,
// in sequence order
func (s *Service) ListByPatient(ctx context.Context, patientPrincipal string) ([]*types.MedicalRecord, error) {
	var records []*types.MedicalRecord
	err := s.store.View(func(tx store.Tx) error {
		return tx.Scan(store.RecordPrefix(patientPrincipal), func(key string, value []byte) error {
			var record types.MedicalRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return types.NewInternalError(types.ErrCodeInternalError, "failed to decode record", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord loads a record inside an open transaction
func GetRecord(tx store.Tx, recordID string, into *types.MedicalRecord) error {
	err := tx.Get(store.RecordKey(recordID), into)
	if err == store.ErrKeyNotFound {
		return types.NewNotFoundError(types.ErrCodeRecordNotFound, "no record with the given id")
	}
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to load record", err)
	}
	return nil
}

func validateRecord(contentPointer, metadata string) error {
	if contentPointer == "" || len(contentPointer) > types.MaxContentPointerLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "content pointer must be non-empty and within length bound",
			map[string]interface{}{"max_len": types.MaxContentPointerLen})
	}
	if len(metadata) > types.MaxMetadataLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "metadata exceeds length bound",
			map[string]interface{}{"max_len": types.MaxMetadataLen})
	}
	return nil
}
