package access

import (
	"context"
	"encoding/json"
	"time"

	"github.com/0x0wen/MediLock/internal/records"
	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/monitoring"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// LogAccess appends one immutable log entry for a permitted access to a
// record. The caller supplies a nonce so repeated accesses by the same actor
// get distinct keys; reusing a nonce fails with AlreadyExists and writes
// nothing. On a denied access no entry is written and the specific denial
// kind (AccessDenied or AccessExpired) is surfaced.
func (s *Service) LogAccess(ctx context.Context, recordID, actorPrincipal, action, nonce string) (*types.AccessLogEntry, error) {
	if action == "" || len(action) > types.MaxActionLen {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "action must be non-empty and within length bound",
			map[string]interface{}{"max_len": types.MaxActionLen})
	}
	if !validNonce(nonce) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "nonce must be non-empty, within length bound and free of '/'", nil)
	}

	entry := &types.AccessLogEntry{
		RecordID:       recordID,
		ActorPrincipal: actorPrincipal,
		Action:         action,
		Nonce:          nonce,
		Timestamp:      time.Now().UTC(),
	}

	var patientPrincipal string
	key := store.AccessLogKey(recordID, actorPrincipal, nonce)

	err := s.store.Update(func(tx store.Tx) error {
		var record types.MedicalRecord
		if err := records.GetRecord(tx, recordID, &record); err != nil {
			return err
		}
		patientPrincipal = record.PatientPrincipal

		var actor types.Participant
		if err := registry.GetParticipant(tx, actorPrincipal, &actor); err != nil {
			return err
		}

		// The request in force, if any. Its absence is not an error here;
		// the guard decides.
		var request *types.AccessRequest
		var stored types.AccessRequest
		err := tx.Get(store.AccessRequestKey(actorPrincipal, record.PatientPrincipal), &stored)
		if err == nil {
			request = &stored
		} else if err != store.ErrKeyNotFound {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to load access request", err)
		}

		if err := Authorize(&actor, record.PatientPrincipal, request, entry.Timestamp); err != nil {
			return err
		}

		exists, err := tx.Has(key)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check log entry key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodeLogEntryExists, "log entry already exists for this record, actor and nonce")
		}
		return tx.Put(key, entry)
	})
	if err != nil {
		switch types.KindOf(err) {
		case types.ErrorKindAccessDenied:
			monitoring.RecordAccessDecision("denied")
		case types.ErrorKindAccessExpired:
			monitoring.RecordAccessDecision("expired")
		}
		s.logger.PHIAccess(actorPrincipal, patientPrincipal, action, recordID, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	monitoring.RecordAccessDecision("granted")
	s.logger.PHIAccess(actorPrincipal, patientPrincipal, action, recordID, true, nil)

	if s.archive != nil {
		if err := s.archive.Append(ctx, key, entry); err != nil {
			// The ledger entry is committed; a failed mirror must not undo
			// a granted access. Counted and logged for operators instead.
			monitoring.RecordArchiveAppend("failure")
			s.logger.WithComponent("access-log-archive").Warnf("failed to archive log entry %s: %v", key, err)
		} else {
			monitoring.RecordArchiveAppend("success")
		}
	}

	s.bus.Emit(events.TypeAccessLogged, events.AccessLogged{
		RecordID:       entry.RecordID,
		ActorPrincipal: entry.ActorPrincipal,
		Action:         entry.Action,
		Timestamp:      entry.Timestamp,
	})

	return entry, nil
}

// ListLog returns every log entry for a record, for auditors
func (s *Service) ListLog(ctx context.Context, recordID string) ([]*types.AccessLogEntry, error) {
	var entries []*types.AccessLogEntry
	err := s.store.View(func(tx store.Tx) error {
		return tx.Scan(store.AccessLogPrefix(recordID), func(key string, value []byte) error {
			var entry types.AccessLogEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return types.NewInternalError(types.ErrCodeInternalError, "failed to decode log entry", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
