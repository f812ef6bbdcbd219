// Package store provides the transactional keyed entity store backing the
// ledger. All entities live under deterministic composite keys so external
// indexers can address them consistently. An Update either commits every
// write it buffered or none of them.
package store

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Tx.Get when the key is absent.
var ErrKeyNotFound = errors.New("store: key not found")

// Tx is the handle passed to View and Update callbacks. Writes made through
// Put are buffered and only become visible once the callback returns nil.
type Tx interface {
	// Get unmarshals the value at key into the given pointer.
	Get(key string, into interface{}) error
	// Put buffers a write of the marshaled value at key.
	Put(key string, value interface{}) error
	// Has reports whether key exists, considering buffered writes.
	Has(key string) (bool, error)
	// Scan visits every key with the given prefix in lexical order.
	Scan(prefix string, fn func(key string, value []byte) error) error
}

// Store is the transactional entity store. Update callbacks are serialized:
// read-modify-write on any set of keys inside one Update is atomic.
type Store interface {
	View(fn func(Tx) error) error
	Update(fn func(Tx) error) error
	Close() error
}

// Key prefixes per entity type.
const (
	prefixParticipant  = "participant/"
	prefixRecord       = "record/"
	prefixAccess       = "access/"
	prefixLog          = "log/"
	prefixPool         = "pool/"
	prefixContribution = "contrib/"
)

// ParticipantKey returns the key for a participant by principal.
func ParticipantKey(principal string) string {
	return prefixParticipant + principal
}

// RecordKey returns the key for a medical record by its composite id.
func RecordKey(recordID string) string {
	return prefixRecord + recordID
}

// RecordPrefix returns the scan prefix covering a patient's records.
func RecordPrefix(patientPrincipal string) string {
	return prefixRecord + patientPrincipal + "/"
}

// AccessRequestKey returns the key for the (doctor, patient) access request.
func AccessRequestKey(doctorPrincipal, patientPrincipal string) string {
	return fmt.Sprintf("%s%s/%s", prefixAccess, doctorPrincipal, patientPrincipal)
}

// AccessRequestPrefix returns the scan prefix covering a doctor's requests.
func AccessRequestPrefix(doctorPrincipal string) string {
	return prefixAccess + doctorPrincipal + "/"
}

// AllAccessRequestsPrefix returns the scan prefix covering every request.
func AllAccessRequestsPrefix() string {
	return prefixAccess
}

// AccessLogKey returns the key for one log entry, disambiguated by nonce.
func AccessLogKey(recordID, actorPrincipal, nonce string) string {
	return fmt.Sprintf("%s%s/%s/%s", prefixLog, recordID, actorPrincipal, nonce)
}

// AccessLogPrefix returns the scan prefix covering a record's log entries.
func AccessLogPrefix(recordID string) string {
	return prefixLog + recordID + "/"
}

// PoolKey returns the key for a creator-scoped pool.
func PoolKey(poolRef string) string {
	return prefixPool + poolRef
}

// ContributionKey returns the key for a (pool, record, contributor) contribution.
func ContributionKey(poolRef, recordID, contributorPrincipal string) string {
	return fmt.Sprintf("%s%s/%s/%s", prefixContribution, poolRef, recordID, contributorPrincipal)
}

// ContributionPrefix returns the scan prefix covering a pool's contributions.
func ContributionPrefix(poolRef string) string {
	return prefixContribution + poolRef + "/"
}
