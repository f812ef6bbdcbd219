// Package marketplace implements the settlement ledger: pools expressing
// demand for records, contributions supplying them, and escrow payment on
// withdrawal. Its central invariants are that a pool never collects past
// its capacity and that a contribution is paid at most once.
package marketplace

import (
	"context"
	"encoding/json"
	"time"

	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/monitoring"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Service implements the marketplace ledger
type Service struct {
	store  store.Store
	logger *logger.Logger
	bus    *events.Bus
	vault  Vault
}

// NewService creates a new marketplace service
func NewService(st store.Store, log *logger.Logger, bus *events.Bus, vault Vault) *Service {
	return &Service{
		store:  st,
		logger: log,
		bus:    bus,
		vault:  vault,
	}
}

// CreatePool opens a pool. Pool ids are scoped to their creator; reusing
// one fails with AlreadyExists.
func (s *Service) CreatePool(ctx context.Context, creatorPrincipal string, poolID uint64, name, description string, pricePerRecord, totalNeeded uint64) (*types.DataPool, error) {
	if err := validatePool(name, description, totalNeeded); err != nil {
		return nil, err
	}

	pool := &types.DataPool{
		ID:               poolID,
		CreatorPrincipal: creatorPrincipal,
		Name:             name,
		Description:      description,
		PricePerRecord:   pricePerRecord,
		TotalNeeded:      totalNeeded,
		Collected:        0,
	}

	poolRef := types.MakePoolRef(creatorPrincipal, poolID)
	key := store.PoolKey(poolRef)
	err := s.store.Update(func(tx store.Tx) error {
		var creator types.Participant
		if err := registry.GetParticipant(tx, creatorPrincipal, &creator); err != nil {
			return err
		}

		exists, err := tx.Has(key)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check pool key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodePoolExists, "pool id already exists for this creator")
		}
		return tx.Put(key, pool)
	})
	if err != nil {
		s.logger.Audit(creatorPrincipal, "create_pool", key, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(creatorPrincipal, "create_pool", key, true, map[string]interface{}{
		"price_per_record": pricePerRecord,
		"total_needed":     totalNeeded,
	})
	return pool, nil
}

// FundPool credits a pool's escrow account. Only the pool creator controls
// funding; custody itself lives in the vault capability.
func (s *Service) FundPool(ctx context.Context, callerPrincipal, creatorPrincipal string, poolID uint64, amount uint64) (uint64, error) {
	poolRef := types.MakePoolRef(creatorPrincipal, poolID)

	err := s.store.View(func(tx store.Tx) error {
		var pool types.DataPool
		if err := getPool(tx, poolRef, &pool); err != nil {
			return err
		}
		if callerPrincipal != pool.CreatorPrincipal {
			return types.NewUnauthorizedAccessError(types.ErrCodeUnauthorizedAccess, "only the pool creator controls escrow funding")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	account := VaultAccount(poolRef)
	if err := s.vault.Deposit(ctx, account, amount); err != nil {
		return 0, err
	}
	return s.vault.Balance(ctx, account)
}

// Contribute attaches a record to a pool. The contribution's sequence id is
// the pool's collected counter before increment, so ids are dense 0..n-1 and
// stable. Pool and contribution mutate in one transaction: either both apply
// or neither does.
//
// Whether the record was authored about or by the contributor is a policy
// choice this ledger deliberately does not enforce; a mismatch is surfaced
// as a security log line for callers that care.
func (s *Service) Contribute(ctx context.Context, contributorPrincipal, creatorPrincipal string, poolID uint64, recordID string) (*types.Contribution, error) {
	poolRef := types.MakePoolRef(creatorPrincipal, poolID)
	poolKey := store.PoolKey(poolRef)

	var contribution types.Contribution
	var linkageMismatch bool

	err := s.store.Update(func(tx store.Tx) error {
		var contributor types.Participant
		if err := registry.GetParticipant(tx, contributorPrincipal, &contributor); err != nil {
			return err
		}

		var pool types.DataPool
		if err := getPool(tx, poolRef, &pool); err != nil {
			return err
		}
		if pool.Collected >= pool.TotalNeeded {
			return types.NewPoolFullError(types.ErrCodePoolFull, "pool has already collected the needed number of records")
		}

		var record types.MedicalRecord
		err := tx.Get(store.RecordKey(recordID), &record)
		if err == store.ErrKeyNotFound {
			return types.NewNotFoundError(types.ErrCodeRecordNotFound, "no record with the given id")
		}
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to load record", err)
		}
		linkageMismatch = record.PatientPrincipal != contributorPrincipal && record.DoctorPrincipal != contributorPrincipal

		contribKey := store.ContributionKey(poolRef, recordID, contributorPrincipal)
		exists, err := tx.Has(contribKey)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to check contribution key", err)
		}
		if exists {
			return types.NewAlreadyExistsError(types.ErrCodeContributionExists, "this contributor already contributed this record to the pool")
		}

		contribution = types.Contribution{
			ID:                   pool.Collected,
			PoolRef:              poolRef,
			RecordID:             recordID,
			ContributorPrincipal: contributorPrincipal,
			Paid:                 false,
		}
		pool.Collected++

		if err := tx.Put(contribKey, &contribution); err != nil {
			return err
		}
		return tx.Put(poolKey, &pool)
	})
	if err != nil {
		monitoring.RecordOperation("contribute", "failure")
		return nil, err
	}

	if linkageMismatch {
		s.logger.Security("contribution_record_linkage_mismatch", contributorPrincipal, map[string]interface{}{
			"pool_ref":  poolRef,
			"record_id": recordID,
		})
	}

	monitoring.RecordOperation("contribute", "success")
	s.logger.Audit(contributorPrincipal, "contribute", poolKey, true, map[string]interface{}{
		"record_id":       recordID,
		"contribution_id": contribution.ID,
	})
	return &contribution, nil
}

// Withdraw pays a contribution from the pool's escrow. The caller must be
// the contribution's contributor, the contribution must be unpaid, and the
// escrow transfer commits together with the paid flag: if either side fails
// the other is rolled back, so a contribution is paid exactly once or not
// at all.
func (s *Service) Withdraw(ctx context.Context, callerPrincipal, creatorPrincipal string, poolID uint64, contributionID uint64) (*types.Contribution, error) {
	poolRef := types.MakePoolRef(creatorPrincipal, poolID)

	var contribution types.Contribution
	var amount uint64
	transferred := false

	err := s.store.Update(func(tx store.Tx) error {
		var pool types.DataPool
		if err := getPool(tx, poolRef, &pool); err != nil {
			return err
		}

		contribKey, err := findContribution(tx, poolRef, contributionID, &contribution)
		if err != nil {
			return err
		}
		if callerPrincipal != contribution.ContributorPrincipal {
			return types.NewUnauthorizedAccessError(types.ErrCodeUnauthorizedAccess, "only the contributor may withdraw this contribution")
		}
		if contribution.Paid {
			return types.NewAlreadyPaidError(types.ErrCodeAlreadyPaid, "this contribution has already been paid out")
		}

		contribution.Paid = true
		if err := tx.Put(contribKey, &contribution); err != nil {
			return err
		}

		// Stage the transfer last: a failure here discards the buffered
		// paid flag with the rest of the transaction.
		amount = pool.PricePerRecord
		if err := s.vault.Transfer(ctx, VaultAccount(poolRef), callerPrincipal, amount); err != nil {
			return err
		}
		transferred = true
		return nil
	})
	if err != nil {
		if transferred {
			// The flag commit failed after the funds moved; compensate so
			// neither side of the settlement applies.
			if refundErr := s.vault.Transfer(ctx, callerPrincipal, VaultAccount(poolRef), amount); refundErr != nil {
				s.logger.Settlement(callerPrincipal, poolRef, amount, false, map[string]interface{}{
					"error":        err.Error(),
					"refund_error": refundErr.Error(),
				})
			}
		}
		monitoring.RecordOperation("withdraw", "failure")
		s.logger.Settlement(callerPrincipal, poolRef, amount, false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	monitoring.RecordOperation("withdraw", "success")
	monitoring.RecordSettlement(amount)
	s.logger.Settlement(callerPrincipal, poolRef, amount, true, map[string]interface{}{"contribution_id": contributionID})
	s.bus.Emit(events.TypeContributionPaid, events.ContributionPaid{
		PoolRef:              poolRef,
		ContributionID:       contribution.ID,
		ContributorPrincipal: contribution.ContributorPrincipal,
		Amount:               amount,
		Timestamp:            time.Now().UTC(),
	})

	return &contribution, nil
}

// GetPool returns a pool by creator and id
func (s *Service) GetPool(ctx context.Context, creatorPrincipal string, poolID uint64) (*types.DataPool, error) {
	var pool types.DataPool
	err := s.store.View(func(tx store.Tx) error {
		return getPool(tx, types.MakePoolRef(creatorPrincipal, poolID), &pool)
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListContributions returns every contribution attached to a pool
func (s *Service) ListContributions(ctx context.Context, creatorPrincipal string, poolID uint64) ([]*types.Contribution, error) {
	poolRef := types.MakePoolRef(creatorPrincipal, poolID)
	var contributions []*types.Contribution
	err := s.store.View(func(tx store.Tx) error {
		return tx.Scan(store.ContributionPrefix(poolRef), func(key string, value []byte) error {
			var contribution types.Contribution
			if err := json.Unmarshal(value, &contribution); err != nil {
				return types.NewInternalError(types.ErrCodeInternalError, "failed to decode contribution", err)
			}
			contributions = append(contributions, &contribution)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return contributions, nil
}

// EscrowBalance returns the units held for a pool's escrow account
func (s *Service) EscrowBalance(ctx context.Context, creatorPrincipal string, poolID uint64) (uint64, error) {
	return s.vault.Balance(ctx, VaultAccount(types.MakePoolRef(creatorPrincipal, poolID)))
}

func getPool(tx store.Tx, poolRef string, into *types.DataPool) error {
	err := tx.Get(store.PoolKey(poolRef), into)
	if err == store.ErrKeyNotFound {
		return types.NewNotFoundError(types.ErrCodePoolNotFound, "no pool with the given creator and id")
	}
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to load pool", err)
	}
	return nil
}

func findContribution(tx store.Tx, poolRef string, contributionID uint64, into *types.Contribution) (string, error) {
	foundKey := ""
	err := tx.Scan(store.ContributionPrefix(poolRef), func(key string, value []byte) error {
		var contribution types.Contribution
		if err := json.Unmarshal(value, &contribution); err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to decode contribution", err)
		}
		if contribution.ID == contributionID {
			*into = contribution
			foundKey = key
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if foundKey == "" {
		return "", types.NewNotFoundError(types.ErrCodeContributionNotFound, "no contribution with the given id in this pool")
	}
	return foundKey, nil
}

func validatePool(name, description string, totalNeeded uint64) error {
	if name == "" || len(name) > types.MaxPoolNameLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "pool name must be non-empty and within length bound",
			map[string]interface{}{"max_len": types.MaxPoolNameLen})
	}
	if len(description) > types.MaxPoolDescriptionLen {
		return types.NewValidationError(types.ErrCodeInvalidInput, "pool description exceeds length bound",
			map[string]interface{}{"max_len": types.MaxPoolDescriptionLen})
	}
	if totalNeeded == 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "pool capacity must be positive", nil)
	}
	return nil
}
