package types

import "fmt"

// DataPool expresses demand for records. Collected never exceeds TotalNeeded
// and never decreases.
type DataPool struct {
	ID               uint64 `json:"id"`
	CreatorPrincipal string `json:"creator_principal"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PricePerRecord   uint64 `json:"price_per_record"`
	TotalNeeded      uint64 `json:"total_needed"`
	Collected        uint64 `json:"collected"`
}

// MakePoolRef builds the stable pool reference from its natural keys.
// Pool ids are scoped to their creator.
func MakePoolRef(creatorPrincipal string, poolID uint64) string {
	return fmt.Sprintf("%s/%d", creatorPrincipal, poolID)
}

// Contribution attaches one record to a pool. The sequence id is assigned
// from the pool's collected counter at creation, so ids are dense and stable.
// Paid flips false to true exactly once, on withdrawal.
type Contribution struct {
	ID                   uint64 `json:"id"`
	PoolRef              string `json:"pool_ref"`
	RecordID             string `json:"record_id"`
	ContributorPrincipal string `json:"contributor_principal"`
	Paid                 bool   `json:"paid"`
}
