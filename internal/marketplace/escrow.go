package marketplace

import (
	"context"
	"sync"

	"github.com/0x0wen/MediLock/pkg/types"
)

// Vault is the external fund-custody capability a pool references. The
// ledger records the authorization to move funds; the vault moves them.
type Vault interface {
	// Balance returns the units held for an account
	Balance(ctx context.Context, account string) (uint64, error)
	// Deposit credits an account
	Deposit(ctx context.Context, account string, amount uint64) error
	// Transfer moves units between accounts, failing with an
	// InsufficientEscrow error when the source holds too little
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// VaultAccount returns the escrow account backing a pool
func VaultAccount(poolRef string) string {
	return "vault/" + poolRef
}

// MemoryVault is an in-process Vault for development and tests. Production
// custody is an external capability wired in at service startup.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryVault creates a vault seeded with the given balances
func NewMemoryVault(initial map[string]uint64) *MemoryVault {
	balances := make(map[string]uint64, len(initial))
	for account, amount := range initial {
		balances[account] = amount
	}
	return &MemoryVault{balances: balances}
}

// Balance implements Vault
func (v *MemoryVault) Balance(ctx context.Context, account string) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account], nil
}

// Deposit implements Vault
func (v *MemoryVault) Deposit(ctx context.Context, account string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] += amount
	return nil
}

// Transfer implements Vault
func (v *MemoryVault) Transfer(ctx context.Context, from, to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balances[from] < amount {
		return types.NewInvalidStateError(types.ErrCodeInsufficientEscrow, "escrow balance too low for transfer")
	}
	v.balances[from] -= amount
	v.balances[to] += amount
	return nil
}
