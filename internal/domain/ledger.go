package domain

import (
	"fmt"
	"math/big"
)

// LedgerState holds the global presale counters and the owner-mutable settings.
type LedgerState struct {
	FundsRaised     *big.Int // quote base units
	TotalSupply     *big.Int // sale tokens deposited for sale
	TokensSold      *big.Int
	TokensAvailable *big.Int
	BonusPool       *big.Int // sale tokens reserved for bonuses, unallocated
	BonusAllocated  *big.Int

	InvestorCount  int64
	EarlyInvestors int64

	Settlement Phase // "" until withdrawn or refunded
	Treasury   Address
	ClaimTime  int64 // unix seconds, 0 = unset

	Version   int64 // incremented on every commit
	UpdatedAt int64 // unix seconds
}

// NewLedgerState creates an empty ledger.
func NewLedgerState(treasury Address, claimTime int64) *LedgerState {
	return &LedgerState{
		FundsRaised:     new(big.Int),
		TotalSupply:     new(big.Int),
		TokensSold:      new(big.Int),
		TokensAvailable: new(big.Int),
		BonusPool:       new(big.Int),
		BonusAllocated:  new(big.Int),
		Treasury:        treasury,
		ClaimTime:       claimTime,
	}
}

// Clone returns a deep copy of the state.
func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.FundsRaised = CloneAmount(s.FundsRaised)
	clone.TotalSupply = CloneAmount(s.TotalSupply)
	clone.TokensSold = CloneAmount(s.TokensSold)
	clone.TokensAvailable = CloneAmount(s.TokensAvailable)
	clone.BonusPool = CloneAmount(s.BonusPool)
	clone.BonusAllocated = CloneAmount(s.BonusAllocated)
	return &clone
}

// CheckInvariants verifies the supply identity and non-negative counters.
func (s *LedgerState) CheckInvariants() error {
	for name, v := range map[string]*big.Int{
		"funds_raised":     s.FundsRaised,
		"total_supply":     s.TotalSupply,
		"tokens_sold":      s.TokensSold,
		"tokens_available": s.TokensAvailable,
		"bonus_pool":       s.BonusPool,
		"bonus_allocated":  s.BonusAllocated,
	} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("ledger counter %s is negative or unset", name)
		}
	}
	sum := new(big.Int).Add(s.TokensSold, s.TokensAvailable)
	if sum.Cmp(s.TotalSupply) != 0 {
		return fmt.Errorf("tokens sold %s + available %s != total supply %s",
			s.TokensSold, s.TokensAvailable, s.TotalSupply)
	}
	return nil
}

// Changeset carries the images of one ledger write. Stores apply it atomically.
type Changeset struct {
	State     *LedgerState
	Investors []*InvestorRecord

	// Dropped lists investors whose record creation is being rolled back.
	Dropped []Address
}
