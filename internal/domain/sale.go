package domain

import (
	"fmt"
	"math/big"
)

// SaleConfig holds the presale parameters fixed at construction.
// Treasury and ClaimTime are initial values; the owner may change them later
// and the live values are kept in LedgerState.
type SaleConfig struct {
	StartTime     int64    // unix seconds, inclusive
	EndTime       int64    // unix seconds, exclusive
	ClaimTime     int64    // unix seconds, 0 = unset
	PricePerToken *big.Int // quote base units per whole sale token
	NativePrice   *big.Int // quote base units per whole native coin
	SoftCap       *big.Int // quote base units
	TokenDecimals int32    // decimals of the sale token
	Owner         Address
	Treasury      Address
}

// Validate checks the configuration invariants.
func (c *SaleConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("sale config is nil")
	}
	if c.StartTime >= c.EndTime {
		return fmt.Errorf("start time %d must precede end time %d", c.StartTime, c.EndTime)
	}
	if c.ClaimTime != 0 && c.ClaimTime < c.EndTime {
		return ErrInvalidClaimTime
	}
	if c.PricePerToken == nil || c.PricePerToken.Sign() <= 0 {
		return fmt.Errorf("price per token must be positive")
	}
	if c.NativePrice == nil || c.NativePrice.Sign() <= 0 {
		return fmt.Errorf("native price must be positive")
	}
	if c.SoftCap == nil || c.SoftCap.Sign() < 0 {
		return fmt.Errorf("soft cap must not be negative")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("token decimals %d out of range", c.TokenDecimals)
	}
	if c.Owner.IsZero() {
		return fmt.Errorf("owner is required")
	}
	if c.Treasury.IsZero() {
		return fmt.Errorf("treasury wallet is required")
	}
	return nil
}

// Clone returns a deep copy of the config.
func (c *SaleConfig) Clone() *SaleConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PricePerToken = CloneAmount(c.PricePerToken)
	clone.NativePrice = CloneAmount(c.NativePrice)
	clone.SoftCap = CloneAmount(c.SoftCap)
	return &clone
}

// Phase is the lifecycle phase of the presale.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseActive    Phase = "ACTIVE"
	PhaseEnded     Phase = "ENDED"
	PhaseWithdrawn Phase = "WITHDRAWN"
	PhaseRefunded  Phase = "REFUNDED"
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	return string(p)
}

// IsSettled reports whether the phase is one of the terminal settlement phases.
func (p Phase) IsSettled() bool {
	return p == PhaseWithdrawn || p == PhaseRefunded
}
