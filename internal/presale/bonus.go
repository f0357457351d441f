package presale

import (
	"fmt"
	"math/big"
	"time"
)

// MaxBonusBps is 100% in basis points.
const MaxBonusBps = 10_000

// BonusPolicy classifies early investors and sizes their bonus.
//
// An investor is early when classified at their first purchase and every
// configured limit holds: their creation order is within MaxEarlyInvestors and
// the purchase happened within Window after the sale start. A policy with no
// limit configured marks nobody as early. Classification never changes later.
type BonusPolicy struct {
	MaxEarlyInvestors int64
	Window            time.Duration
	BonusBps          int64 // bonus per purchase of an early investor, of the tokens bought
}

// Validate checks the policy bounds.
func (p BonusPolicy) Validate() error {
	if p.MaxEarlyInvestors < 0 {
		return fmt.Errorf("bonus: max early investors %d is negative", p.MaxEarlyInvestors)
	}
	if p.Window < 0 {
		return fmt.Errorf("bonus: window %s is negative", p.Window)
	}
	if p.BonusBps < 0 || p.BonusBps > MaxBonusBps {
		return fmt.Errorf("bonus: bps %d out of range [0, %d]", p.BonusBps, MaxBonusBps)
	}
	return nil
}

// Enabled reports whether any early-investor limit is configured.
func (p BonusPolicy) Enabled() bool {
	return p.MaxEarlyInvestors > 0 || p.Window > 0
}

// IsEarly classifies an investor created with seq at unix time `at`.
func (p BonusPolicy) IsEarly(seq, at, startTime int64) bool {
	if !p.Enabled() {
		return false
	}
	if p.MaxEarlyInvestors > 0 && seq > p.MaxEarlyInvestors {
		return false
	}
	if p.Window > 0 && at >= startTime+int64(p.Window/time.Second) {
		return false
	}
	return true
}

// Bonus returns the bonus for buying tokens, before the pool cap.
func (p BonusPolicy) Bonus(tokens *big.Int) *big.Int {
	b := new(big.Int).Mul(tokens, big.NewInt(p.BonusBps))
	return b.Quo(b, big.NewInt(MaxBonusBps))
}
