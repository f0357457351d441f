package domain

import "math/big"

// InvestorRecord is the per-investor contribution and entitlement record.
// Records are created on first purchase and never deleted.
type InvestorRecord struct {
	Investor Address
	Seq      int64 // creation order, 1-based

	Investments      map[Asset]*big.Int // raw amount paid per asset
	TokenEntitlement *big.Int           // purchased, unclaimed sale tokens
	BonusEntitlement *big.Int           // early-investor bonus, unclaimed
	ClaimedAmount    *big.Int           // sale tokens released by the claim

	Claimed         bool
	IsEarlyInvestor bool
	FirstPurchaseAt int64 // unix seconds
}

// NewInvestorRecord creates an empty record.
func NewInvestorRecord(investor Address, seq int64, at int64) *InvestorRecord {
	return &InvestorRecord{
		Investor:         investor,
		Seq:              seq,
		Investments:      make(map[Asset]*big.Int),
		TokenEntitlement: new(big.Int),
		BonusEntitlement: new(big.Int),
		ClaimedAmount:    new(big.Int),
		FirstPurchaseAt:  at,
	}
}

// Clone returns a deep copy of the record.
func (r *InvestorRecord) Clone() *InvestorRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Investments = make(map[Asset]*big.Int, len(r.Investments))
	for a, v := range r.Investments {
		clone.Investments[a] = CloneAmount(v)
	}
	clone.TokenEntitlement = CloneAmount(r.TokenEntitlement)
	clone.BonusEntitlement = CloneAmount(r.BonusEntitlement)
	clone.ClaimedAmount = CloneAmount(r.ClaimedAmount)
	return &clone
}

// Investment returns a copy of the amount paid in asset.
func (r *InvestorRecord) Investment(a Asset) *big.Int {
	if r == nil {
		return new(big.Int)
	}
	return CloneAmount(r.Investments[a])
}

// Claimable returns the total sale tokens the investor can claim.
func (r *InvestorRecord) Claimable() *big.Int {
	if r == nil || r.Claimed {
		return new(big.Int)
	}
	total := CloneAmount(r.TokenEntitlement)
	return total.Add(total, CloneAmount(r.BonusEntitlement))
}

// HasInvestments reports whether any recorded contribution is non-zero.
func (r *InvestorRecord) HasInvestments() bool {
	if r == nil {
		return false
	}
	for _, v := range r.Investments {
		if v != nil && v.Sign() > 0 {
			return true
		}
	}
	return false
}
