package presale

import (
	"math/big"

	"presale-ledger/internal/conversion"
	"presale-ledger/internal/domain"
)

// Reads are served from the last committed ledger without taking the writer lock.

// Snapshot is a consistent copy of one committed ledger version.
type Snapshot struct {
	Config    *domain.SaleConfig
	State     *domain.LedgerState
	Investors []*domain.InvestorRecord // Seq order
	Phase     domain.Phase
}

// Snapshot returns a copy of the committed ledger.
func (e *Engine) Snapshot() *Snapshot {
	l := e.current.Load()
	s := &Snapshot{
		Config:    e.cfg.Clone(),
		State:     l.state.Clone(),
		Investors: make([]*domain.InvestorRecord, 0, len(l.order)),
		Phase:     e.phaseAt(l, e.now()),
	}
	for _, addr := range l.order {
		s.Investors = append(s.Investors, l.investor(addr).Clone())
	}
	return s
}

// Config returns a copy of the sale configuration.
func (e *Engine) Config() *domain.SaleConfig {
	return e.cfg.Clone()
}

// Converter returns the price converter.
func (e *Engine) Converter() *conversion.Converter {
	return e.conv
}

// Custody returns the account holding raised funds and sale tokens.
func (e *Engine) Custody() domain.Address {
	return e.custody
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() domain.Phase {
	return e.phaseAt(e.current.Load(), e.now())
}

// PresaleStartTime returns the sale start as unix seconds.
func (e *Engine) PresaleStartTime() int64 {
	return e.cfg.StartTime
}

// ClaimTime returns the claim unlock time, 0 when unset.
func (e *Engine) ClaimTime() int64 {
	return e.current.Load().state.ClaimTime
}

// Treasury returns the wallet receiving withdrawn funds.
func (e *Engine) Treasury() domain.Address {
	return e.current.Load().state.Treasury
}

// FundsRaised returns the funds raised in quote base units (6 decimals), so
// 120 USDT reads as 120000000. Every asset is credited in these units.
func (e *Engine) FundsRaised() *big.Int {
	return domain.CloneAmount(e.current.Load().state.FundsRaised)
}

// FundsRaisedWholeUnits returns the funds raised in whole quote units,
// rounded down.
func (e *Engine) FundsRaisedWholeUnits() *big.Int {
	return domain.WholeUnits(e.current.Load().state.FundsRaised, domain.QuoteDecimals)
}

// TokensAvailable returns the sale tokens still for sale.
func (e *Engine) TokensAvailable() *big.Int {
	return domain.CloneAmount(e.current.Load().state.TokensAvailable)
}

// TokenAmountForInvestor returns the purchased, unclaimed tokens of investor.
func (e *Engine) TokenAmountForInvestor(investor domain.Address) *big.Int {
	r := e.current.Load().investor(investor)
	if r == nil {
		return new(big.Int)
	}
	return domain.CloneAmount(r.TokenEntitlement)
}

// ClaimableAmount returns what a claim by investor would release now,
// ignoring the claim window.
func (e *Engine) ClaimableAmount(investor domain.Address) *big.Int {
	l := e.current.Load()
	if l.state.Settlement == domain.PhaseRefunded {
		return new(big.Int)
	}
	return l.investor(investor).Claimable()
}

// Investments returns the amount investor paid in asset.
func (e *Engine) Investments(investor domain.Address, asset domain.Asset) *big.Int {
	return e.current.Load().investor(investor).Investment(asset)
}

// IsEarlyInvestor reports whether investor was classified early.
func (e *Engine) IsEarlyInvestor(investor domain.Address) bool {
	r := e.current.Load().investor(investor)
	return r != nil && r.IsEarlyInvestor
}

// Investor returns a copy of the record of investor.
func (e *Engine) Investor(investor domain.Address) (*domain.InvestorRecord, bool) {
	r := e.current.Load().investor(investor)
	if r == nil {
		return nil, false
	}
	return r.Clone(), true
}

// EstimatedCoinAmountForTokenAmount returns the amount of asset buying tokenAmount.
func (e *Engine) EstimatedCoinAmountForTokenAmount(tokenAmount *big.Int, asset domain.Asset) (*big.Int, error) {
	if !asset.IsValid() {
		return nil, domain.ErrUnknownAsset
	}
	return e.conv.QuoteAmountForTokens(tokenAmount, asset)
}

// EstimatedTokenAmountAvailableWithETH returns the tokens value native coin buys.
func (e *Engine) EstimatedTokenAmountAvailableWithETH(value *big.Int) (*big.Int, error) {
	return e.conv.TokensForNativeAmount(value)
}
