package presale

import (
	"math/big"

	"presale-ledger/internal/domain"
)

// ledger is a committed, immutable ledger version.
type ledger struct {
	state     *domain.LedgerState
	investors map[domain.Address]*domain.InvestorRecord
	order     []domain.Address // Seq order
}

func newLedger(state *domain.LedgerState) *ledger {
	return &ledger{
		state:     state,
		investors: make(map[domain.Address]*domain.InvestorRecord),
	}
}

func (l *ledger) investor(addr domain.Address) *domain.InvestorRecord {
	return l.investors[addr]
}

func (l *ledger) begin(actor domain.Address, now int64) *txn {
	return &txn{
		base:    l,
		state:   l.state.Clone(),
		staged:  make(map[domain.Address]*domain.InvestorRecord),
		created: make(map[domain.Address]bool),
		actor:   actor,
		now:     now,
	}
}

// txn stages one ledger write on top of a committed version.
type txn struct {
	base    *ledger
	state   *domain.LedgerState
	staged  map[domain.Address]*domain.InvestorRecord
	created map[domain.Address]bool
	touched []domain.Address // first-touch order
	entries []*domain.JournalEntry
	actor   domain.Address
	now     int64
}

// investor returns the staged copy of an existing record, or nil.
func (t *txn) investor(addr domain.Address) *domain.InvestorRecord {
	if r, ok := t.staged[addr]; ok {
		return r
	}
	base := t.base.investor(addr)
	if base == nil {
		return nil
	}
	r := base.Clone()
	t.staged[addr] = r
	t.touched = append(t.touched, addr)
	return r
}

func (t *txn) createInvestor(addr domain.Address) *domain.InvestorRecord {
	t.state.InvestorCount++
	r := domain.NewInvestorRecord(addr, t.state.InvestorCount, t.now)
	t.staged[addr] = r
	t.created[addr] = true
	t.touched = append(t.touched, addr)
	return r
}

func (t *txn) record(e *domain.JournalEntry) {
	e.Actor = t.actor
	e.Timestamp = t.now
	e.AssetAmount = domain.CloneAmount(e.AssetAmount)
	e.TokenAmount = domain.CloneAmount(e.TokenAmount)
	e.QuoteAmount = domain.CloneAmount(e.QuoteAmount)
	t.entries = append(t.entries, e)
}

// changeset stamps the next version and returns the after-images.
func (t *txn) changeset() *domain.Changeset {
	version := t.base.state.Version + 1
	t.state.Version = version
	t.state.UpdatedAt = t.now
	stampEntries(t.entries, version)

	cs := &domain.Changeset{State: t.state}
	for _, addr := range t.touched {
		cs.Investors = append(cs.Investors, t.staged[addr])
	}
	return cs
}

// revert returns the before-images of everything the transaction touched.
func (t *txn) revert() *domain.Changeset {
	cs := &domain.Changeset{State: t.base.state}
	for _, addr := range t.touched {
		if t.created[addr] {
			cs.Dropped = append(cs.Dropped, addr)
			continue
		}
		cs.Investors = append(cs.Investors, t.base.investor(addr))
	}
	return cs
}

// result builds the ledger version to publish.
func (t *txn) result() *ledger {
	next := &ledger{
		state:     t.state,
		investors: make(map[domain.Address]*domain.InvestorRecord, len(t.base.investors)+len(t.created)),
		order:     t.base.order,
	}
	for addr, r := range t.base.investors {
		next.investors[addr] = r
	}
	for addr, r := range t.staged {
		next.investors[addr] = r
	}
	if len(t.created) > 0 {
		next.order = make([]domain.Address, len(t.base.order), len(t.base.order)+len(t.created))
		copy(next.order, t.base.order)
		for _, addr := range t.touched {
			if t.created[addr] {
				next.order = append(next.order, addr)
			}
		}
	}
	return next
}

// recordPurchase books a purchase: investment, entitlement, supply and funds.
// It fails with ErrInsufficientSupply before touching anything.
func (t *txn) recordPurchase(
	investor domain.Address,
	asset domain.Asset,
	paid, tokens, quote *big.Int,
	policy BonusPolicy,
	startTime int64,
) (*domain.InvestorRecord, *big.Int, error) {
	if tokens.Cmp(t.state.TokensAvailable) > 0 {
		return nil, nil, domain.ErrInsufficientSupply
	}

	r := t.investor(investor)
	if r == nil {
		r = t.createInvestor(investor)
		r.IsEarlyInvestor = policy.IsEarly(r.Seq, t.now, startTime)
		if r.IsEarlyInvestor {
			t.state.EarlyInvestors++
		}
	}

	r.Investments[asset] = new(big.Int).Add(domain.CloneAmount(r.Investments[asset]), paid)
	r.TokenEntitlement.Add(r.TokenEntitlement, tokens)
	t.state.TokensSold.Add(t.state.TokensSold, tokens)
	t.state.TokensAvailable.Sub(t.state.TokensAvailable, tokens)
	t.state.FundsRaised.Add(t.state.FundsRaised, quote)

	t.record(&domain.JournalEntry{
		Kind:        domain.JournalPurchase,
		Investor:    investor,
		Asset:       asset,
		AssetAmount: paid,
		TokenAmount: tokens,
		QuoteAmount: quote,
	})

	bonus := new(big.Int)
	if r.IsEarlyInvestor {
		bonus = policy.Bonus(tokens)
		if bonus.Cmp(t.state.BonusPool) > 0 {
			bonus.Set(t.state.BonusPool)
		}
		if bonus.Sign() > 0 {
			r.BonusEntitlement.Add(r.BonusEntitlement, bonus)
			t.state.BonusPool.Sub(t.state.BonusPool, bonus)
			t.state.BonusAllocated.Add(t.state.BonusAllocated, bonus)
			t.record(&domain.JournalEntry{
				Kind:        domain.JournalBonus,
				Investor:    investor,
				TokenAmount: bonus,
			})
		}
	}
	return r, bonus, nil
}
