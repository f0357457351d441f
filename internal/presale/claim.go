package presale

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
)

// Claim releases the whole entitlement of investor (purchased plus bonus).
// Anyone may trigger it; tokens always go to the investor. Claims stay locked
// while funds raised are below the soft cap, since the sale may yet be refunded.
func (e *Engine) Claim(ctx context.Context, caller, investor domain.Address) (*big.Int, error) {
	var claimed *big.Int
	err := e.execute(ctx, "claim", func(ctx context.Context) error {
		now := e.now()
		l := e.current.Load()
		if err := e.requireClaimWindow(l, now); err != nil {
			return err
		}
		if l.state.Settlement == domain.PhaseRefunded {
			return domain.ErrSaleRefunded
		}
		if l.state.FundsRaised.Cmp(e.cfg.SoftCap) < 0 {
			return domain.ErrClaimsLocked
		}

		amount := l.investor(investor).Claimable()
		if amount.Sign() == 0 {
			return domain.ErrNothingToClaim
		}

		t := l.begin(caller, now)
		r := t.investor(investor)
		r.TokenEntitlement = new(big.Int)
		r.BonusEntitlement = new(big.Int)
		r.ClaimedAmount = new(big.Int).Set(amount)
		r.Claimed = true
		t.record(&domain.JournalEntry{
			Kind:        domain.JournalClaim,
			Investor:    investor,
			TokenAmount: amount,
		})

		err := e.apply(ctx, t, func(ctx context.Context) error {
			return e.token.Transfer(ctx, e.custody, investor, amount)
		})
		if err != nil {
			return err
		}

		observability.RecordClaim(amount, e.cfg.TokenDecimals)
		e.logger.Info("claim committed",
			zap.String("investor", investor.String()),
			zap.String("caller", caller.String()),
			zap.Stringer("amount", amount),
		)
		claimed = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// SetClaimTime sets the claim unlock time. Owner only; ts must not precede
// the end of the sale.
func (e *Engine) SetClaimTime(ctx context.Context, caller domain.Address, ts int64) error {
	return e.execute(ctx, "set_claim_time", func(ctx context.Context) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		if ts < e.cfg.EndTime {
			return domain.ErrInvalidClaimTime
		}

		t := e.current.Load().begin(caller, e.now())
		t.state.ClaimTime = ts
		t.record(&domain.JournalEntry{
			Kind: domain.JournalSetClaimTime,
			Note: time.Unix(ts, 0).UTC().Format(time.RFC3339),
		})
		if err := e.apply(ctx, t, nil); err != nil {
			return err
		}

		e.logger.Info("claim time set", zap.Int64("claim_time", ts))
		return nil
	})
}
