package presale

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
)

// Settlement summarizes the transfers performed by Withdraw or Refund.
type Settlement struct {
	Phase     domain.Phase
	Transfers []Transfer
}

// Transfer is one settlement movement out of custody.
type Transfer struct {
	To     domain.Address
	Asset  domain.Asset
	Amount *big.Int
}

// SetWallet sets the treasury wallet receiving withdrawn funds. Owner only.
func (e *Engine) SetWallet(ctx context.Context, caller, wallet domain.Address) error {
	return e.execute(ctx, "set_wallet", func(ctx context.Context) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		if wallet.IsZero() {
			return domain.ErrInvalidAddress
		}

		t := e.current.Load().begin(caller, e.now())
		previous := t.state.Treasury
		t.state.Treasury = wallet
		t.record(&domain.JournalEntry{
			Kind: domain.JournalSetWallet,
			Note: wallet.String(),
		})
		if err := e.apply(ctx, t, nil); err != nil {
			return err
		}

		e.logger.Info("treasury wallet set",
			zap.String("previous", previous.String()),
			zap.String("wallet", wallet.String()),
		)
		return nil
	})
}

// Withdraw sweeps the custody balance of every payment asset to the treasury.
// Owner only; requires the sale to have ended with the soft cap reached.
// Repeating it sweeps whatever balance arrived since.
func (e *Engine) Withdraw(ctx context.Context, caller domain.Address) (*Settlement, error) {
	result := &Settlement{Phase: domain.PhaseWithdrawn}
	err := e.execute(ctx, "withdraw", func(ctx context.Context) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		now := e.now()
		if err := e.requireEnded(now); err != nil {
			return err
		}
		l := e.current.Load()
		if l.state.Settlement == domain.PhaseRefunded {
			return domain.ErrAlreadySettled
		}
		if l.state.FundsRaised.Cmp(e.cfg.SoftCap) < 0 {
			return domain.ErrSoftCapNotReached
		}

		for _, asset := range domain.Assets {
			payment, err := e.assetLedger(asset)
			if err != nil {
				return err
			}
			balance, err := payment.BalanceOf(ctx, e.custody)
			if err != nil {
				return fmt.Errorf("read %s custody balance: %w", asset, err)
			}
			if balance.Sign() == 0 {
				continue
			}

			t := e.current.Load().begin(caller, now)
			treasury := t.state.Treasury
			t.state.Settlement = domain.PhaseWithdrawn
			t.record(&domain.JournalEntry{
				Kind:        domain.JournalWithdraw,
				Asset:       asset,
				AssetAmount: balance,
				Note:        treasury.String(),
			})
			err = e.apply(ctx, t, func(ctx context.Context) error {
				return payment.Transfer(ctx, e.custody, treasury, balance)
			})
			if err != nil {
				return err
			}

			observability.RecordWithdrawal(string(asset))
			result.Transfers = append(result.Transfers, Transfer{To: treasury, Asset: asset, Amount: balance})
			e.logger.Info("funds withdrawn",
				zap.String("asset", string(asset)),
				zap.Stringer("amount", balance),
				zap.String("treasury", treasury.String()),
			)
		}

		return e.markSettled(ctx, caller, now, domain.PhaseWithdrawn)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refund returns every recorded contribution to its investor. Owner only;
// requires the sale to have ended with the soft cap missed.
//
// Each (investor, asset) transfer commits on its own, in investor creation
// order. If a transfer fails the call stops: refunds already made stay
// recorded, the failing one is reverted, and calling Refund again resumes.
func (e *Engine) Refund(ctx context.Context, caller domain.Address) (*Settlement, error) {
	result := &Settlement{Phase: domain.PhaseRefunded}
	err := e.execute(ctx, "refund", func(ctx context.Context) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		now := e.now()
		if err := e.requireEnded(now); err != nil {
			return err
		}
		l := e.current.Load()
		if l.state.Settlement == domain.PhaseWithdrawn {
			return domain.ErrAlreadySettled
		}
		if l.state.FundsRaised.Cmp(e.cfg.SoftCap) >= 0 {
			return domain.ErrSoftCapReached
		}
		if err := e.checkRefundable(ctx, l); err != nil {
			return err
		}

		for _, addr := range l.order {
			for _, asset := range domain.Assets {
				tr, err := e.refundOne(ctx, caller, now, addr, asset)
				if err != nil {
					return err
				}
				if tr != nil {
					result.Transfers = append(result.Transfers, *tr)
				}
			}
		}

		return e.markSettled(ctx, caller, now, domain.PhaseRefunded)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkRefundable verifies custody holds every outstanding contribution.
func (e *Engine) checkRefundable(ctx context.Context, l *ledger) error {
	owed := make(map[domain.Asset]*big.Int, len(domain.Assets))
	for _, addr := range l.order {
		for asset, v := range l.investor(addr).Investments {
			if owed[asset] == nil {
				owed[asset] = new(big.Int)
			}
			owed[asset].Add(owed[asset], v)
		}
	}

	for _, asset := range domain.Assets {
		need := owed[asset]
		if need == nil || need.Sign() == 0 {
			continue
		}
		payment, err := e.assetLedger(asset)
		if err != nil {
			return err
		}
		balance, err := payment.BalanceOf(ctx, e.custody)
		if err != nil {
			return fmt.Errorf("read %s custody balance: %w", asset, err)
		}
		if balance.Cmp(need) < 0 {
			return fmt.Errorf("%w: custody holds %s %s, refunds need %s",
				domain.ErrInsufficientBalance, balance, asset, need)
		}
	}
	return nil
}

// refundOne returns the contribution of investor in asset, if any. The last
// refunded asset of an investor also clears their entitlements.
func (e *Engine) refundOne(ctx context.Context, caller domain.Address, now int64, investor domain.Address, asset domain.Asset) (*Transfer, error) {
	t := e.current.Load().begin(caller, now)
	r := t.investor(investor)
	amount := r.Investment(asset)
	if amount.Sign() == 0 {
		return nil, nil
	}

	r.Investments[asset] = new(big.Int)
	if !r.HasInvestments() {
		r.TokenEntitlement = new(big.Int)
		r.BonusEntitlement = new(big.Int)
	}
	t.state.Settlement = domain.PhaseRefunded
	t.record(&domain.JournalEntry{
		Kind:        domain.JournalRefund,
		Investor:    investor,
		Asset:       asset,
		AssetAmount: amount,
	})

	payment, err := e.assetLedger(asset)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, t, func(ctx context.Context) error {
		return payment.Transfer(ctx, e.custody, investor, amount)
	})
	if err != nil {
		e.logger.Warn("refund transfer failed",
			zap.String("investor", investor.String()),
			zap.String("asset", string(asset)),
			zap.Stringer("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	observability.RecordRefund(string(asset))
	e.logger.Info("contribution refunded",
		zap.String("investor", investor.String()),
		zap.String("asset", string(asset)),
		zap.Stringer("amount", amount),
	)
	return &Transfer{To: investor, Asset: asset, Amount: amount}, nil
}

// markSettled persists the settlement marker when no transfer carried it,
// journaling the transition.
func (e *Engine) markSettled(ctx context.Context, caller domain.Address, now int64, phase domain.Phase) error {
	l := e.current.Load()
	if l.state.Settlement == phase {
		return nil
	}
	t := l.begin(caller, now)
	t.state.Settlement = phase
	t.record(&domain.JournalEntry{
		Kind: domain.JournalSettle,
		Note: phase.String(),
	})
	return e.apply(ctx, t, nil)
}
