package presale

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
)

// TransferTokensToPresale deposits amount sale tokens from the owner into
// custody and makes them available for sale. The owner must have approved
// the custody account. Allowed until the sale ends.
func (e *Engine) TransferTokensToPresale(ctx context.Context, caller domain.Address, amount *big.Int) error {
	return e.execute(ctx, "fund", func(ctx context.Context) error {
		t, err := e.beginFunding(ctx, caller, amount)
		if err != nil {
			return err
		}
		t.state.TotalSupply.Add(t.state.TotalSupply, amount)
		t.state.TokensAvailable.Add(t.state.TokensAvailable, amount)
		t.record(&domain.JournalEntry{Kind: domain.JournalFund, TokenAmount: amount})
		return e.commitFunding(ctx, t, caller, amount)
	})
}

// FundBonusPool deposits amount sale tokens from the owner into the
// early-investor bonus pool. Same rules as TransferTokensToPresale.
func (e *Engine) FundBonusPool(ctx context.Context, caller domain.Address, amount *big.Int) error {
	return e.execute(ctx, "fund_bonus", func(ctx context.Context) error {
		t, err := e.beginFunding(ctx, caller, amount)
		if err != nil {
			return err
		}
		t.state.BonusPool.Add(t.state.BonusPool, amount)
		t.record(&domain.JournalEntry{Kind: domain.JournalBonusFund, TokenAmount: amount})
		return e.commitFunding(ctx, t, caller, amount)
	})
}

func (e *Engine) beginFunding(ctx context.Context, caller domain.Address, amount *big.Int) (*txn, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	now := e.now()
	if now >= e.cfg.EndTime {
		return nil, domain.ErrFundingClosed
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	allowance, err := e.token.Allowance(ctx, caller, e.custody)
	if err != nil {
		return nil, fmt.Errorf("read sale token allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return nil, domain.ErrInsufficientAllowance
	}
	return e.current.Load().begin(caller, now), nil
}

func (e *Engine) commitFunding(ctx context.Context, t *txn, caller domain.Address, amount *big.Int) error {
	err := e.apply(ctx, t, func(ctx context.Context) error {
		return e.token.TransferFrom(ctx, e.custody, caller, e.custody, amount)
	})
	if err != nil {
		return err
	}
	e.logger.Info("sale tokens deposited",
		zap.String("kind", string(t.entries[0].Kind)),
		zap.Stringer("amount", amount),
		zap.Stringer("tokens_available", t.state.TokensAvailable),
		zap.Stringer("bonus_pool", t.state.BonusPool),
	)
	return nil
}
