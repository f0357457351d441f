package presale

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
)

// Receipt describes a committed purchase.
type Receipt struct {
	Investor    domain.Address
	Asset       domain.Asset
	AssetAmount *big.Int // paid, in asset base units
	TokenAmount *big.Int
	BonusAmount *big.Int
	QuoteAmount *big.Int // credited to funds raised
	Version     int64
}

// BuyWithUSDT buys tokenAmount sale tokens paying USDT from caller's allowance.
func (e *Engine) BuyWithUSDT(ctx context.Context, caller domain.Address, tokenAmount *big.Int) (*Receipt, error) {
	return e.BuyWithStable(ctx, domain.AssetUSDT, caller, tokenAmount)
}

// BuyWithUSDC buys tokenAmount sale tokens paying USDC from caller's allowance.
func (e *Engine) BuyWithUSDC(ctx context.Context, caller domain.Address, tokenAmount *big.Int) (*Receipt, error) {
	return e.BuyWithStable(ctx, domain.AssetUSDC, caller, tokenAmount)
}

// BuyWithDAI buys tokenAmount sale tokens paying DAI from caller's allowance.
func (e *Engine) BuyWithDAI(ctx context.Context, caller domain.Address, tokenAmount *big.Int) (*Receipt, error) {
	return e.BuyWithStable(ctx, domain.AssetDAI, caller, tokenAmount)
}

// BuyWithStable buys tokenAmount sale tokens paying a stablecoin. The payment
// is pulled from caller with TransferFrom; the custody account must be
// approved for at least the quoted amount.
func (e *Engine) BuyWithStable(ctx context.Context, asset domain.Asset, caller domain.Address, tokenAmount *big.Int) (*Receipt, error) {
	if !asset.IsStable() {
		return nil, fmt.Errorf("%w: %q is not a stablecoin", domain.ErrUnknownAsset, asset)
	}

	var receipt *Receipt
	err := e.execute(ctx, "buy_"+string(asset), func(ctx context.Context) error {
		now := e.now()
		if err := e.requirePurchaseWindow(now); err != nil {
			return err
		}
		if tokenAmount == nil || tokenAmount.Sign() <= 0 {
			return domain.ErrInvalidAmount
		}

		required, err := e.conv.QuoteAmountForTokens(tokenAmount, asset)
		if err != nil {
			return err
		}
		if required.Sign() == 0 {
			return fmt.Errorf("%w: token amount below the smallest payable unit", domain.ErrInvalidAmount)
		}

		payment, err := e.assetLedger(asset)
		if err != nil {
			return err
		}
		allowance, err := payment.Allowance(ctx, caller, e.custody)
		if err != nil {
			return fmt.Errorf("read %s allowance: %w", asset, err)
		}
		if allowance.Cmp(required) < 0 {
			return domain.ErrInsufficientAllowance
		}

		quote, err := e.conv.NormalizeToQuoteUnit(required, asset)
		if err != nil {
			return err
		}

		receipt, err = e.purchase(ctx, caller, asset, required, tokenAmount, quote, now,
			func(ctx context.Context) error {
				return payment.TransferFrom(ctx, e.custody, caller, e.custody, required)
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// BuyWithETH buys sale tokens with value native coin from caller. The whole
// value is booked; tokens are floored at the fixed native rate. Like the
// stablecoins, the payment is pulled with TransferFrom, so caller must have
// approved the custody account for at least value.
func (e *Engine) BuyWithETH(ctx context.Context, caller domain.Address, value *big.Int) (*Receipt, error) {
	var receipt *Receipt
	err := e.execute(ctx, "buy_"+string(domain.AssetNative), func(ctx context.Context) error {
		now := e.now()
		if err := e.requirePurchaseWindow(now); err != nil {
			return err
		}
		if value == nil || value.Sign() <= 0 {
			return domain.ErrInvalidAmount
		}

		tokens, err := e.conv.TokensForNativeAmount(value)
		if err != nil {
			return err
		}
		if tokens.Sign() == 0 {
			return fmt.Errorf("%w: value buys no tokens", domain.ErrInvalidAmount)
		}
		quote, err := e.conv.NormalizeToQuoteUnit(value, domain.AssetNative)
		if err != nil {
			return err
		}

		payment, err := e.assetLedger(domain.AssetNative)
		if err != nil {
			return err
		}
		allowance, err := payment.Allowance(ctx, caller, e.custody)
		if err != nil {
			return fmt.Errorf("read %s allowance: %w", domain.AssetNative, err)
		}
		if allowance.Cmp(value) < 0 {
			return domain.ErrInsufficientAllowance
		}

		receipt, err = e.purchase(ctx, caller, domain.AssetNative, value, tokens, quote, now,
			func(ctx context.Context) error {
				return payment.TransferFrom(ctx, e.custody, caller, e.custody, value)
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) purchase(
	ctx context.Context,
	caller domain.Address,
	asset domain.Asset,
	paid, tokens, quote *big.Int,
	now int64,
	pay func(ctx context.Context) error,
) (*Receipt, error) {
	t := e.current.Load().begin(caller, now)
	_, bonus, err := t.recordPurchase(caller, asset, paid, tokens, quote, e.bonus, e.cfg.StartTime)
	if err != nil {
		return nil, err
	}

	if err := e.apply(ctx, t, pay); err != nil {
		return nil, err
	}

	observability.RecordPurchase(string(asset), paid, asset.Decimals())
	e.logger.Info("purchase committed",
		zap.String("investor", caller.String()),
		zap.String("asset", string(asset)),
		zap.Stringer("paid", paid),
		zap.Stringer("tokens", tokens),
		zap.Stringer("bonus", bonus),
		zap.Int64("version", t.state.Version),
	)

	return &Receipt{
		Investor:    caller,
		Asset:       asset,
		AssetAmount: new(big.Int).Set(paid),
		TokenAmount: new(big.Int).Set(tokens),
		BonusAmount: bonus,
		QuoteAmount: new(big.Int).Set(quote),
		Version:     t.state.Version,
	}, nil
}
