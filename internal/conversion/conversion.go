// Package conversion converts between payment-asset amounts and sale-token
// amounts. All math is integer and every division floors, so the sale never
// credits more tokens than the funds received pay for.
package conversion

import (
	"fmt"
	"math/big"

	"presale-ledger/internal/domain"
)

// Converter holds the fixed sale rates.
type Converter struct {
	pricePerToken *big.Int // quote base units per whole sale token
	nativePrice   *big.Int // quote base units per whole native coin
	tokenUnit     *big.Int // 10^tokenDecimals
	nativeUnit    *big.Int // 10^18
}

// New creates a Converter. Both prices are expressed in quote base units
// (domain.QuoteDecimals) per whole unit.
func New(pricePerToken, nativePrice *big.Int, tokenDecimals int32) (*Converter, error) {
	if pricePerToken == nil || pricePerToken.Sign() <= 0 {
		return nil, fmt.Errorf("price per token must be positive")
	}
	if nativePrice == nil || nativePrice.Sign() <= 0 {
		return nil, fmt.Errorf("native price must be positive")
	}
	if tokenDecimals < 0 {
		return nil, fmt.Errorf("token decimals must not be negative")
	}
	return &Converter{
		pricePerToken: new(big.Int).Set(pricePerToken),
		nativePrice:   new(big.Int).Set(nativePrice),
		tokenUnit:     domain.Pow10(tokenDecimals),
		nativeUnit:    domain.Pow10(domain.NativeDecimals),
	}, nil
}

// FromConfig creates a Converter from the sale configuration.
func FromConfig(cfg *domain.SaleConfig) (*Converter, error) {
	return New(cfg.PricePerToken, cfg.NativePrice, cfg.TokenDecimals)
}

// PricePerToken returns the quote price of one whole sale token.
func (c *Converter) PricePerToken() *big.Int {
	return new(big.Int).Set(c.pricePerToken)
}

// NativePrice returns the quote price of one whole native coin.
func (c *Converter) NativePrice() *big.Int {
	return new(big.Int).Set(c.nativePrice)
}

// QuoteForTokens returns the quote amount paying for tokenAmount.
func (c *Converter) QuoteForTokens(tokenAmount *big.Int) *big.Int {
	q := new(big.Int).Mul(tokenAmount, c.pricePerToken)
	return q.Quo(q, c.tokenUnit)
}

// TokensForQuote returns the tokens a quote amount buys.
func (c *Converter) TokensForQuote(quote *big.Int) *big.Int {
	t := new(big.Int).Mul(quote, c.tokenUnit)
	return t.Quo(t, c.pricePerToken)
}

// QuoteAmountForTokens returns the amount of asset required to buy tokenAmount.
func (c *Converter) QuoteAmountForTokens(tokenAmount *big.Int, asset domain.Asset) (*big.Int, error) {
	if tokenAmount == nil || tokenAmount.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	quote := c.QuoteForTokens(tokenAmount)
	return c.FromQuote(quote, asset)
}

// TokensForNativeAmount returns the tokens nativeAmount buys at the fixed
// native rate.
func (c *Converter) TokensForNativeAmount(nativeAmount *big.Int) (*big.Int, error) {
	if nativeAmount == nil || nativeAmount.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	quote, err := c.NormalizeToQuoteUnit(nativeAmount, domain.AssetNative)
	if err != nil {
		return nil, err
	}
	return c.TokensForQuote(quote), nil
}

// NormalizeToQuoteUnit rescales an asset amount to the shared quote base.
func (c *Converter) NormalizeToQuoteUnit(amount *big.Int, asset domain.Asset) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	switch {
	case asset == domain.AssetNative:
		q := new(big.Int).Mul(amount, c.nativePrice)
		return q.Quo(q, c.nativeUnit), nil
	case asset.IsStable():
		return Rescale(amount, asset.Decimals(), domain.QuoteDecimals), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAsset, asset)
}

// FromQuote converts a quote amount into raw units of asset.
func (c *Converter) FromQuote(quote *big.Int, asset domain.Asset) (*big.Int, error) {
	switch {
	case asset == domain.AssetNative:
		n := new(big.Int).Mul(quote, c.nativeUnit)
		return n.Quo(n, c.nativePrice), nil
	case asset.IsStable():
		return Rescale(quote, domain.QuoteDecimals, asset.Decimals()), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAsset, asset)
}

// Rescale moves amount from one decimal base to another, flooring when the
// target base is coarser.
func Rescale(amount *big.Int, from, to int32) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case from < to:
		return new(big.Int).Mul(amount, domain.Pow10(to-from))
	default:
		return new(big.Int).Quo(amount, domain.Pow10(from-to))
	}
}
