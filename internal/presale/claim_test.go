package presale

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-ledger/internal/assetledger"
	"presale-ledger/internal/domain"
)

func TestClaim_Flow(t *testing.T) {
	f := newFixture(t, withSoftCap(usd(100)))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)

	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrClaimWindowNotOpen, "claim time unset")
	assert.Equal(t, "It's not claiming time yet.", err.Error())

	f.clock.Set(endTime)
	require.NoError(t, f.engine.SetClaimTime(f.ctx, owner, claimTime))

	f.clock.Set(claimTime - 1)
	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrClaimWindowNotOpen)

	f.clock.Set(claimTime)
	claimed, err := f.engine.Claim(f.ctx, alice, alice)
	require.NoError(t, err)
	requireAmount(t, tok(1_575_000), claimed, "purchased plus bonus")
	requireAmount(t, tok(1_575_000), f.tokenBalance(alice))
	requireAmount(t, tok(0), f.engine.TokenAmountForInvestor(alice))
	requireAmount(t, tok(0), f.engine.ClaimableAmount(alice))

	r, ok := f.engine.Investor(alice)
	require.True(t, ok)
	assert.True(t, r.Claimed)
	requireAmount(t, tok(1_575_000), r.ClaimedAmount)
	requireAmount(t, usd(120), r.Investment(domain.AssetUSDT), "claims keep the contribution record")

	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
	assert.Equal(t, "No tokens claim.", err.Error())
	requireAmount(t, tok(1_575_000), f.tokenBalance(alice))
}

func TestClaim_NonInvestor(t *testing.T) {
	f := newFixture(t, withSoftCap(usd(100)), withConfig(func(cfg *domain.SaleConfig) { cfg.ClaimTime = claimTime }))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)
	f.clock.Set(claimTime)

	_, err = f.engine.Claim(f.ctx, dave, dave)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaim_LockedBelowSoftCap(t *testing.T) {
	f := newFixture(t, withConfig(func(cfg *domain.SaleConfig) { cfg.ClaimTime = claimTime }))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)
	f.clock.Set(claimTime)

	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrClaimsLocked)
	assert.Equal(t, domain.KindState, domain.KindOf(err))
	requireAmount(t, tok(1_575_000), f.engine.ClaimableAmount(alice))

	_, err = f.engine.Refund(f.ctx, owner)
	require.NoError(t, err)

	// The contribution comes back and no sale tokens ever left custody.
	requireAmount(t, usd(1000), f.balance(domain.AssetUSDT, alice))
	requireAmount(t, tok(0), f.tokenBalance(alice))

	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrSaleRefunded)
	requireAmount(t, tok(0), f.tokenBalance(alice))
}

func TestClaim_OnBehalfGoesToInvestor(t *testing.T) {
	f := newFixture(t, withSoftCap(usd(100)), withConfig(func(cfg *domain.SaleConfig) { cfg.ClaimTime = claimTime }))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)

	f.clock.Set(claimTime)
	_, err = f.engine.Claim(f.ctx, bob, alice)
	require.NoError(t, err)

	requireAmount(t, tok(1_575_000), f.tokenBalance(alice))
	requireAmount(t, tok(0), f.tokenBalance(bob))

	entries, err := f.journal.GetByInvestor(f.ctx, alice)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.JournalClaim, last.Kind)
	assert.Equal(t, bob, last.Actor)
}

func TestClaim_TransferFailureKeepsEntitlement(t *testing.T) {
	f := newFixture(t, withSoftCap(usd(100)), withConfig(func(cfg *domain.SaleConfig) { cfg.ClaimTime = claimTime }))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)

	// Drain custody so the release cannot be paid.
	custodyTokens := f.tokenBalance(custody)
	require.NoError(t, f.token.Transfer(f.ctx, custody, treasury, custodyTokens))

	f.clock.Set(claimTime)
	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	requireAmount(t, tok(1_575_000), f.engine.ClaimableAmount(alice))

	require.NoError(t, f.token.Transfer(f.ctx, treasury, custody, custodyTokens))
	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.NoError(t, err)
}

func TestClaim_UnknownTransferOutcomeKeepsClaim(t *testing.T) {
	f := newFixture(t, withSoftCap(usd(100)), withConfig(func(cfg *domain.SaleConfig) { cfg.ClaimTime = claimTime }))
	f.fund(alice, domain.AssetUSDT, usd(1000))
	_, err := f.engine.BuyWithUSDT(f.ctx, alice, tok(1_500_000))
	require.NoError(t, err)
	f.clock.Set(claimTime)

	// The ledger applies the movement, then the reply is lost.
	f.token.SetTransferHook(func(ctx context.Context, from, to domain.Address, amount *big.Int) error {
		return fmt.Errorf("%w: reply timed out", assetledger.ErrOutcomeUnknown)
	})
	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrTransferUnconfirmed)
	require.ErrorIs(t, err, assetledger.ErrOutcomeUnknown)
	f.token.SetTransferHook(nil)

	requireAmount(t, tok(1_575_000), f.tokenBalance(alice))
	requireAmount(t, tok(0), f.engine.ClaimableAmount(alice), "entitlement stays released")

	_, err = f.engine.Claim(f.ctx, alice, alice)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
	requireAmount(t, tok(1_575_000), f.tokenBalance(alice), "paid exactly once")

	state, investors, err := f.store.Load(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.engine.Snapshot().State.Version, state.Version)
	require.Len(t, investors, 1)
	assert.True(t, investors[0].Claimed)

	entries, err := f.journal.GetByInvestor(f.ctx, alice)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.JournalClaim, last.Kind)
	assert.Equal(t, "unconfirmed", last.Note)
}

func TestSetClaimTime(t *testing.T) {
	f := newFixture(t)

	err := f.engine.SetClaimTime(f.ctx, bob, claimTime)
	require.ErrorIs(t, err, domain.ErrNotOwner)
	var notOwner *domain.NotOwnerError
	require.True(t, errors.As(err, &notOwner))
	assert.Equal(t, bob, notOwner.Caller)

	err = f.engine.SetClaimTime(f.ctx, owner, endTime-1)
	require.ErrorIs(t, err, domain.ErrInvalidClaimTime)
	assert.Equal(t, int64(0), f.engine.ClaimTime())

	require.NoError(t, f.engine.SetClaimTime(f.ctx, owner, endTime))
	assert.Equal(t, endTime, f.engine.ClaimTime())

	require.NoError(t, f.engine.SetClaimTime(f.ctx, owner, claimTime))
	assert.Equal(t, claimTime, f.engine.ClaimTime())
}
