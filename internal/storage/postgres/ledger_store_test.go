package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

const (
	testTreasury = domain.Address("0x0000000000000000000000000000000000000002")
	testAlice    = domain.Address("0x0000000000000000000000000000000000000010")
	testBob      = domain.Address("0x0000000000000000000000000000000000000011")
)

func testState(version int64) *domain.LedgerState {
	st := domain.NewLedgerState(testTreasury, 1_702_678_400)
	st.TotalSupply = amount("100000000000000000000000000")
	st.TokensSold = amount("1500000000000000000000000")
	st.TokensAvailable = amount("98500000000000000000000000")
	st.FundsRaised = amount("120000000")
	st.BonusPool = amount("1000000000000000000000000")
	st.InvestorCount = 1
	st.EarlyInvestors = 1
	st.Version = version
	st.UpdatedAt = 1_700_000_100
	return st
}

func testInvestor(addr domain.Address, seq int64) *domain.InvestorRecord {
	r := domain.NewInvestorRecord(addr, seq, 1_700_000_100)
	r.Investments[domain.AssetUSDT] = amount("120000000")
	r.TokenEntitlement = amount("1500000000000000000000000")
	r.BonusEntitlement = amount("75000000000000000000000")
	r.IsEarlyInvestor = true
	return r
}

func TestLedgerStore_LoadEmpty(t *testing.T) {
	pool := newTestPool(t)

	store := NewLedgerStore(pool)

	_, _, err := store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedgerStore_ApplyAndLoad(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	st := testState(1)
	alice := testInvestor(testAlice, 1)

	err := store.Apply(ctx, &domain.Changeset{State: st, Investors: []*domain.InvestorRecord{alice}})
	require.NoError(t, err)

	loaded, investors, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, st.FundsRaised.Cmp(loaded.FundsRaised))
	assert.Equal(t, 0, st.TotalSupply.Cmp(loaded.TotalSupply))
	assert.Equal(t, 0, st.TokensAvailable.Cmp(loaded.TokensAvailable))
	assert.Equal(t, 0, st.BonusPool.Cmp(loaded.BonusPool))
	assert.Equal(t, st.Treasury, loaded.Treasury)
	assert.Equal(t, st.ClaimTime, loaded.ClaimTime)
	assert.Equal(t, int64(1), loaded.Version)
	require.NoError(t, loaded.CheckInvariants())

	require.Len(t, investors, 1)
	got := investors[0]
	assert.Equal(t, testAlice, got.Investor)
	assert.True(t, got.IsEarlyInvestor)
	assert.False(t, got.Claimed)
	assert.Equal(t, "120000000", got.Investment(domain.AssetUSDT).String())
	assert.Equal(t, "75000000000000000000000", got.BonusEntitlement.String())
}

func TestLedgerStore_ApplyOverwrites(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	alice := testInvestor(testAlice, 1)
	require.NoError(t, store.Apply(ctx, &domain.Changeset{State: testState(1), Investors: []*domain.InvestorRecord{alice}}))

	claimed := alice.Clone()
	claimed.Claimed = true
	claimed.ClaimedAmount = claimed.Claimable()
	claimed.TokenEntitlement = domain.Zero()
	claimed.BonusEntitlement = domain.Zero()
	claimed.Investments[domain.AssetDAI] = amount("5")

	st := testState(2)
	st.Settlement = domain.PhaseWithdrawn
	require.NoError(t, store.Apply(ctx, &domain.Changeset{State: st, Investors: []*domain.InvestorRecord{claimed}}))

	loaded, investors, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseWithdrawn, loaded.Settlement)
	assert.Equal(t, int64(2), loaded.Version)

	require.Len(t, investors, 1)
	assert.True(t, investors[0].Claimed)
	assert.Equal(t, "1575000000000000000000000", investors[0].ClaimedAmount.String())
	assert.Equal(t, "5", investors[0].Investment(domain.AssetDAI).String())
	assert.Equal(t, 0, investors[0].TokenEntitlement.Sign())
}

func TestLedgerStore_RevertPrunesInvestments(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	before := testInvestor(testAlice, 1)
	require.NoError(t, store.Apply(ctx, &domain.Changeset{State: testState(1), Investors: []*domain.InvestorRecord{before}}))

	after := before.Clone()
	after.Investments[domain.AssetNative] = amount("1000000000000000000")
	require.NoError(t, store.Apply(ctx, &domain.Changeset{State: testState(2), Investors: []*domain.InvestorRecord{after}}))

	// Restoring the before-image removes the asset row it did not have.
	require.NoError(t, store.Apply(ctx, &domain.Changeset{State: testState(1), Investors: []*domain.InvestorRecord{before}}))

	_, investors, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, investors, 1)
	_, ok := investors[0].Investments[domain.AssetNative]
	assert.False(t, ok)
}

func TestLedgerStore_Dropped(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	st := testState(1)
	err := store.Apply(ctx, &domain.Changeset{
		State:     st,
		Investors: []*domain.InvestorRecord{testInvestor(testAlice, 1), testInvestor(testBob, 2)},
	})
	require.NoError(t, err)

	err = store.Apply(ctx, &domain.Changeset{State: st, Dropped: []domain.Address{testBob}})
	require.NoError(t, err)

	_, investors, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, investors, 1)
	assert.Equal(t, testAlice, investors[0].Investor)
}

func TestLedgerStore_SeqOrder(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	err := store.Apply(ctx, &domain.Changeset{
		State:     testState(1),
		Investors: []*domain.InvestorRecord{testInvestor(testBob, 2), testInvestor(testAlice, 1)},
	})
	require.NoError(t, err)

	_, investors, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, investors, 2)
	assert.Equal(t, testAlice, investors[0].Investor)
	assert.Equal(t, testBob, investors[1].Investor)
}

func TestLedgerStore_DuplicateSeq(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewLedgerStore(pool)

	err := store.Apply(ctx, &domain.Changeset{
		State:     testState(1),
		Investors: []*domain.InvestorRecord{testInvestor(testAlice, 1), testInvestor(testBob, 1)},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Nothing from the failed transaction is visible.
	_, _, err = store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedgerStore_InvalidInput(t *testing.T) {
	store := NewLedgerStore(nil)

	err := store.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Apply(context.Background(), &domain.Changeset{
		State:     testState(1),
		Investors: []*domain.InvestorRecord{{}},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
