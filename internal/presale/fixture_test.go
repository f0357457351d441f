package presale

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"presale-ledger/internal/assetledger"
	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage/memory"
)

const (
	owner    = domain.Address("0x0000000000000000000000000000000000000001")
	treasury = domain.Address("0x0000000000000000000000000000000000000002")
	custody  = domain.Address("0x0000000000000000000000000000000000000003")
	alice    = domain.Address("0x0000000000000000000000000000000000000010")
	bob      = domain.Address("0x0000000000000000000000000000000000000011")
	carol    = domain.Address("0x0000000000000000000000000000000000000012")
	dave     = domain.Address("0x0000000000000000000000000000000000000013")

	startTime = int64(1_700_000_000)
	endTime   = startTime + 30*86400
	claimTime = endTime + 86400
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	engine  *Engine
	clock   *testClock
	assets  map[domain.Asset]*assetledger.Memory
	ledgers map[domain.Asset]assetledger.Ledger
	token   *assetledger.Memory
	store   *memory.LedgerStore
	journal *memory.JournalStore
	cfg     *domain.SaleConfig
	bonus   BonusPolicy

	lockTimeout time.Duration
}

// tok returns n whole sale tokens.
func tok(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(18))
}

// usd returns n whole units of a 6-decimal stablecoin.
func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(6))
}

// wei returns n whole units of an 18-decimal asset.
func wei(n int64) *big.Int {
	return tok(n)
}

func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return v
}

func testConfig() *domain.SaleConfig {
	return &domain.SaleConfig{
		StartTime:     startTime,
		EndTime:       endTime,
		PricePerToken: big.NewInt(80),            // 0.00008 quote per token
		NativePrice:   big.NewInt(3_000_000_000), // 3000 quote per native coin
		SoftCap:       usd(1000),
		TokenDecimals: 18,
		Owner:         owner,
		Treasury:      treasury,
	}
}

type fixtureOption func(f *fixture)

func withConfig(mod func(cfg *domain.SaleConfig)) fixtureOption {
	return func(f *fixture) { mod(f.cfg) }
}

func withSoftCap(v *big.Int) fixtureOption {
	return withConfig(func(cfg *domain.SaleConfig) { cfg.SoftCap = v })
}

func withBonus(p BonusPolicy) fixtureOption {
	return func(f *fixture) { f.bonus = p }
}

func withLockTimeout(d time.Duration) fixtureOption {
	return func(f *fixture) { f.lockTimeout = d }
}

func withLedger(asset domain.Asset, wrap func(assetledger.Ledger) assetledger.Ledger) fixtureOption {
	return func(f *fixture) { f.ledgers[asset] = wrap(f.ledgers[asset]) }
}

// newFixture builds an engine at the sale start with 100M tokens for sale
// and a 1M token bonus pool.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		clock:   &testClock{},
		assets:  make(map[domain.Asset]*assetledger.Memory),
		ledgers: make(map[domain.Asset]assetledger.Ledger),
		token:   assetledger.NewMemory("TOKEN"),
		store:   memory.NewLedgerStore(),
		journal: memory.NewJournalStore(),
		cfg:     testConfig(),
		bonus:   BonusPolicy{MaxEarlyInvestors: 2, BonusBps: 500},
	}
	for _, a := range domain.Assets {
		m := assetledger.NewMemory(a.String())
		f.assets[a] = m
		f.ledgers[a] = m
	}
	for _, opt := range opts {
		opt(f)
	}
	f.clock.Set(startTime)

	registry, err := assetledger.NewRegistry(f.ledgers)
	require.NoError(t, err)

	f.engine, err = New(f.ctx, Options{
		Config:      f.cfg,
		Bonus:       f.bonus,
		Assets:      registry,
		SaleToken:   f.token,
		Custody:     custody,
		LedgerStore: f.store,
		Journal:     f.journal,
		Now:         f.clock.Now,
		LockTimeout: f.lockTimeout,
	})
	require.NoError(t, err)

	f.token.Mint(owner, tok(1_000_000_000))
	f.token.Approve(owner, custody, tok(101_000_000))
	require.NoError(t, f.engine.TransferTokensToPresale(f.ctx, owner, tok(100_000_000)))
	require.NoError(t, f.engine.FundBonusPool(f.ctx, owner, tok(1_000_000)))

	return f
}

// fund mints and approves amount of a payment asset for investor.
func (f *fixture) fund(investor domain.Address, asset domain.Asset, amount *big.Int) {
	f.assets[asset].Mint(investor, amount)
	f.assets[asset].Approve(investor, custody, amount)
}

func (f *fixture) balance(asset domain.Asset, owner domain.Address) *big.Int {
	f.t.Helper()
	b, err := f.assets[asset].BalanceOf(f.ctx, owner)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) tokenBalance(owner domain.Address) *big.Int {
	f.t.Helper()
	b, err := f.token.BalanceOf(f.ctx, owner)
	require.NoError(f.t, err)
	return b
}

// requireAmount compares big integers by value.
func requireAmount(t *testing.T, want, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, want.String(), domain.CloneAmount(got).String(), msgAndArgs...)
}

var amountComparer = cmp.Comparer(func(a, b *big.Int) bool {
	return domain.CloneAmount(a).Cmp(domain.CloneAmount(b)) == 0
})
