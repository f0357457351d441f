package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"presale-ledger/internal/assetledger"
	"presale-ledger/internal/domain"
	"presale-ledger/internal/presale"
	"presale-ledger/internal/storage/memory"
)

const (
	owner    = domain.Address("0x0000000000000000000000000000000000000001")
	treasury = domain.Address("0x0000000000000000000000000000000000000002")
	custody  = domain.Address("0x0000000000000000000000000000000000000003")
	alice    = domain.Address("0x0000000000000000000000000000000000000010")
	bob      = domain.Address("0x0000000000000000000000000000000000000011")

	startTime = int64(1_700_000_000)
	endTime   = startTime + 30*86400
)

type apiFixture struct {
	t       *testing.T
	engine  *presale.Engine
	now     int64
	assets  map[domain.Asset]*assetledger.Memory
	token   *assetledger.Memory
	journal *memory.JournalStore
	hub     *Hub
	server  *httptest.Server
}

func tok(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(18))
}

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(6))
}

// newAPIFixture serves an engine at the sale start holding 100M tokens for
// sale and a 1M token bonus pool. The server is closed when the test ends.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		t:       t,
		now:     startTime,
		assets:  make(map[domain.Asset]*assetledger.Memory),
		token:   assetledger.NewMemory("TOKEN"),
		journal: memory.NewJournalStore(),
	}
	ledgers := make(map[domain.Asset]assetledger.Ledger)
	for _, a := range domain.Assets {
		m := assetledger.NewMemory(a.String())
		f.assets[a] = m
		ledgers[a] = m
	}
	registry, err := assetledger.NewRegistry(ledgers)
	require.NoError(t, err)

	f.engine, err = presale.New(context.Background(), presale.Options{
		Config: &domain.SaleConfig{
			StartTime:     startTime,
			EndTime:       endTime,
			PricePerToken: big.NewInt(80),
			NativePrice:   big.NewInt(3_000_000_000),
			SoftCap:       usd(1000),
			TokenDecimals: 18,
			Owner:         owner,
			Treasury:      treasury,
		},
		Bonus:       presale.BonusPolicy{MaxEarlyInvestors: 1, BonusBps: 500},
		Assets:      registry,
		SaleToken:   f.token,
		Custody:     custody,
		LedgerStore: memory.NewLedgerStore(),
		Journal:     f.journal,
		Now:         func() time.Time { return time.Unix(f.now, 0) },
	})
	require.NoError(t, err)

	f.token.Mint(owner, tok(200_000_000))
	f.token.Approve(owner, custody, tok(101_000_000))
	require.NoError(t, f.engine.TransferTokensToPresale(context.Background(), owner, tok(100_000_000)))
	require.NoError(t, f.engine.FundBonusPool(context.Background(), owner, tok(1_000_000)))

	f.hub = NewHub(nil, nil)
	f.engine.Subscribe(f.hub)

	srv := New(Options{Engine: f.engine, Journal: f.journal, Hub: f.hub})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.hub.Close()
		f.server.Close()
	})
	return f
}

func (f *apiFixture) fund(investor domain.Address, asset domain.Asset, amount *big.Int) {
	f.assets[asset].Mint(investor, amount)
	f.assets[asset].Approve(investor, custody, amount)
}

// do sends a request as caller (empty = no caller header) and decodes the
// JSON response into out when out is non-nil.
func (f *apiFixture) do(method, path string, caller domain.Address, body any, out any) *http.Response {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(f.t, err)
	if caller != "" {
		req.Header.Set(CallerHeader, caller.String())
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
