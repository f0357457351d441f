package api

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-ledger/internal/domain"
)

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	resp, err = f.server.Client().Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "presale_ledger_")
}

func TestGetPresale(t *testing.T) {
	f := newAPIFixture(t)

	var got presaleResponse
	resp := f.do(http.MethodGet, "/v1/presale", "", nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, startTime, got.StartTime)
	assert.Equal(t, endTime, got.EndTime)
	assert.Equal(t, string(domain.PhaseActive), got.Phase)
	assert.Equal(t, tok(100_000_000).String(), got.TokensAvailable)
	assert.Equal(t, tok(100_000_000).String(), got.TotalSupply)
	assert.Equal(t, "0", got.FundsRaised)
	assert.Equal(t, "80", got.PricePerToken)
	assert.Equal(t, custody.String(), got.Custody)
}

func TestBuyWithUSDT(t *testing.T) {
	f := newAPIFixture(t)
	f.fund(alice, domain.AssetUSDT, usd(120))

	var receipt receiptResponse
	resp := f.do(http.MethodPost, "/v1/presale/buy/usdt", alice,
		map[string]string{"tokenAmount": tok(1_500_000).String()}, &receipt)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, alice.String(), receipt.Investor)
	assert.Equal(t, "USDT", receipt.Asset)
	assert.Equal(t, "120000000", receipt.AssetAmount)
	assert.Equal(t, "120000000", receipt.QuoteAmount)
	assert.Equal(t, tok(75_000).String(), receipt.BonusAmount)

	var presale presaleResponse
	f.do(http.MethodGet, "/v1/presale", "", nil, &presale)
	assert.Equal(t, "120000000", presale.FundsRaised)
	assert.Equal(t, "120", presale.FundsRaisedDisplay)
	assert.Equal(t, "120", presale.FundsRaisedWhole)
	assert.Equal(t, tok(98_500_000).String(), presale.TokensAvailable)
}

func TestBuyWithNative(t *testing.T) {
	f := newAPIFixture(t)
	f.fund(bob, domain.AssetNative, tok(1))

	var receipt receiptResponse
	resp := f.do(http.MethodPost, "/v1/presale/buy/eth", bob,
		map[string]string{"value": tok(1).String()}, &receipt)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "NATIVE", receipt.Asset)
	assert.Equal(t, "3000000000", receipt.QuoteAmount)
	assert.Equal(t, tok(37_500_000).String(), receipt.TokenAmount)
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller domain.Address
		body   any
		status int
		kind   string
		reason string
	}{
		{
			name:   "missing caller",
			method: http.MethodPost,
			path:   "/v1/presale/buy/usdt",
			body:   map[string]string{"tokenAmount": "1"},
			status: http.StatusBadRequest,
			kind:   "input",
			reason: domain.ErrInvalidAddress.Reason,
		},
		{
			name:   "not owner",
			method: http.MethodPost,
			path:   "/v1/admin/withdraw",
			caller: alice,
			status: http.StatusForbidden,
			kind:   "authorization",
			reason: "NotOwner",
		},
		{
			name:   "insufficient allowance",
			method: http.MethodPost,
			path:   "/v1/presale/buy/usdc",
			caller: alice,
			body:   map[string]string{"tokenAmount": tok(1000).String()},
			status: http.StatusPaymentRequired,
			kind:   "funds",
			reason: domain.ErrInsufficientAllowance.Reason,
		},
		{
			name:   "sale still running",
			method: http.MethodPost,
			path:   "/v1/admin/refund",
			caller: owner,
			status: http.StatusConflict,
			kind:   "window",
			reason: domain.ErrSaleNotEnded.Reason,
		},
		{
			name:   "claim window closed",
			method: http.MethodPost,
			path:   "/v1/presale/claim",
			caller: alice,
			body:   map[string]string{},
			status: http.StatusConflict,
			kind:   "window",
			reason: domain.ErrClaimWindowNotOpen.Reason,
		},
		{
			name:   "unknown asset",
			method: http.MethodPost,
			path:   "/v1/presale/buy/btc",
			caller: alice,
			body:   map[string]string{"tokenAmount": "1"},
			status: http.StatusBadRequest,
			kind:   "input",
			reason: domain.ErrUnknownAsset.Reason,
		},
		{
			name:   "negative amount",
			method: http.MethodPost,
			path:   "/v1/presale/buy/dai",
			caller: alice,
			body:   map[string]string{"tokenAmount": "-5"},
			status: http.StatusBadRequest,
			kind:   "input",
			reason: domain.ErrInvalidAmount.Reason,
		},
		{
			name:   "unknown body field",
			method: http.MethodPost,
			path:   "/v1/admin/wallet",
			caller: owner,
			body:   map[string]string{"wallet": treasury.String()},
			status: http.StatusBadRequest,
			kind:   "input",
			reason: "Invalid request body.",
		},
		{
			name:   "claim time before end",
			method: http.MethodPost,
			path:   "/v1/admin/claim-time",
			caller: owner,
			body:   map[string]int64{"timestamp": startTime},
			status: http.StatusBadRequest,
			kind:   "input",
			reason: domain.ErrInvalidClaimTime.Reason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got errorResponse
			resp := f.do(tt.method, tt.path, tt.caller, tt.body, &got)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Error)
		})
	}
}

func TestOwnerFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.fund(alice, domain.AssetUSDT, usd(1000))

	resp := f.do(http.MethodPost, "/v1/presale/buy/usdt", alice,
		map[string]string{"tokenAmount": tok(12_500_000).String()}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	newWallet := domain.Address("0x00000000000000000000000000000000000000AA")
	var presale presaleResponse
	resp = f.do(http.MethodPost, "/v1/admin/wallet", owner, map[string]string{"address": newWallet.String()}, &presale)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.MustParseAddress(newWallet.String()).String(), presale.Treasury)

	resp = f.do(http.MethodPost, "/v1/admin/claim-time", owner, map[string]int64{"timestamp": endTime + 10}, &presale)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, endTime+10, presale.ClaimTime)

	f.now = endTime + 10

	var settlement settlementResponse
	resp = f.do(http.MethodPost, "/v1/admin/withdraw", owner, nil, &settlement)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.PhaseWithdrawn), settlement.Phase)
	require.NotEmpty(t, settlement.Transfers)
	assert.Equal(t, "USDT", settlement.Transfers[0].Asset)
	assert.Equal(t, usd(1000).String(), settlement.Transfers[0].Amount)

	var claim claimResponse
	resp = f.do(http.MethodPost, "/v1/presale/claim", bob, map[string]string{"investor": alice.String()}, &claim)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.String(), claim.Investor)
	assert.Equal(t, tok(13_125_000).String(), claim.Amount)

	var investor investorResponse
	resp = f.do(http.MethodGet, "/v1/investors/"+alice.String(), "", nil, &investor)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, investor.Claimed)
	assert.Equal(t, "0", investor.Claimable)
	assert.Equal(t, tok(13_125_000).String(), investor.ClaimedAmount)
}

func TestInvestorAndEstimates(t *testing.T) {
	f := newAPIFixture(t)
	f.fund(alice, domain.AssetDAI, tok(80))

	resp := f.do(http.MethodPost, "/v1/presale/buy/dai", alice,
		map[string]string{"tokenAmount": tok(1_000_000).String()}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var investor investorResponse
	f.do(http.MethodGet, "/v1/investors/"+alice.String(), "", nil, &investor)
	assert.True(t, investor.Exists)
	assert.True(t, investor.IsEarlyInvestor)
	assert.Equal(t, tok(1_000_000).String(), investor.TokenEntitlement)
	assert.Equal(t, tok(50_000).String(), investor.BonusEntitlement)
	assert.Equal(t, tok(1_050_000).String(), investor.Claimable)
	assert.Equal(t, tok(80).String(), investor.Investments["DAI"])
	assert.Equal(t, "0", investor.Investments["USDT"])

	f.do(http.MethodGet, "/v1/investors/"+bob.String(), "", nil, &investor)
	assert.False(t, investor.Exists)
	assert.Equal(t, "0", investor.Claimable)

	resp = f.do(http.MethodGet, "/v1/investors/not-an-address", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var est estimateResponse
	resp = f.do(http.MethodGet, fmt.Sprintf("/v1/estimate/coin?tokenAmount=%s&asset=USDC", tok(1_500_000)), "", nil, &est)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "120000000", est.Amount)
	assert.Equal(t, "120", est.Display)

	resp = f.do(http.MethodGet, "/v1/estimate/native?amount="+tok(1).String(), "", nil, &est)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, tok(37_500_000).String(), est.Amount)
	assert.Equal(t, "37500000", est.Display)
}

func TestJournalAndInflows(t *testing.T) {
	f := newAPIFixture(t)
	f.fund(alice, domain.AssetUSDT, usd(120))
	f.fund(bob, domain.AssetUSDC, usd(80))

	f.do(http.MethodPost, "/v1/presale/buy/usdt", alice, map[string]string{"tokenAmount": tok(1_500_000).String()}, nil)
	f.now += 86_400
	f.do(http.MethodPost, "/v1/presale/buy/usdc", bob, map[string]string{"tokenAmount": tok(1_000_000).String()}, nil)

	var all []journalEntryResponse
	resp := f.do(http.MethodGet, "/v1/journal", "", nil, &all)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// FUND, BONUS_FUND, alice PURCHASE + BONUS, bob PURCHASE
	require.Len(t, all, 5)
	assert.Equal(t, "FUND", all[0].Kind)

	var mine []journalEntryResponse
	f.do(http.MethodGet, "/v1/journal?investor="+bob.String(), "", nil, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "PURCHASE", mine[0].Kind)
	assert.Equal(t, "USDC", mine[0].Asset)

	var inflows []inflowResponse
	path := fmt.Sprintf("/v1/stats/inflows?from=%d&to=%d", startTime-86_400, startTime+3*86_400)
	resp = f.do(http.MethodGet, path, "", nil, &inflows)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, inflows, 2)
	assert.Equal(t, "USDT", inflows[0].Asset)
	assert.Equal(t, "120", inflows[0].QuoteAmountDisplay)
	assert.Equal(t, "USDC", inflows[1].Asset)
	assert.Equal(t, int64(1), inflows[1].Purchases)

	resp = f.do(http.MethodGet, "/v1/stats/inflows?from=abc", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t)

	var status statusResponse
	resp := f.do(http.MethodGet, "/status", "", nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, string(domain.PhaseActive), status.Phase)
	assert.Equal(t, int64(2), status.Version)
	assert.Equal(t, 0, status.Subscribers)
}
