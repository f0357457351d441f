package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/presale"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type buyRequest struct {
	TokenAmount string `json:"tokenAmount"`
	Value       string `json:"value"`
}

type claimRequest struct {
	Investor string `json:"investor"`
}

type claimResponse struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
}

type claimTimeRequest struct {
	Timestamp int64 `json:"timestamp"`
}

type walletRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	resp := statusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Phase:     snap.Phase.String(),
		Version:   snap.State.Version,
		Investors: snap.State.InvestorCount,
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePresale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPresaleResponse(s.engine.Snapshot(), s.engine.Custody()))
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.fund(w, r, false)
}

func (s *Server) handleFundBonus(w http.ResponseWriter, r *http.Request) {
	s.fund(w, r, true)
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request, bonus bool) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if bonus {
		err = s.engine.FundBonusPool(r.Context(), caller, amount)
	} else {
		err = s.engine.TransferTokensToPresale(r.Context(), caller, amount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handlePresale(w, r)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := domain.ParseAsset(r.PathValue("asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req buyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var amount *big.Int
	if asset == domain.AssetNative {
		amount, err = domain.ParseAmount(req.Value)
	} else {
		amount, err = domain.ParseAmount(req.TokenAmount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	buy := map[domain.Asset]func(context.Context, domain.Address, *big.Int) (*presale.Receipt, error){
		domain.AssetUSDT:   s.engine.BuyWithUSDT,
		domain.AssetUSDC:   s.engine.BuyWithUSDC,
		domain.AssetDAI:    s.engine.BuyWithDAI,
		domain.AssetNative: s.engine.BuyWithETH,
	}[asset]

	receipt, err := buy(r.Context(), caller, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req claimRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	investor := caller
	if req.Investor != "" {
		if investor, err = domain.ParseAddress(req.Investor); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	amount, err := s.engine.Claim(r.Context(), caller, investor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Investor: investor.String(), Amount: amount.String()})
}

func (s *Server) handleSetClaimTime(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req claimTimeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.SetClaimTime(r.Context(), caller, req.Timestamp); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handlePresale(w, r)
}

func (s *Server) handleSetWallet(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req walletRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wallet, err := domain.ParseAddress(req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.SetWallet(r.Context(), caller, wallet); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handlePresale(w, r)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	settlement, err := s.engine.Withdraw(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementResponse(settlement))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	settlement, err := s.engine.Refund(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementResponse(settlement))
}

func (s *Server) handleInvestor(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := investorResponse{
		Investor:         addr.String(),
		TokenEntitlement: "0",
		BonusEntitlement: "0",
		Claimable:        s.engine.ClaimableAmount(addr).String(),
		ClaimedAmount:    "0",
		Investments:      make(map[string]string, len(domain.Assets)),
	}
	rec, ok := s.engine.Investor(addr)
	if ok {
		resp.Exists = true
		resp.Seq = rec.Seq
		resp.TokenEntitlement = amountString(rec.TokenEntitlement)
		resp.BonusEntitlement = amountString(rec.BonusEntitlement)
		resp.ClaimedAmount = amountString(rec.ClaimedAmount)
		resp.Claimed = rec.Claimed
		resp.IsEarlyInvestor = rec.IsEarlyInvestor
		resp.FirstPurchaseAt = rec.FirstPurchaseAt
	}
	for _, a := range domain.Assets {
		resp.Investments[a.String()] = rec.Investment(a).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEstimateCoin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokens, err := domain.ParseAmount(q.Get("tokenAmount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := domain.ParseAsset(q.Get("asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.engine.EstimatedCoinAmountForTokenAmount(tokens, asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		Asset:   asset.String(),
		Amount:  amount.String(),
		Display: domain.FormatUnits(amount, asset.Decimals()),
	})
}

func (s *Server) handleEstimateNative(w http.ResponseWriter, r *http.Request) {
	value, err := domain.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens, err := s.engine.EstimatedTokenAmountAvailableWithETH(value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		Asset:   "TOKEN",
		Amount:  tokens.String(),
		Display: domain.FormatUnits(tokens, s.engine.Config().TokenDecimals),
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	var (
		entries []*domain.JournalEntry
		err     error
	)
	if raw := r.URL.Query().Get("investor"); raw != "" {
		investor, perr := domain.ParseAddress(raw)
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		entries, err = s.journal.GetByInvestor(r.Context(), investor)
	} else {
		entries, err = s.journal.GetAll(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newJournalEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInflows(w http.ResponseWriter, r *http.Request) {
	if s.inflows == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "inflow statistics are not configured", Kind: "internal"})
		return
	}

	q := r.URL.Query()
	from, err := unixParam(q.Get("from"), s.engine.PresaleStartTime())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := unixParam(q.Get("to"), time.Now().Unix())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	inflows, err := s.inflows.DailyInflows(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]inflowResponse, 0, len(inflows))
	for _, in := range inflows {
		resp = append(resp, inflowResponse{
			Day:                in.Day,
			Asset:              in.Asset.String(),
			Purchases:          in.Purchases,
			AssetAmount:        amountString(in.AssetAmount),
			QuoteAmount:        amountString(in.QuoteAmount),
			TokenAmount:        amountString(in.TokenAmount),
			QuoteAmountDisplay: domain.FormatUnits(in.QuoteAmount, domain.QuoteDecimals),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// callerOf parses the caller principal of r.
func callerOf(r *http.Request) (domain.Address, error) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return "", fmt.Errorf("%w: missing %s header", domain.ErrInvalidAddress, CallerHeader)
	}
	return domain.ParseAddress(raw)
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &domain.Error{Kind: domain.KindInput, Reason: "Invalid request body."}
	}
	return nil
}

func unixParam(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &domain.Error{Kind: domain.KindInput, Reason: "Invalid timestamp."}
	}
	return v, nil
}
