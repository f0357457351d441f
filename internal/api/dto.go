package api

import (
	"math/big"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/presale"
)

// Amounts are decimal strings of base units. Fields suffixed Display carry
// the same amount scaled by its decimal base.

type presaleResponse struct {
	StartTime   int64  `json:"startTime"`
	EndTime     int64  `json:"endTime"`
	ClaimTime   int64  `json:"claimTime"`
	Phase       string `json:"phase"`
	Settlement  string `json:"settlement,omitempty"`
	Owner       string `json:"owner"`
	Treasury    string `json:"treasury"`
	Custody     string `json:"custody"`
	Version     int64  `json:"version"`
	Investors   int64  `json:"investors"`
	EarlyCount  int64  `json:"earlyInvestors"`
	FundsRaised string `json:"fundsRaised"`

	FundsRaisedDisplay string `json:"fundsRaisedDisplay"`
	FundsRaisedWhole   string `json:"fundsRaisedWhole"` // whole quote units, rounded down
	SoftCap            string `json:"softCap"`
	PricePerToken      string `json:"pricePerToken"`
	NativePrice        string `json:"nativePrice"`
	TotalSupply        string `json:"totalSupply"`
	TokensSold         string `json:"tokensSold"`
	TokensAvailable    string `json:"tokensAvailable"`
	BonusPool          string `json:"bonusPool"`
	BonusAllocated     string `json:"bonusAllocated"`
}

func newPresaleResponse(snap *presale.Snapshot, custody domain.Address) presaleResponse {
	cfg, st := snap.Config, snap.State
	return presaleResponse{
		StartTime:          cfg.StartTime,
		EndTime:            cfg.EndTime,
		ClaimTime:          st.ClaimTime,
		Phase:              snap.Phase.String(),
		Settlement:         st.Settlement.String(),
		Owner:              cfg.Owner.String(),
		Treasury:           st.Treasury.String(),
		Custody:            custody.String(),
		Version:            st.Version,
		Investors:          st.InvestorCount,
		EarlyCount:         st.EarlyInvestors,
		FundsRaised:        amountString(st.FundsRaised),
		FundsRaisedDisplay: domain.FormatUnits(st.FundsRaised, domain.QuoteDecimals),
		FundsRaisedWhole:   amountString(domain.WholeUnits(st.FundsRaised, domain.QuoteDecimals)),
		SoftCap:            amountString(cfg.SoftCap),
		PricePerToken:      amountString(cfg.PricePerToken),
		NativePrice:        amountString(cfg.NativePrice),
		TotalSupply:        amountString(st.TotalSupply),
		TokensSold:         amountString(st.TokensSold),
		TokensAvailable:    amountString(st.TokensAvailable),
		BonusPool:          amountString(st.BonusPool),
		BonusAllocated:     amountString(st.BonusAllocated),
	}
}

type investorResponse struct {
	Investor         string            `json:"investor"`
	Exists           bool              `json:"exists"`
	Seq              int64             `json:"seq,omitempty"`
	TokenEntitlement string            `json:"tokenEntitlement"`
	BonusEntitlement string            `json:"bonusEntitlement"`
	Claimable        string            `json:"claimable"`
	ClaimedAmount    string            `json:"claimedAmount"`
	Claimed          bool              `json:"claimed"`
	IsEarlyInvestor  bool              `json:"isEarlyInvestor"`
	FirstPurchaseAt  int64             `json:"firstPurchaseAt,omitempty"`
	Investments      map[string]string `json:"investments"`
}

type receiptResponse struct {
	Investor    string `json:"investor"`
	Asset       string `json:"asset"`
	AssetAmount string `json:"assetAmount"`
	TokenAmount string `json:"tokenAmount"`
	BonusAmount string `json:"bonusAmount"`
	QuoteAmount string `json:"quoteAmount"`
	Version     int64  `json:"version"`
}

func newReceiptResponse(r *presale.Receipt) receiptResponse {
	return receiptResponse{
		Investor:    r.Investor.String(),
		Asset:       r.Asset.String(),
		AssetAmount: amountString(r.AssetAmount),
		TokenAmount: amountString(r.TokenAmount),
		BonusAmount: amountString(r.BonusAmount),
		QuoteAmount: amountString(r.QuoteAmount),
		Version:     r.Version,
	}
}

type transferResponse struct {
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type settlementResponse struct {
	Phase     string             `json:"phase"`
	Transfers []transferResponse `json:"transfers"`
}

func newSettlementResponse(s *presale.Settlement) settlementResponse {
	resp := settlementResponse{
		Phase:     s.Phase.String(),
		Transfers: make([]transferResponse, 0, len(s.Transfers)),
	}
	for _, t := range s.Transfers {
		resp.Transfers = append(resp.Transfers, transferResponse{
			To:     t.To.String(),
			Asset:  t.Asset.String(),
			Amount: amountString(t.Amount),
		})
	}
	return resp
}

type journalEntryResponse struct {
	ID          string `json:"id"`
	Version     int64  `json:"version"`
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor"`
	Investor    string `json:"investor,omitempty"`
	Asset       string `json:"asset,omitempty"`
	AssetAmount string `json:"assetAmount,omitempty"`
	TokenAmount string `json:"tokenAmount,omitempty"`
	QuoteAmount string `json:"quoteAmount,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Note        string `json:"note,omitempty"`
}

func newJournalEntryResponse(e *domain.JournalEntry) journalEntryResponse {
	return journalEntryResponse{
		ID:          e.ID,
		Version:     e.Version,
		Index:       e.Index,
		Kind:        e.Kind.String(),
		Actor:       e.Actor.String(),
		Investor:    e.Investor.String(),
		Asset:       e.Asset.String(),
		AssetAmount: optionalAmount(e.AssetAmount),
		TokenAmount: optionalAmount(e.TokenAmount),
		QuoteAmount: optionalAmount(e.QuoteAmount),
		Timestamp:   e.Timestamp,
		Note:        e.Note,
	}
}

type inflowResponse struct {
	Day         int64  `json:"day"`
	Asset       string `json:"asset"`
	Purchases   int64  `json:"purchases"`
	AssetAmount string `json:"assetAmount"`
	QuoteAmount string `json:"quoteAmount"`
	TokenAmount string `json:"tokenAmount"`

	QuoteAmountDisplay string `json:"quoteAmountDisplay"`
}

type estimateResponse struct {
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

type statusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Phase       string `json:"phase"`
	Version     int64  `json:"version"`
	Investors   int64  `json:"investors"`
	Subscribers int    `json:"subscribers"`
}

func amountString(v *big.Int) string {
	return domain.CloneAmount(v).String()
}

func optionalAmount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
