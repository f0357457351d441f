package domain

import "math/big"

// JournalKind is the type of a journal entry.
type JournalKind string

const (
	JournalFund         JournalKind = "FUND"
	JournalBonusFund    JournalKind = "BONUS_FUND"
	JournalPurchase     JournalKind = "PURCHASE"
	JournalBonus        JournalKind = "BONUS"
	JournalClaim        JournalKind = "CLAIM"
	JournalWithdraw     JournalKind = "WITHDRAW"
	JournalRefund       JournalKind = "REFUND"
	JournalSettle       JournalKind = "SETTLE" // settlement marker, Note holds the phase
	JournalSetWallet    JournalKind = "SET_WALLET"
	JournalSetClaimTime JournalKind = "SET_CLAIM_TIME"
)

// String returns the string representation of JournalKind.
func (k JournalKind) String() string {
	return string(k)
}

// JournalEntry is an append-only audit record of a committed ledger movement.
type JournalEntry struct {
	ID          string // deterministic hash
	Version     int64  // ledger version that committed the entry
	Index       int    // position within the commit
	Kind        JournalKind
	Actor       Address // caller of the entry point
	Investor    Address // empty for sale-level entries
	Asset       Asset   // empty when no payment asset moved
	AssetAmount *big.Int
	TokenAmount *big.Int
	QuoteAmount *big.Int
	Timestamp   int64 // unix seconds
	Note        string
}

// Clone returns a deep copy of the entry.
func (e *JournalEntry) Clone() *JournalEntry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.AssetAmount = CloneAmount(e.AssetAmount)
	clone.TokenAmount = CloneAmount(e.TokenAmount)
	clone.QuoteAmount = CloneAmount(e.QuoteAmount)
	return &clone
}

// DailyInflow aggregates purchase inflows of one asset over one UTC day.
type DailyInflow struct {
	Day         int64 // unix seconds of 00:00 UTC
	Asset       Asset
	Purchases   int64
	AssetAmount *big.Int
	QuoteAmount *big.Int
	TokenAmount *big.Int
}
