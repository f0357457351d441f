// Package storage defines the persistence contracts of the presale ledger and
// the errors every backend maps onto.
package storage

import (
	"context"

	"presale-ledger/internal/domain"
)

// LedgerStore persists the presale ledger: the global state row and the
// investor records.
type LedgerStore interface {
	// Load returns the persisted state and all investor records ordered by Seq ASC.
	// Returns ErrNotFound if nothing was persisted yet.
	Load(ctx context.Context) (*domain.LedgerState, []*domain.InvestorRecord, error)

	// Apply writes the state and investor images of a changeset atomically.
	// Investor records are upserted by address. Returns ErrInvalidInput if the
	// changeset has no state.
	Apply(ctx context.Context, cs *domain.Changeset) error
}

// JournalStore provides access to journal_entries storage.
type JournalStore interface {
	// Append adds entries atomically. Fails entire batch on any duplicate id.
	Append(ctx context.Context, entries []*domain.JournalEntry) error

	// GetAll retrieves every entry ordered by (version, index) ASC.
	GetAll(ctx context.Context) ([]*domain.JournalEntry, error)

	// GetByInvestor retrieves the entries of an investor ordered by (version, index) ASC.
	GetByInvestor(ctx context.Context, investor domain.Address) ([]*domain.JournalEntry, error)
}

// InflowStore aggregates purchase journal entries.
type InflowStore interface {
	// DailyInflows returns per-day, per-asset purchase totals for entries with
	// timestamp within [start, end] (inclusive), ordered by (day, asset) ASC.
	DailyInflows(ctx context.Context, start, end int64) ([]*domain.DailyInflow, error)
}
