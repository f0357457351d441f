package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// JournalStore implements storage.JournalStore and storage.InflowStore using PostgreSQL.
type JournalStore struct {
	pool *Pool
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(pool *Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.JournalStore = (*JournalStore)(nil)
	_ storage.InflowStore  = (*JournalStore)(nil)
)

const journalColumns = `id, version, idx, kind, actor, investor, asset,
	asset_amount::text, token_amount::text, quote_amount::text, timestamp, note`

// Append adds entries atomically. Fails entire batch on any duplicate id or (version, idx).
func (s *JournalStore) Append(ctx context.Context, entries []*domain.JournalEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer func(started time.Time) { observe("journal_append", started, err) }(time.Now())

	query := `
		INSERT INTO journal_entries (
			id, version, idx, kind, actor, investor, asset,
			asset_amount, token_amount, quote_amount, timestamp, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11, $12)
	`

	return s.pool.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, e := range entries {
			_, err := tx.Exec(ctx, query,
				e.ID,
				e.Version,
				e.Index,
				string(e.Kind),
				string(e.Actor),
				string(e.Investor),
				string(e.Asset),
				numeric(e.AssetAmount),
				numeric(e.TokenAmount),
				numeric(e.QuoteAmount),
				e.Timestamp,
				e.Note,
			)
			if err != nil {
				return writeError("insert journal entry", err)
			}
		}
		return nil
	})
}

// GetAll retrieves every entry ordered by (version, idx) ASC.
func (s *JournalStore) GetAll(ctx context.Context) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM journal_entries ORDER BY version ASC, idx ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get journal entries: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// GetByInvestor retrieves the entries of an investor ordered by (version, idx) ASC.
func (s *JournalStore) GetByInvestor(ctx context.Context, investor domain.Address) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM journal_entries WHERE investor = $1 ORDER BY version ASC, idx ASC`

	rows, err := s.pool.Query(ctx, query, string(investor))
	if err != nil {
		return nil, fmt.Errorf("get journal entries by investor: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// DailyInflows returns per-day, per-asset purchase totals within [start, end].
func (s *JournalStore) DailyInflows(ctx context.Context, start, end int64) (_ []*domain.DailyInflow, err error) {
	if start > end {
		return nil, storage.ErrInvalidInput
	}
	defer func(started time.Time) { observe("daily_inflows", started, err) }(time.Now())

	query := `
		SELECT timestamp - (timestamp % 86400) AS day, asset, COUNT(*),
		       COALESCE(SUM(asset_amount), 0)::text,
		       COALESCE(SUM(quote_amount), 0)::text,
		       COALESCE(SUM(token_amount), 0)::text
		FROM journal_entries
		WHERE kind = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY day, asset
		ORDER BY day ASC, asset ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.JournalPurchase), start, end)
	if err != nil {
		return nil, fmt.Errorf("get daily inflows: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyInflow
	for rows.Next() {
		var (
			in                  domain.DailyInflow
			asset               string
			paid, quote, tokens string
		)
		if err := rows.Scan(&in.Day, &asset, &in.Purchases, &paid, &quote, &tokens); err != nil {
			return nil, fmt.Errorf("scan inflow row: %w", err)
		}
		in.Asset = domain.Asset(asset)
		if in.AssetAmount, err = parseNumeric("asset_amount", &paid); err != nil {
			return nil, err
		}
		if in.QuoteAmount, err = parseNumeric("quote_amount", &quote); err != nil {
			return nil, err
		}
		if in.TokenAmount, err = parseNumeric("token_amount", &tokens); err != nil {
			return nil, err
		}
		result = append(result, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inflow rows: %w", err)
	}

	return result, nil
}

// scanJournalEntries scans multiple rows into a slice of JournalEntry.
func scanJournalEntries(rows pgx.Rows) ([]*domain.JournalEntry, error) {
	var entries []*domain.JournalEntry

	for rows.Next() {
		var (
			e                            domain.JournalEntry
			kind, actor, investor, asset string
			paid, tokens, quote          *string
			err                          error
		)
		err = rows.Scan(
			&e.ID,
			&e.Version,
			&e.Index,
			&kind,
			&actor,
			&investor,
			&asset,
			&paid,
			&tokens,
			&quote,
			&e.Timestamp,
			&e.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Kind = domain.JournalKind(kind)
		e.Actor = domain.Address(actor)
		e.Investor = domain.Address(investor)
		e.Asset = domain.Asset(asset)
		if e.AssetAmount, err = parseNumeric("asset_amount", paid); err != nil {
			return nil, err
		}
		if e.TokenAmount, err = parseNumeric("token_amount", tokens); err != nil {
			return nil, err
		}
		if e.QuoteAmount, err = parseNumeric("quote_amount", quote); err != nil {
			return nil, err
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return entries, nil
}
