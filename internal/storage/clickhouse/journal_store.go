package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// JournalStore implements storage.JournalStore and storage.InflowStore using
// ClickHouse. Missing amounts are stored as zero.
type JournalStore struct {
	conn *Conn
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(conn *Conn) *JournalStore {
	return &JournalStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.JournalStore = (*JournalStore)(nil)
	_ storage.InflowStore  = (*JournalStore)(nil)
)

const journalColumns = `id, version, idx, kind, actor, investor, asset,
	asset_amount, token_amount, quote_amount, timestamp, note`

// Append adds entries as one batch. Fails entire batch on any duplicate id.
func (s *JournalStore) Append(ctx context.Context, entries []*domain.JournalEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	defer func(started time.Time) { observe("journal_append", started, err) }(time.Now())

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, check against existing rows
	for _, e := range entries {
		exists, err := s.exists(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO journal_entries (`+journalColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		err = batch.Append(
			e.ID,
			e.Version,
			int32(e.Index),
			string(e.Kind),
			string(e.Actor),
			string(e.Investor),
			string(e.Asset),
			domain.CloneAmount(e.AssetAmount),
			domain.CloneAmount(e.TokenAmount),
			domain.CloneAmount(e.QuoteAmount),
			e.Timestamp,
			e.Note,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAll retrieves every entry ordered by (version, idx) ASC.
func (s *JournalStore) GetAll(ctx context.Context) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM journal_entries FINAL ORDER BY version ASC, idx ASC`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// GetByInvestor retrieves the entries of an investor ordered by (version, idx) ASC.
func (s *JournalStore) GetByInvestor(ctx context.Context, investor domain.Address) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM journal_entries FINAL WHERE investor = ? ORDER BY version ASC, idx ASC`

	rows, err := s.conn.Query(ctx, query, string(investor))
	if err != nil {
		return nil, fmt.Errorf("query journal entries by investor: %w", err)
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
		SELECT
			intDiv(timestamp, 86400) * 86400 AS day,
			asset,
			toInt64(count()) AS purchases,
			sum(asset_amount) AS asset_total,
			sum(quote_amount) AS quote_total,
			sum(token_amount) AS token_total
		FROM journal_entries FINAL
		WHERE kind = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY day, asset
		ORDER BY day ASC, asset ASC
	`

	rows, err := s.conn.Query(ctx, query, string(domain.JournalPurchase), start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily inflows: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyInflow
	for rows.Next() {
		var (
			in    domain.DailyInflow
			asset string
		)
		in.AssetAmount = new(big.Int)
		in.QuoteAmount = new(big.Int)
		in.TokenAmount = new(big.Int)
		if err := rows.Scan(&in.Day, &asset, &in.Purchases, in.AssetAmount, in.QuoteAmount, in.TokenAmount); err != nil {
			return nil, fmt.Errorf("scan inflow row: %w", err)
		}
		in.Asset = domain.Asset(asset)
		result = append(result, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inflow rows: %w", err)
	}

	return result, nil
}

func (s *JournalStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM journal_entries WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanJournalEntries scans multiple rows into a slice of JournalEntry.
func scanJournalEntries(rows driver.Rows) ([]*domain.JournalEntry, error) {
	var entries []*domain.JournalEntry

	for rows.Next() {
		var (
			e                            domain.JournalEntry
			index                        int32
			kind, actor, investor, asset string
		)
		e.AssetAmount = new(big.Int)
		e.TokenAmount = new(big.Int)
		e.QuoteAmount = new(big.Int)

		err := rows.Scan(
			&e.ID,
			&e.Version,
			&index,
			&kind,
			&actor,
			&investor,
			&asset,
			e.AssetAmount,
			e.TokenAmount,
			e.QuoteAmount,
			&e.Timestamp,
			&e.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Index = int(index)
		e.Kind = domain.JournalKind(kind)
		e.Actor = domain.Address(actor)
		e.Investor = domain.Address(investor)
		e.Asset = domain.Asset(asset)

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return entries, nil
}
