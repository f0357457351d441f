package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Load returns the state row and every investor ordered by seq ASC.
// Returns ErrNotFound if the state row does not exist.
func (s *LedgerStore) Load(ctx context.Context) (_ *domain.LedgerState, _ []*domain.InvestorRecord, err error) {
	defer func(started time.Time) { observe("ledger_load", started, err) }(time.Now())

	var (
		state     *domain.LedgerState
		investors []*domain.InvestorRecord
	)
	err = s.pool.inTx(ctx, readOnlySnapshot, func(tx pgx.Tx) error {
		var err error
		if state, err = loadState(ctx, tx); err != nil {
			return err
		}
		investors, err = loadInvestors(ctx, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return state, investors, nil
}

// Apply writes the changeset in a single transaction.
func (s *LedgerStore) Apply(ctx context.Context, cs *domain.Changeset) (err error) {
	if cs == nil || cs.State == nil {
		return storage.ErrInvalidInput
	}
	for _, r := range cs.Investors {
		if r == nil || r.Investor == "" {
			return storage.ErrInvalidInput
		}
	}
	defer func(started time.Time) { observe("ledger_apply", started, err) }(time.Now())

	return s.pool.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := upsertState(ctx, tx, cs.State); err != nil {
			return err
		}
		for _, r := range cs.Investors {
			if err := upsertInvestor(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, addr := range cs.Dropped {
			if _, err := tx.Exec(ctx, `DELETE FROM investors WHERE address = $1`, string(addr)); err != nil {
				return fmt.Errorf("drop investor %s: %w", addr, err)
			}
		}
		return nil
	})
}

func loadState(ctx context.Context, tx pgx.Tx) (*domain.LedgerState, error) {
	query := `
		SELECT funds_raised::text, total_supply::text, tokens_sold::text, tokens_available::text,
		       bonus_pool::text, bonus_allocated::text, investor_count, early_investors,
		       settlement, treasury, claim_time, version, updated_at
		FROM sale_state
		WHERE id = 1
	`

	var (
		st                                       domain.LedgerState
		funds, supply, sold, available, pool, bo string
		settlement, treasury                     string
	)
	err := tx.QueryRow(ctx, query).Scan(
		&funds, &supply, &sold, &available, &pool, &bo,
		&st.InvestorCount, &st.EarlyInvestors,
		&settlement, &treasury, &st.ClaimTime, &st.Version, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale state: %w", err)
	}

	for _, f := range []struct {
		name string
		src  *string
		dst  **big.Int
	}{
		{"funds_raised", &funds, &st.FundsRaised},
		{"total_supply", &supply, &st.TotalSupply},
		{"tokens_sold", &sold, &st.TokensSold},
		{"tokens_available", &available, &st.TokensAvailable},
		{"bonus_pool", &pool, &st.BonusPool},
		{"bonus_allocated", &bo, &st.BonusAllocated},
	} {
		v, err := parseNumeric(f.name, f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	st.Settlement = domain.Phase(settlement)
	st.Treasury = domain.Address(treasury)
	return &st, nil
}

func loadInvestors(ctx context.Context, tx pgx.Tx) ([]*domain.InvestorRecord, error) {
	query := `
		SELECT address, seq, token_entitlement::text, bonus_entitlement::text, claimed_amount::text,
		       claimed, is_early, first_purchase_at
		FROM investors
		ORDER BY seq ASC
	`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get investors: %w", err)
	}
	defer rows.Close()

	var (
		records []*domain.InvestorRecord
		byAddr  = make(map[string]*domain.InvestorRecord)
	)
	for rows.Next() {
		var (
			addr                  string
			seq, firstAt          int64
			entitled, bonus, paid string
			claimed, early        bool
		)
		if err := rows.Scan(&addr, &seq, &entitled, &bonus, &paid, &claimed, &early, &firstAt); err != nil {
			return nil, fmt.Errorf("scan investor row: %w", err)
		}

		r := domain.NewInvestorRecord(domain.Address(addr), seq, firstAt)
		r.Claimed = claimed
		r.IsEarlyInvestor = early
		if r.TokenEntitlement, err = parseNumeric("token_entitlement", &entitled); err != nil {
			return nil, err
		}
		if r.BonusEntitlement, err = parseNumeric("bonus_entitlement", &bonus); err != nil {
			return nil, err
		}
		if r.ClaimedAmount, err = parseNumeric("claimed_amount", &paid); err != nil {
			return nil, err
		}
		records = append(records, r)
		byAddr[addr] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investor rows: %w", err)
	}
	rows.Close()

	inv, err := tx.Query(ctx, `SELECT address, asset, amount::text FROM investor_investments`)
	if err != nil {
		return nil, fmt.Errorf("get investments: %w", err)
	}
	defer inv.Close()

	for inv.Next() {
		var addr, asset, amount string
		if err := inv.Scan(&addr, &asset, &amount); err != nil {
			return nil, fmt.Errorf("scan investment row: %w", err)
		}
		r, ok := byAddr[addr]
		if !ok {
			continue
		}
		v, err := parseNumeric("amount", &amount)
		if err != nil {
			return nil, err
		}
		r.Investments[domain.Asset(asset)] = v
	}
	if err := inv.Err(); err != nil {
		return nil, fmt.Errorf("iterate investment rows: %w", err)
	}

	return records, nil
}

func upsertState(ctx context.Context, tx pgx.Tx, st *domain.LedgerState) error {
	query := `
		INSERT INTO sale_state (
			id, funds_raised, total_supply, tokens_sold, tokens_available, bonus_pool, bonus_allocated,
			investor_count, early_investors, settlement, treasury, claim_time, version, updated_at
		) VALUES (1, $1::numeric, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric,
			$7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			funds_raised = EXCLUDED.funds_raised,
			total_supply = EXCLUDED.total_supply,
			tokens_sold = EXCLUDED.tokens_sold,
			tokens_available = EXCLUDED.tokens_available,
			bonus_pool = EXCLUDED.bonus_pool,
			bonus_allocated = EXCLUDED.bonus_allocated,
			investor_count = EXCLUDED.investor_count,
			early_investors = EXCLUDED.early_investors,
			settlement = EXCLUDED.settlement,
			treasury = EXCLUDED.treasury,
			claim_time = EXCLUDED.claim_time,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.Exec(ctx, query,
		numeric(st.FundsRaised),
		numeric(st.TotalSupply),
		numeric(st.TokensSold),
		numeric(st.TokensAvailable),
		numeric(st.BonusPool),
		numeric(st.BonusAllocated),
		st.InvestorCount,
		st.EarlyInvestors,
		string(st.Settlement),
		string(st.Treasury),
		st.ClaimTime,
		st.Version,
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sale state: %w", err)
	}
	return nil
}

func upsertInvestor(ctx context.Context, tx pgx.Tx, r *domain.InvestorRecord) error {
	query := `
		INSERT INTO investors (
			address, seq, token_entitlement, bonus_entitlement, claimed_amount, claimed, is_early, first_purchase_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			token_entitlement = EXCLUDED.token_entitlement,
			bonus_entitlement = EXCLUDED.bonus_entitlement,
			claimed_amount = EXCLUDED.claimed_amount,
			claimed = EXCLUDED.claimed,
			is_early = EXCLUDED.is_early
	`

	_, err := tx.Exec(ctx, query,
		string(r.Investor),
		r.Seq,
		numeric(domain.CloneAmount(r.TokenEntitlement)),
		numeric(domain.CloneAmount(r.BonusEntitlement)),
		numeric(domain.CloneAmount(r.ClaimedAmount)),
		r.Claimed,
		r.IsEarlyInvestor,
		r.FirstPurchaseAt,
	)
	if err != nil {
		return writeError("upsert investor "+string(r.Investor), err)
	}

	assets := make([]string, 0, len(r.Investments))
	for asset := range r.Investments {
		assets = append(assets, string(asset))
	}
	_, err = tx.Exec(ctx, `DELETE FROM investor_investments WHERE address = $1 AND NOT (asset = ANY($2))`,
		string(r.Investor), assets)
	if err != nil {
		return fmt.Errorf("prune investments of %s: %w", r.Investor, err)
	}

	batch := &pgx.Batch{}
	for asset, amount := range r.Investments {
		batch.Queue(`
			INSERT INTO investor_investments (address, asset, amount)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (address, asset) DO UPDATE SET amount = EXCLUDED.amount
		`, string(r.Investor), string(asset), numeric(domain.CloneAmount(amount)))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert investments of %s: %w", r.Investor, err)
	}
	return nil
}
