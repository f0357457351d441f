package main

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"presale-ledger/internal/assetledger"
	"presale-ledger/internal/config"
	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
	chstore "presale-ledger/internal/storage/clickhouse"
	"presale-ledger/internal/storage/memory"
	"presale-ledger/internal/storage/migrations"
	pgstore "presale-ledger/internal/storage/postgres"
)

// stores holds the storage backends of one run.
type stores struct {
	ledger  storage.LedgerStore
	journal storage.JournalStore

	// analytics is the ClickHouse journal mirror, nil when not configured.
	analytics *chstore.JournalStore

	close func()
}

// inflows prefers the analytics mirror for aggregate queries.
func (s *stores) inflows() storage.InflowStore {
	if s.analytics != nil {
		return s.analytics
	}
	inflows, _ := s.journal.(storage.InflowStore)
	return inflows
}

func openStores(ctx context.Context, logger *zap.Logger, opts options) (*stores, error) {
	if opts.useMemory {
		logger.Warn("using in-memory storage, state is lost on exit")
		return &stores{
			ledger:  memory.NewLedgerStore(),
			journal: memory.NewJournalStore(),
			close:   func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres migrations applied", zap.Strings("files", applied))

	s := &stores{
		ledger:  pgstore.NewLedgerStore(pool),
		journal: pgstore.NewJournalStore(pool),
		close:   pool.Close,
	}

	if opts.clickhouseDSN == "" {
		return s, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	s.analytics = chstore.NewJournalStore(conn)
	s.close = func() {
		conn.Close()
		pool.Close()
	}
	return s, nil
}

// ledgers holds the asset ledgers of one run.
type ledgers struct {
	assets    *assetledger.Registry
	saleToken assetledger.Ledger
}

func openLedgers(cfg *config.Config, opts options, logger *zap.Logger) (*ledgers, error) {
	if opts.useMemory {
		return devLedgers(cfg, opts.devAccounts, logger)
	}

	byAsset := make(map[domain.Asset]assetledger.Ledger, len(domain.Assets))
	for _, a := range domain.Assets {
		byAsset[a] = assetledger.NewRPCClient(cfg.Ledgers.Endpoint, cfg.Ledgers.Assets[a])
	}
	registry, err := assetledger.NewRegistry(byAsset)
	if err != nil {
		return nil, err
	}
	return &ledgers{
		assets:    registry,
		saleToken: assetledger.NewRPCClient(cfg.Ledgers.Endpoint, cfg.Ledgers.SaleToken),
	}, nil
}

// devLedgers builds in-memory ledgers. The owner receives sale tokens and
// every dev account receives payment assets, all pre-approved for custody.
func devLedgers(cfg *config.Config, accounts []string, logger *zap.Logger) (*ledgers, error) {
	const wholeUnits = 1_000_000_000

	saleToken := assetledger.NewMemory("SALE")
	supply := new(big.Int).Mul(big.NewInt(wholeUnits), domain.Pow10(cfg.Sale.TokenDecimals))
	saleToken.Mint(cfg.Sale.Owner, supply)
	saleToken.Approve(cfg.Sale.Owner, cfg.Custody, supply)

	memories := make(map[domain.Asset]*assetledger.Memory, len(domain.Assets))
	byAsset := make(map[domain.Asset]assetledger.Ledger, len(domain.Assets))
	for _, a := range domain.Assets {
		m := assetledger.NewMemory(a.String())
		memories[a] = m
		byAsset[a] = m
	}

	for _, raw := range accounts {
		account, err := domain.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("dev account %q: %w", raw, err)
		}
		for a, m := range memories {
			amount := new(big.Int).Mul(big.NewInt(wholeUnits), domain.Pow10(a.Decimals()))
			m.Mint(account, amount)
			m.Approve(account, cfg.Custody, amount)
		}
		logger.Info("dev account funded", zap.Stringer("account", account))
	}

	registry, err := assetledger.NewRegistry(byAsset)
	if err != nil {
		return nil, err
	}
	return &ledgers{assets: registry, saleToken: saleToken}, nil
}
