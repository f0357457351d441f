// Package main runs the presale ledger service: the HTTP API, the journal
// websocket feed and the analytics mirror.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"presale-ledger/internal/analytics"
	"presale-ledger/internal/api"
	"presale-ledger/internal/config"
	"presale-ledger/internal/logging"
	"presale-ledger/internal/presale"
)

const shutdownTimeout = 30 * time.Second

func main() {
	config.LoadEnvFile(".env")

	configPath := flag.String("config", config.Getenv("PRESALE_CONFIG", "presale.yaml"), "Sale configuration file")
	addr := flag.String("addr", config.Getenv("PRESALE_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and asset ledgers")
	devAccounts := flag.String("dev-accounts", "", "Comma-separated accounts funded in memory mode")
	logLevel := flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level")
	devLog := flag.Bool("dev-log", false, "Human-readable console logs")

	flag.Parse()

	logger, err := logging.New(*logLevel, *devLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, options{
		configPath:    *configPath,
		addr:          *addr,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		devAccounts:   splitList(*devAccounts),
	}); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type options struct {
	configPath    string
	addr          string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	devAccounts   []string
}

func run(logger *zap.Logger, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if !opts.useMemory {
		if opts.postgresDSN == "" {
			return errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")
		}
		if err := cfg.RequireRemoteLedgers(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, logger, opts)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.close()

	ledgers, err := openLedgers(cfg, opts, logger)
	if err != nil {
		return fmt.Errorf("asset ledgers: %w", err)
	}

	engine, err := presale.New(ctx, presale.Options{
		Config:      cfg.Sale,
		Bonus:       cfg.Bonus,
		Assets:      ledgers.assets,
		SaleToken:   ledgers.saleToken,
		Custody:     cfg.Custody,
		LedgerStore: stores.ledger,
		Journal:     stores.journal,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	hub := api.NewHub(nil, logger)
	engine.Subscribe(hub)

	var mirror *analytics.Mirror
	if stores.analytics != nil {
		mirror = analytics.NewMirror(analytics.MirrorOptions{
			Source: stores.journal,
			Target: stores.analytics,
			Logger: logger,
		})
		// Subscribe before backfilling so no commit falls between the two.
		engine.Subscribe(mirror)
		if _, err := mirror.Backfill(ctx); err != nil {
			logger.Warn("analytics backfill failed", zap.Error(err))
		}
	}

	server := api.New(api.Options{
		Engine:  engine,
		Journal: stores.journal,
		Inflows: stores.inflows(),
		Hub:     hub,
		Logger:  logger,
	})
	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", opts.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if mirror != nil {
		g.Go(func() error {
			if err := mirror.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("analytics mirror: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
