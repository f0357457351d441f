package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"presale-ledger/internal/storage/migrations"
	pgstore "presale-ledger/internal/storage/postgres"
)

var (
	migratePostgresDSN   string
	migrateClickhouseDSN string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	Long: `Applies the PostgreSQL ledger schema and, when a ClickHouse DSN is given,
the analytics journal schema. Migrations are idempotent.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migratePostgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	migrateCmd.Flags().StringVar(&migrateClickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePostgresDSN == "" && migrateClickhouseDSN == "" {
		return errors.New("--postgres-dsn or --clickhouse-dsn is required")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if migratePostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, migratePostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		for _, name := range applied {
			fmt.Fprintf(out, "postgres: %s\n", name)
		}
	}

	if migrateClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, migrateClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		fmt.Fprintln(out, "clickhouse: journal schema applied")
	}
	return nil
}
