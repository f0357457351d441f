package migrations

import (
	"context"
	"fmt"

	"presale-ledger/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order and
// returns the names it applied. Migrations are expected to be idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	files, err := readFiles(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.sql); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		applied = append(applied, f.name)
	}

	return applied, nil
}
