package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFiles_Embedded(t *testing.T) {
	files, err := readFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_ledger.sql", files[0].name)
	assert.Contains(t, files[0].sql, "CREATE TABLE IF NOT EXISTS sale_state")
	assert.Equal(t, "002_journal.sql", files[1].name)

	files, err = readFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, files, 1)
	stmts, err := splitStatements(files[0].sql)
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name: "comments and blank statements",
			script: `
-- first table
CREATE TABLE a (x Int8);

-- second table
CREATE TABLE b (y Int8)
ENGINE = Memory; -- trailing
;`,
			want: []string{"CREATE TABLE a (x Int8)", "CREATE TABLE b (y Int8)\nENGINE = Memory"},
		},
		{
			name:   "semicolon and dashes inside literal",
			script: `SELECT 'a;b -- c'; SELECT 'it''s'`,
			want:   []string{"SELECT 'a;b -- c'", "SELECT 'it''s'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitStatements(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := splitStatements(`SELECT 'open`)
	assert.Error(t, err)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/presale_journal")
	require.NoError(t, err)
	assert.Equal(t, "presale_journal", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)

	_, err = databaseFromDSN("clickhouse://localhost:9000/x;DROP")
	assert.Error(t, err)
}
