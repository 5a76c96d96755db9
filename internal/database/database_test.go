package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:          "sqlite",
		URL:             "file:" + filepath.Join(t.TempDir(), "helpcy.db") + "?_pragma=busy_timeout(5000)",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
}

func TestInitDB_SQLite(t *testing.T) {
	dm := NewManager(observability.NewNopLogger())
	ctx := context.Background()

	db, dialect, err := dm.InitDB(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, DialectSQLite, dialect)

	for _, table := range []string{"report_drafts", "submitted_reports"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// A second run finds nothing to apply.
	require.NoError(t, dm.RunMigrations(ctx, db, dialect))
}

func TestInitDB_Errors(t *testing.T) {
	dm := NewManager(observability.NewNopLogger())

	_, _, err := dm.InitDB(context.Background(), config.DatabaseConfig{Driver: "oracle", URL: "x"})
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeInvalidInput, contextutils.GetErrorCode(err))

	_, _, err = dm.InitDB(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeMissingRequired, contextutils.GetErrorCode(err))
}

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", DialectPostgres.Rebind(q))
	assert.Equal(t, q, DialectSQLite.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
		"":           DialectPostgres,
		"SQLite":     DialectSQLite,
		"sqlite3":    DialectSQLite,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestExtractDatabaseName(t *testing.T) {
	assert.Equal(t, "reports", extractDatabaseName("postgres://u:p@localhost:5432/reports?sslmode=disable"))
	assert.Equal(t, "helpcy.db", extractDatabaseName("file:/tmp/helpcy.db?_pragma=busy_timeout(5000)"))
	assert.Equal(t, "helpcy", extractDatabaseName(""))
}
