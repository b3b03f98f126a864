package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DBConfig{Path: filepath.Join(t.TempDir(), "items.db")}
	db, err := Open(context.Background(), SQLite, DSN(SQLite, cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, SQLite, nil))
	return db
}
