package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	charmlog "github.com/charmbracelet/log"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// Migrate ensures the items table exists.  It is idempotent: goose tracks
// applied versions and the DDL itself uses IF NOT EXISTS, so an already
// initialized store is left untouched.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, log *charmlog.Logger) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()

	goose.SetBaseFS(migrationsFS)
	if log != nil {
		goose.SetLogger(log)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	gooseDialect, dir := "postgres", "migrations/postgres"
	if d == SQLite {
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
