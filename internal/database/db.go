package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/iliyamo/items-api/internal/config"

	// Register the pgx ("pgx") and modernc ("sqlite") drivers with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL driver, placeholder style and migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the DB_DRIVER values understood by the service.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported DB_DRIVER %q", s)
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

func (d Dialect) placeholder() squirrel.PlaceholderFormat {
	if d == SQLite {
		return squirrel.Question
	}
	return squirrel.Dollar
}

// HoldsKey reports whether id fits the items primary key column.  Postgres
// stores it as SERIAL (int4) and pgx refuses to encode a wider argument, so
// out-of-range ids are answered without a query.
func (d Dialect) HoldsKey(id int64) bool {
	if d == SQLite {
		return true
	}
	return id >= math.MinInt32 && id <= math.MaxInt32
}

// DSN renders the connection string for cfg in dialect d.
func DSN(d Dialect, cfg config.DBConfig) string {
	if d == SQLite {
		return cfg.Path + "?_pragma=busy_timeout(5000)"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Pass),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Target is a log-safe description of where cfg points.
func Target(d Dialect, cfg config.DBConfig) string {
	if d == SQLite {
		return cfg.Path
	}
	return net.JoinHostPort(cfg.Host, cfg.Port) + "/" + cfg.Name
}

// Open connects to the store and verifies the connection.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}

	// Pool settings
	if d == SQLite {
		// one writer at a time; each request still gets its own session in turn
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	return db, nil
}
