package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
)

// Querier is the subset of *sql.Conn and *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the process-wide connection pool and hands out one session per
// unit of work.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

// WithSession borrows a dedicated connection from the pool, runs fn with it
// and returns the connection on every exit path, including a panic in fn.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	sess := &Session{
		conn:    conn,
		dialect: s.dialect,
		builder: squirrel.StatementBuilder.PlaceholderFormat(s.dialect.placeholder()),
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release session: %w", cerr)
		}
	}()
	return fn(sess)
}

// Session is one borrowed connection.  It must not outlive the WithSession
// callback that produced it.
type Session struct {
	conn    *sql.Conn
	dialect Dialect
	builder squirrel.StatementBuilderType
}

// Conn is used for reads, which run without an explicit transaction.
func (s *Session) Conn() Querier { return s.conn }

func (s *Session) Dialect() Dialect { return s.dialect }

// Builder returns a squirrel builder using the dialect's placeholders.
func (s *Session) Builder() squirrel.StatementBuilderType { return s.builder }

// Commit runs fn in a transaction and commits it, or rolls back when fn fails.
func (s *Session) Commit(ctx context.Context, fn func(Querier) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// an open tx pins the conn, so WithSession could not release it
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
			}
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()
	return fn(tx)
}
