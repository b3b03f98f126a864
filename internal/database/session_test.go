package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WithSession(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, SQLite)

	// sqlite pools hold a single connection, so a leaked session would make
	// the follow-up acquisition time out.
	acquireAgain := func(t *testing.T) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, store.WithSession(ctx, func(*Session) error { return nil }))
		assert.Zero(t, db.Stats().InUse)
	}

	t.Run("Should release the session after success", func(t *testing.T) {
		require.NoError(t, store.WithSession(context.Background(), func(s *Session) error {
			assert.Equal(t, 1, db.Stats().InUse)
			var one int
			return s.Conn().QueryRowContext(context.Background(), "SELECT 1").Scan(&one)
		}))
		acquireAgain(t)
	})

	t.Run("Should release the session after an error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithSession(context.Background(), func(*Session) error { return boom })
		assert.ErrorIs(t, err, boom)
		acquireAgain(t)
	})

	t.Run("Should release the session after a panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = store.WithSession(context.Background(), func(*Session) error { panic("boom") })
		})
		acquireAgain(t)
	})

	t.Run("Should release the session after a panic inside a transaction", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = store.WithSession(context.Background(), func(s *Session) error {
				return s.Commit(context.Background(), func(Querier) error { panic("boom") })
			})
		})
		acquireAgain(t)
	})
}

func TestSession_Commit(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, SQLite)
	ctx := context.Background()
	count := func(t *testing.T) int {
		t.Helper()
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n))
		return n
	}

	t.Run("Should commit the statement", func(t *testing.T) {
		err := store.WithSession(ctx, func(s *Session) error {
			return s.Commit(ctx, func(q Querier) error {
				_, err := q.ExecContext(ctx, "INSERT INTO items (name) VALUES ('kept')")
				return err
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t))
	})

	t.Run("Should roll back when the callback fails", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithSession(ctx, func(s *Session) error {
			return s.Commit(ctx, func(q Querier) error {
				if _, err := q.ExecContext(ctx, "INSERT INTO items (name) VALUES ('dropped')"); err != nil {
					return err
				}
				return boom
			})
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count(t))
	})
}
