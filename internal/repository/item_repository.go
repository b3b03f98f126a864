package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/iliyamo/items-api/internal/database"
	"github.com/iliyamo/items-api/internal/model"
)

const itemsTable = "items"

var (
	itemColumns   = []string{"id", "name", "COALESCE(description, '') AS description"}
	returningItem = "RETURNING id, name, COALESCE(description, '') AS description"
)

// ItemRepo encapsulates all queries against the items table.  It is bound to
// a single session, so one repo serves one unit of work.
type ItemRepo struct {
	s *database.Session
}

// NewItemRepo constructs an ItemRepo over the provided session.
func NewItemRepo(s *database.Session) *ItemRepo {
	return &ItemRepo{s: s}
}

// Create inserts a new item and commits.  On success item is overwritten with
// the stored row, including the generated ID.
func (r *ItemRepo) Create(ctx context.Context, item *model.Item) error {
	query, args, err := r.s.Builder().
		Insert(itemsTable).
		Columns("name", "description").
		Values(item.Name, item.Description).
		Suffix(returningItem).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	return r.s.Commit(ctx, func(q database.Querier) error {
		if err := sqlscan.Get(ctx, q, item, query, args...); err != nil {
			return fmt.Errorf("inserting item: %w", err)
		}
		return nil
	})
}

// GetByID fetches an item by primary key.  It returns ErrItemNotFound if no
// row matches.  Reads run on the session connection without a transaction.
func (r *ItemRepo) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	if !r.s.Dialect().HoldsKey(id) {
		return nil, ErrItemNotFound
	}
	query, args, err := r.s.Builder().
		Select(itemColumns...).
		From(itemsTable).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var item model.Item
	if err := sqlscan.Get(ctx, r.s.Conn(), &item, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	return &item, nil
}

// Update overwrites name and description of the row item.ID and commits.
// item is reloaded from the stored row.  ErrItemNotFound is returned when the
// row does not exist; nothing is written in that case.
func (r *ItemRepo) Update(ctx context.Context, item *model.Item) error {
	if !r.s.Dialect().HoldsKey(item.ID) {
		return ErrItemNotFound
	}
	query, args, err := r.s.Builder().
		Update(itemsTable).
		Set("name", item.Name).
		Set("description", item.Description).
		Where("id = ?", item.ID).
		Suffix(returningItem).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	return r.s.Commit(ctx, func(q database.Querier) error {
		var updated model.Item
		if err := sqlscan.Get(ctx, q, &updated, query, args...); err != nil {
			if sqlscan.NotFound(err) {
				return ErrItemNotFound
			}
			return fmt.Errorf("updating item: %w", err)
		}
		*item = updated
		return nil
	})
}

// Delete removes the row with the given id and commits.  It is a hard delete;
// ErrItemNotFound is returned when no row was affected.
func (r *ItemRepo) Delete(ctx context.Context, id int64) error {
	if !r.s.Dialect().HoldsKey(id) {
		return ErrItemNotFound
	}
	query, args, err := r.s.Builder().
		Delete(itemsTable).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	return r.s.Commit(ctx, func(q database.Querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}
		if n == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

// IsNotFound reports whether err means the item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
