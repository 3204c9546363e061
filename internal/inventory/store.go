// Package inventory owns per-drug stock records. Every stock mutation in
// the application routes through TryDecrement or Increment.
package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"rxdesk/m/domain"
)

type Store struct {
	q sqlx.ExtContext
}

// New constructs a Store bound to the database.
func New(db *sqlx.DB) *Store {
	return &Store{q: db}
}

// WithTx returns a Store whose operations run on the given transaction,
// so callers can make a stock change atomic with their own writes.
func (s *Store) WithTx(tx *sqlx.Tx) *Store {
	return &Store{q: tx}
}

// Get returns the stock record for one drug.
func (s *Store) Get(ctx context.Context, name string) (domain.DrugStock, error) {
	var ds domain.DrugStock
	err := sqlx.GetContext(ctx, s.q, &ds, `SELECT name, stock, form, strength, category FROM drug_stock WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DrugStock{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DrugStock{}, err
	}
	return ds, nil
}

// List returns stock records, optionally filtered by a case-insensitive
// name substring.
func (s *Store) List(ctx context.Context, query string) ([]domain.DrugStock, error) {
	items := []domain.DrugStock{}
	if query == "" {
		err := sqlx.SelectContext(ctx, s.q, &items, `SELECT name, stock, form, strength, category FROM drug_stock ORDER BY name`)
		return items, err
	}
	like := "%" + query + "%"
	err := sqlx.SelectContext(ctx, s.q, &items, `SELECT name, stock, form, strength, category FROM drug_stock WHERE name LIKE ? ORDER BY name`, like)
	return items, err
}

// TryDecrement subtracts amount from the drug's stock. The check and the
// subtract are a single conditional UPDATE, so a decrement that would go
// negative changes nothing and two sessions cannot both pass the
// availability check on the same row.
func (s *Store) TryDecrement(ctx context.Context, name string, amount int64) error {
	if amount < 0 {
		return domain.ErrInsufficientStock
	}
	res, err := s.q.ExecContext(ctx, `UPDATE drug_stock SET stock = stock - ? WHERE name = ? AND stock >= ?`, amount, name, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, name); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

// Increment adds amount back to the drug's stock. There is no upper
// bound in this domain.
func (s *Store) Increment(ctx context.Context, name string, amount int64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE drug_stock SET stock = stock + ? WHERE name = ?`, amount, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Upsert inserts a drug or replaces its record; receiving/admin path and
// the seed loader's programmatic counterpart.
func (s *Store) Upsert(ctx context.Context, ds domain.DrugStock) error {
	if ds.Stock < 0 {
		return domain.ErrInsufficientStock
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO drug_stock (name, stock, form, strength, category) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET stock = excluded.stock, form = excluded.form, strength = excluded.strength, category = excluded.category`,
		ds.Name, ds.Stock, ds.Form, ds.Strength, ds.Category)
	return err
}
