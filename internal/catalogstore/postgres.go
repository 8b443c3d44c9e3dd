// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package catalogstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"
	"github.com/shopspring/decimal"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"
)

// NewConnectionPool opens a pgx pool with query tracing.
func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "catalogdb",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// PostgresStore keeps records and quantities in two tables of one database.
// Each put is its own statement; there is no transaction across them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgresStore connects and verifies the schema version.
func OpenPostgresStore(ctx context.Context, url string, opts ...migrations.CheckOption) (*PostgresStore, error) {
	pool, err := NewConnectionPool(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect catalogdb: %w", err)
	}
	if err := migrations.CheckVersion(ctx, pool, opts...); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	upsertRecord = `INSERT INTO catalog_records (id, price, title, description)
VALUES ($1, $2::numeric, $3, $4)
ON CONFLICT (id) DO UPDATE SET price = EXCLUDED.price, title = EXCLUDED.title, description = EXCLUDED.description`

	upsertQuantity = `INSERT INTO catalog_quantities (product_id, count)
VALUES ($1, $2)
ON CONFLICT (product_id) DO UPDATE SET count = EXCLUDED.count`

	selectRecord   = `SELECT id, price::text, title, description FROM catalog_records WHERE id = $1`
	selectRecords  = `SELECT id, price::text, title, description FROM catalog_records ORDER BY id`
	selectQuantity = `SELECT product_id, count FROM catalog_quantities WHERE product_id = $1`
	selectQuants   = `SELECT product_id, count FROM catalog_quantities ORDER BY product_id`
)

func (s *PostgresStore) PutRecord(ctx context.Context, r catalog.Record) error {
	if _, err := s.pool.Exec(ctx, upsertRecord, r.ID, r.Price.String(), r.Title, r.Description); err != nil {
		return fmt.Errorf("put record %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) PutQuantity(ctx context.Context, q catalog.Quantity) error {
	if _, err := s.pool.Exec(ctx, upsertQuantity, q.ProductID, q.Count); err != nil {
		return fmt.Errorf("put quantity %s: %w", q.ProductID, err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (catalog.Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, selectRecord, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]catalog.Record, error) {
	rows, err := s.pool.Query(ctx, selectRecords)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []catalog.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetQuantity(ctx context.Context, productID string) (catalog.Quantity, error) {
	var q catalog.Quantity
	err := s.pool.QueryRow(ctx, selectQuantity, productID).Scan(&q.ProductID, &q.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Quantity{}, fmt.Errorf("quantity %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return catalog.Quantity{}, fmt.Errorf("get quantity %s: %w", productID, err)
	}
	return q, nil
}

func (s *PostgresStore) ListQuantities(ctx context.Context) ([]catalog.Quantity, error) {
	rows, err := s.pool.Query(ctx, selectQuants)
	if err != nil {
		return nil, fmt.Errorf("list quantities: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Quantity, error) {
		var q catalog.Quantity
		err := row.Scan(&q.ProductID, &q.Count)
		return q, err
	})
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (catalog.Record, error) {
	var (
		r     catalog.Record
		price string
	)
	if err := row.Scan(&r.ID, &price, &r.Title, &r.Description); err != nil {
		return catalog.Record{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return catalog.Record{}, fmt.Errorf("record %s price %q: %w", r.ID, price, err)
	}
	r.Price = p
	return r, nil
}
