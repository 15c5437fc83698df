package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognicore/metaload/internal/util"
	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

const lookupChunk = 1000

var _ store.Store = (*Store)(nil)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements store.Store on PostgreSQL. Bulk writes send one
// statement per call with array parameters expanded through unnest.
type Store struct {
	conn  pgxIConn
	close func()
}

// Open connects a pool to dsn, retrying the first ping, and makes sure the
// schema exists.
func Open(ctx context.Context, dsn string, pingTries int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	err = util.RetryErrWithContext(ctx, pingTries, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w: %w", internalerr.ErrStoreUnavailable, err)
	}

	s := &Store{conn: pool, close: pool.Close}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithConnection wraps an existing connection, pool or transaction.
// The caller keeps ownership of conn.
func NewWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	asin TEXT PRIMARY KEY CHECK (asin <> ''),
	source_id BIGINT NOT NULL,
	title TEXT NOT NULL CHECK (title <> ''),
	product_group TEXT,
	salesrank INTEGER,
	review_count INTEGER NOT NULL DEFAULT 0,
	avg_rating DOUBLE PRECISION,
	downloads INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
	id BIGSERIAL PRIMARY KEY,
	key TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS category_edges (
	parent_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	child_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	PRIMARY KEY (parent_id, child_id),
	CHECK (parent_id <> child_id)
);

CREATE TABLE IF NOT EXISTS product_categories (
	asin TEXT NOT NULL REFERENCES products(asin) ON DELETE CASCADE,
	category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	PRIMARY KEY (asin, category_id)
);

CREATE TABLE IF NOT EXISTS related_products (
	asin_a TEXT NOT NULL REFERENCES products(asin) ON DELETE CASCADE,
	asin_b TEXT NOT NULL REFERENCES products(asin) ON DELETE CASCADE,
	PRIMARY KEY (asin_a, asin_b),
	CHECK (asin_a COLLATE "C" < asin_b COLLATE "C")
);

CREATE TABLE IF NOT EXISTS reviews (
	id BIGSERIAL PRIMARY KEY,
	asin TEXT NOT NULL REFERENCES products(asin) ON DELETE CASCADE,
	customer TEXT NOT NULL,
	rating INTEGER NOT NULL,
	review_date DATE,
	votes INTEGER NOT NULL DEFAULT 0,
	helpful INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reviews_asin ON reviews(asin);
CREATE INDEX IF NOT EXISTS idx_product_categories_category ON product_categories(category_id);
`

// WithinUnit runs fn inside one transaction.
func (s *Store) WithinUnit(ctx context.Context, fn func(store.Writer) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CategoryIDs fetches durable ids with key = ANY($1), chunked.
func (s *Store) CategoryIDs(ctx context.Context, keys []string) (map[string]int64, error) {
	keys = store.DedupeStrings(keys)
	out := make(map[string]int64, len(keys))

	logger.Debug("[Store][CategoryIDs] Fetching category ids", "keys", len(keys))
	err := store.ChunkRange(len(keys), lookupChunk, func(start, end int) error {
		rows, err := s.conn.Query(ctx, `SELECT key, id FROM categories WHERE key = ANY($1)`, keys[start:end])
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var id int64
			if err := rows.Scan(&key, &id); err != nil {
				return err
			}
			out[key] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch category ids: %w", err)
	}
	return out, nil
}

// GetProduct retrieves a product by ASIN.
func (s *Store) GetProduct(ctx context.Context, asin string) (store.Product, bool, error) {
	const query = `
SELECT source_id, asin, title, COALESCE(product_group, ''), salesrank, review_count, avg_rating, downloads
FROM products WHERE asin = $1`

	var (
		p      store.Product
		rank   *int32
		rating *float64
		count  int32
		dl     int32
	)
	err := s.conn.QueryRow(ctx, query, asin).Scan(&p.SourceID, &p.ASIN, &p.Title, &p.Group, &rank, &count, &rating, &dl)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.Product{}, false, nil
	}
	if err != nil {
		return store.Product{}, false, err
	}
	if rank != nil {
		v := int(*rank)
		p.SalesRank = &v
	}
	p.AvgRating = rating
	p.ReviewCount = int(count)
	p.Downloads = int(dl)
	return p, true, nil
}

// Counts returns row totals per table.
func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	const query = `
SELECT
	(SELECT COUNT(*) FROM products),
	(SELECT COUNT(*) FROM categories),
	(SELECT COUNT(*) FROM category_edges),
	(SELECT COUNT(*) FROM product_categories),
	(SELECT COUNT(*) FROM related_products),
	(SELECT COUNT(*) FROM reviews)`

	var c store.Counts
	err := s.conn.QueryRow(ctx, query).Scan(&c.Products, &c.Categories, &c.CategoryEdges, &c.Memberships, &c.Related, &c.Reviews)
	if err != nil {
		return store.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
