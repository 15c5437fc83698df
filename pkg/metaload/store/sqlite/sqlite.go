package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/metaload/pkg/metaload/store"
)

const (
	dateLayout = "2006-01-02"

	// keeps IN (...) lists well below SQLite's bound parameter limit
	lookupChunk = 500
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode and foreign keys enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// pragmas are per connection, and the loader is a single writer anyway
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
	asin TEXT PRIMARY KEY CHECK(asin <> ''),
	source_id INTEGER NOT NULL,
	title TEXT NOT NULL CHECK(title <> ''),
	product_group TEXT,
	salesrank INTEGER,
	review_count INTEGER NOT NULL DEFAULT 0,
	avg_rating REAL,
	downloads INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS category_edges (
	parent_id INTEGER NOT NULL,
	child_id INTEGER NOT NULL,
	PRIMARY KEY(parent_id, child_id),
	CHECK(parent_id <> child_id),
	FOREIGN KEY(parent_id) REFERENCES categories(id) ON DELETE CASCADE,
	FOREIGN KEY(child_id) REFERENCES categories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS product_categories (
	asin TEXT NOT NULL,
	category_id INTEGER NOT NULL,
	PRIMARY KEY(asin, category_id),
	FOREIGN KEY(asin) REFERENCES products(asin) ON DELETE CASCADE,
	FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS related_products (
	asin_a TEXT NOT NULL,
	asin_b TEXT NOT NULL,
	PRIMARY KEY(asin_a, asin_b),
	CHECK(asin_a < asin_b),
	FOREIGN KEY(asin_a) REFERENCES products(asin) ON DELETE CASCADE,
	FOREIGN KEY(asin_b) REFERENCES products(asin) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS reviews (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asin TEXT NOT NULL,
	customer TEXT NOT NULL,
	rating INTEGER NOT NULL,
	review_date TEXT,
	votes INTEGER NOT NULL DEFAULT 0,
	helpful INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(asin) REFERENCES products(asin) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_reviews_asin ON reviews(asin);
CREATE INDEX IF NOT EXISTS idx_product_categories_category ON product_categories(category_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// WithinUnit runs fn inside one transaction
func (s *sqliteStore) WithinUnit(ctx context.Context, fn func(store.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&txWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// CategoryIDs fetches durable ids for keys in chunks
func (s *sqliteStore) CategoryIDs(ctx context.Context, keys []string) (map[string]int64, error) {
	keys = store.DedupeStrings(keys)
	out := make(map[string]int64, len(keys))
	err := store.ChunkRange(len(keys), lookupChunk, func(start, end int) error {
		chunk := keys[start:end]
		query := `SELECT key, id FROM categories WHERE key IN (` + placeholders(len(chunk)) + `)`
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
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
		return nil, err
	}
	return out, nil
}

// GetProduct retrieves a product by ASIN
func (s *sqliteStore) GetProduct(ctx context.Context, asin string) (store.Product, bool, error) {
	const query = `
SELECT source_id, asin, title, COALESCE(product_group, ''), salesrank, review_count, avg_rating, downloads
FROM products WHERE asin = ?`

	var (
		p      store.Product
		rank   sql.NullInt64
		rating sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, asin).Scan(
		&p.SourceID, &p.ASIN, &p.Title, &p.Group, &rank, &p.ReviewCount, &rating, &p.Downloads,
	)
	if err == sql.ErrNoRows {
		return store.Product{}, false, nil
	}
	if err != nil {
		return store.Product{}, false, err
	}
	if rank.Valid {
		v := int(rank.Int64)
		p.SalesRank = &v
	}
	if rating.Valid {
		v := rating.Float64
		p.AvgRating = &v
	}
	return p, true, nil
}

// Counts returns row totals per table
func (s *sqliteStore) Counts(ctx context.Context) (store.Counts, error) {
	var c store.Counts
	targets := []struct {
		table string
		dst   *int64
	}{
		{"products", &c.Products},
		{"categories", &c.Categories},
		{"category_edges", &c.CategoryEdges},
		{"product_categories", &c.Memberships},
		{"related_products", &c.Related},
		{"reviews", &c.Reviews},
	}
	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return store.Counts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) InsertCategories(ctx context.Context, cats []store.Category) error {
	if len(cats) == 0 {
		return nil
	}
	stmt, err := w.tx.PrepareContext(ctx, `INSERT INTO categories (key, name) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cats {
		if _, err := stmt.ExecContext(ctx, c.Key, c.Name); err != nil {
			return fmt.Errorf("insert category %q: %w", c.Key, err)
		}
	}
	return nil
}

func (w *txWriter) InsertCategoryEdges(ctx context.Context, edges []store.CategoryEdge) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := w.tx.PrepareContext(ctx, `INSERT INTO category_edges (parent_id, child_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.ParentID, e.ChildID); err != nil {
			return fmt.Errorf("insert category edge %d->%d: %w", e.ParentID, e.ChildID, err)
		}
	}
	return nil
}

func (w *txWriter) UpsertProducts(ctx context.Context, products []store.Product) error {
	if len(products) == 0 {
		return nil
	}
	const query = `
INSERT INTO products (asin, source_id, title, product_group, salesrank, review_count, avg_rating, downloads)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(asin) DO UPDATE SET
	title=excluded.title,
	product_group=excluded.product_group,
	salesrank=excluded.salesrank,
	review_count=excluded.review_count,
	avg_rating=excluded.avg_rating
`
	stmt, err := w.tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range products {
		var rank, rating any
		if p.SalesRank != nil {
			rank = *p.SalesRank
		}
		if p.AvgRating != nil {
			rating = *p.AvgRating
		}
		_, err := stmt.ExecContext(ctx, p.ASIN, p.SourceID, p.Title, p.Group, rank, p.ReviewCount, rating, p.Downloads)
		if err != nil {
			return fmt.Errorf("upsert product %q: %w", p.ASIN, err)
		}
	}
	return nil
}

func (w *txWriter) InsertMemberships(ctx context.Context, ms []store.Membership) error {
	if len(ms) == 0 {
		return nil
	}
	stmt, err := w.tx.PrepareContext(ctx, `INSERT INTO product_categories (asin, category_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range ms {
		if _, err := stmt.ExecContext(ctx, m.ASIN, m.CategoryID); err != nil {
			return fmt.Errorf("insert membership %q/%d: %w", m.ASIN, m.CategoryID, err)
		}
	}
	return nil
}

func (w *txWriter) AppendReviews(ctx context.Context, reset []string, reviews []store.Review) error {
	if len(reset) > 0 {
		del, err := w.tx.PrepareContext(ctx, `DELETE FROM reviews WHERE asin = ?`)
		if err != nil {
			return err
		}
		defer del.Close()
		for _, asin := range store.DedupeStrings(reset) {
			if _, err := del.ExecContext(ctx, asin); err != nil {
				return fmt.Errorf("clear reviews %q: %w", asin, err)
			}
		}
	}

	if len(reviews) == 0 {
		return nil
	}
	ins, err := w.tx.PrepareContext(ctx, `INSERT INTO reviews (asin, customer, rating, review_date, votes, helpful) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, r := range reviews {
		if _, err := ins.ExecContext(ctx, r.ASIN, r.Customer, r.Rating, formatDate(r.Date), r.Votes, r.Helpful); err != nil {
			return fmt.Errorf("insert review %q: %w", r.ASIN, err)
		}
	}
	return nil
}

func (w *txWriter) InsertRelated(ctx context.Context, pairs []store.RelatedPair) error {
	if len(pairs) == 0 {
		return nil
	}
	stmt, err := w.tx.PrepareContext(ctx, `INSERT INTO related_products (asin_a, asin_b) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.A, p.B); err != nil {
			return fmt.Errorf("insert related %q/%q: %w", p.A, p.B, err)
		}
	}
	return nil
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
