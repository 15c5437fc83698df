package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

type txWriter struct {
	tx pgxv5.Tx
}

func (w *txWriter) InsertCategories(ctx context.Context, cats []store.Category) error {
	if len(cats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(cats))
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		keys = append(keys, c.Key)
		names = append(names, c.Name)
	}

	logger.Debug("[Store][InsertCategories] Bulk inserting categories", "categories", len(cats))
	_, err := w.tx.Exec(ctx, `
INSERT INTO categories (key, name)
SELECT * FROM unnest($1::text[], $2::text[])
ON CONFLICT (key) DO NOTHING`, keys, names)
	if err != nil {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

func (w *txWriter) InsertCategoryEdges(ctx context.Context, edges []store.CategoryEdge) error {
	if len(edges) == 0 {
		return nil
	}
	parents := make([]int64, 0, len(edges))
	children := make([]int64, 0, len(edges))
	for _, e := range edges {
		parents = append(parents, e.ParentID)
		children = append(children, e.ChildID)
	}

	logger.Debug("[Store][InsertCategoryEdges] Bulk inserting edges", "edges", len(edges))
	_, err := w.tx.Exec(ctx, `
INSERT INTO category_edges (parent_id, child_id)
SELECT * FROM unnest($1::bigint[], $2::bigint[])
ON CONFLICT DO NOTHING`, parents, children)
	if err != nil {
		return fmt.Errorf("insert category edges: %w", err)
	}
	return nil
}

// productColumns splits products into unnest columns. A key that repeats
// keeps its last row, since ON CONFLICT DO UPDATE cannot touch a row twice.
type productColumns struct {
	asins    []string
	sources  []int64
	titles   []string
	groups   []string
	ranks    []pgtype.Int4
	counts   []int32
	ratings  []pgtype.Float8
	download []int32
}

func newProductColumns(products []store.Product) productColumns {
	last := make(map[string]int, len(products))
	for i, p := range products {
		last[p.ASIN] = i
	}
	var c productColumns
	for i, p := range products {
		if last[p.ASIN] != i {
			continue
		}
		rank := pgtype.Int4{}
		if p.SalesRank != nil {
			rank = pgtype.Int4{Int32: int32(*p.SalesRank), Valid: true}
		}
		rating := pgtype.Float8{}
		if p.AvgRating != nil {
			rating = pgtype.Float8{Float64: *p.AvgRating, Valid: true}
		}
		c.asins = append(c.asins, p.ASIN)
		c.sources = append(c.sources, p.SourceID)
		c.titles = append(c.titles, p.Title)
		c.groups = append(c.groups, p.Group)
		c.ranks = append(c.ranks, rank)
		c.counts = append(c.counts, int32(p.ReviewCount))
		c.ratings = append(c.ratings, rating)
		c.download = append(c.download, int32(p.Downloads))
	}
	return c
}

func (w *txWriter) UpsertProducts(ctx context.Context, products []store.Product) error {
	if len(products) == 0 {
		return nil
	}
	c := newProductColumns(products)

	logger.Debug("[Store][UpsertProducts] Bulk upserting products", "products", len(c.asins))
	_, err := w.tx.Exec(ctx, `
INSERT INTO products (asin, source_id, title, product_group, salesrank, review_count, avg_rating, downloads)
SELECT * FROM unnest($1::text[], $2::bigint[], $3::text[], $4::text[], $5::int4[], $6::int4[], $7::float8[], $8::int4[])
ON CONFLICT (asin) DO UPDATE SET
	title = EXCLUDED.title,
	product_group = EXCLUDED.product_group,
	salesrank = EXCLUDED.salesrank,
	review_count = EXCLUDED.review_count,
	avg_rating = EXCLUDED.avg_rating`,
		c.asins, c.sources, c.titles, c.groups, c.ranks, c.counts, c.ratings, c.download)
	if err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return nil
}

func (w *txWriter) InsertMemberships(ctx context.Context, ms []store.Membership) error {
	if len(ms) == 0 {
		return nil
	}
	asins := make([]string, 0, len(ms))
	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		asins = append(asins, m.ASIN)
		ids = append(ids, m.CategoryID)
	}

	logger.Debug("[Store][InsertMemberships] Bulk inserting memberships", "memberships", len(ms))
	_, err := w.tx.Exec(ctx, `
INSERT INTO product_categories (asin, category_id)
SELECT * FROM unnest($1::text[], $2::bigint[])
ON CONFLICT DO NOTHING`, asins, ids)
	if err != nil {
		return fmt.Errorf("insert memberships: %w", err)
	}
	return nil
}

func (w *txWriter) AppendReviews(ctx context.Context, reset []string, reviews []store.Review) error {
	if len(reset) > 0 {
		if _, err := w.tx.Exec(ctx, `DELETE FROM reviews WHERE asin = ANY($1)`, store.DedupeStrings(reset)); err != nil {
			return fmt.Errorf("clear reviews: %w", err)
		}
	}
	if len(reviews) == 0 {
		return nil
	}

	var (
		owners    = make([]string, 0, len(reviews))
		customers = make([]string, 0, len(reviews))
		ratings   = make([]int32, 0, len(reviews))
		dates     = make([]pgtype.Date, 0, len(reviews))
		votes     = make([]int32, 0, len(reviews))
		helpful   = make([]int32, 0, len(reviews))
	)
	for _, r := range reviews {
		owners = append(owners, r.ASIN)
		customers = append(customers, r.Customer)
		ratings = append(ratings, int32(r.Rating))
		dates = append(dates, pgtype.Date{Time: r.Date, Valid: !r.Date.IsZero()})
		votes = append(votes, int32(r.Votes))
		helpful = append(helpful, int32(r.Helpful))
	}

	logger.Debug("[Store][AppendReviews] Bulk inserting reviews", "reviews", len(reviews))
	_, err := w.tx.Exec(ctx, `
INSERT INTO reviews (asin, customer, rating, review_date, votes, helpful)
SELECT * FROM unnest($1::text[], $2::text[], $3::int4[], $4::date[], $5::int4[], $6::int4[])`,
		owners, customers, ratings, dates, votes, helpful)
	if err != nil {
		return fmt.Errorf("insert reviews: %w", err)
	}
	return nil
}

func (w *txWriter) InsertRelated(ctx context.Context, pairs []store.RelatedPair) error {
	if len(pairs) == 0 {
		return nil
	}
	as := make([]string, 0, len(pairs))
	bs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		as = append(as, p.A)
		bs = append(bs, p.B)
	}

	logger.Debug("[Store][InsertRelated] Bulk inserting related pairs", "pairs", len(pairs))
	_, err := w.tx.Exec(ctx, `
INSERT INTO related_products (asin_a, asin_b)
SELECT * FROM unnest($1::text[], $2::text[])
ON CONFLICT DO NOTHING`, as, bs)
	if err != nil {
		return fmt.Errorf("insert related: %w", err)
	}
	return nil
}
