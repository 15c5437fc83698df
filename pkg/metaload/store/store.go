package store

import (
	"context"
	"time"
)

// Store is the persistence collaborator of the ingest pipeline.
// Writes happen inside a unit of work; reads are served directly.
type Store interface {
	Close() error

	// WithinUnit runs fn inside one atomic unit of work. A non-nil error
	// from fn rolls the unit back and is returned unchanged.
	WithinUnit(ctx context.Context, fn func(Writer) error) error

	// CategoryIDs returns the durable id for every key that exists.
	// Missing keys are absent from the map.
	CategoryIDs(ctx context.Context, keys []string) (map[string]int64, error)

	GetProduct(ctx context.Context, asin string) (Product, bool, error)
	Counts(ctx context.Context) (Counts, error)
}

// Writer is the write side of a unit of work. Every insert tolerates
// duplicate-key conflicts.
type Writer interface {
	InsertCategories(ctx context.Context, cats []Category) error
	InsertCategoryEdges(ctx context.Context, edges []CategoryEdge) error

	// UpsertProducts inserts new products and updates title, group,
	// rank and review aggregates of existing ones. SourceID and Downloads
	// are kept from the first insert.
	UpsertProducts(ctx context.Context, products []Product) error
	InsertMemberships(ctx context.Context, ms []Membership) error

	// AppendReviews deletes the stored reviews of every ASIN in reset,
	// then appends reviews. Reviews are never deduplicated.
	AppendReviews(ctx context.Context, reset []string, reviews []Review) error
	InsertRelated(ctx context.Context, pairs []RelatedPair) error
}

// Product is a persisted catalog item
type Product struct {
	SourceID    int64
	ASIN        string
	Title       string
	Group       string
	SalesRank   *int
	ReviewCount int
	AvgRating   *float64
	Downloads   int
}

// Category is a classification node keyed by its durable key
type Category struct {
	Key  string
	Name string
}

// CategoryEdge links two durable category ids
type CategoryEdge struct {
	ParentID int64
	ChildID  int64
}

// Membership places a product in a category
type Membership struct {
	ASIN       string
	CategoryID int64
}

// RelatedPair is an unordered product pair stored with A < B
type RelatedPair struct {
	A string
	B string
}

// Review is a customer review line of a product
type Review struct {
	ASIN     string
	Customer string
	Rating   int
	Date     time.Time // zero when the corpus date was unparsable
	Votes    int
	Helpful  int
}

// Counts reports row totals per table
type Counts struct {
	Products      int64
	Categories    int64
	CategoryEdges int64
	Memberships   int64
	Related       int64
	Reviews       int64
}

// NewRelatedPair returns the canonical form of the pair {a, b}.
func NewRelatedPair(a, b string) RelatedPair {
	if a > b {
		a, b = b, a
	}
	return RelatedPair{A: a, B: b}
}
