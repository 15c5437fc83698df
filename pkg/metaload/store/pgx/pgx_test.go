package pgx

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/metaload/pkg/metaload/store"
)

func intPtr(v int) *int { return &v }

func TestProductColumnsLastRowWins(t *testing.T) {
	c := newProductColumns([]store.Product{
		{ASIN: "A1", Title: "first", SalesRank: intPtr(3)},
		{ASIN: "B2", Title: "other"},
		{ASIN: "A1", Title: "second"},
	})

	if diff := cmp.Diff([]string{"B2", "A1"}, c.asins); diff != "" {
		t.Fatalf("asins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"other", "second"}, c.titles); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}
	if c.ranks[1].Valid {
		t.Errorf("expected the surviving A1 row to be unranked, got %+v", c.ranks[1])
	}
	if c.ratings[0].Valid {
		t.Errorf("expected nil rating to encode as NULL")
	}
}

func TestSchemaOrdersPairsByBytes(t *testing.T) {
	// must agree with store.NewRelatedPair whatever the database collation
	if !strings.Contains(schema, `CHECK (asin_a COLLATE "C" < asin_b COLLATE "C")`) {
		t.Fatal("related_products check does not compare in byte order")
	}
	p := store.NewRelatedPair("a1", "B2")
	if p.A != "B2" || p.B != "a1" {
		t.Fatalf("unexpected canonical pair %+v", p)
	}
}

// TestPostgresRoundTrip needs a disposable database in METALOAD_TEST_DATABASE_URL.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("METALOAD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("METALOAD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	st, err := Open(ctx, dsn, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, err := st.conn.Exec(ctx, `TRUNCATE reviews, related_products, product_categories, category_edges, categories, products RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	day := time.Date(2000, 7, 28, 0, 0, 0, 0, time.UTC)
	write := func() error {
		return st.WithinUnit(ctx, func(w store.Writer) error {
			if err := w.InsertCategories(ctx, []store.Category{{Key: "Books", Name: "Books"}, {Key: "Subjects", Name: "Subjects"}}); err != nil {
				return err
			}
			if err := w.UpsertProducts(ctx, []store.Product{{SourceID: 1, ASIN: "A1", Title: "T", Downloads: 3}, {SourceID: 2, ASIN: "B2", Title: "U"}, {SourceID: 3, ASIN: "a1", Title: "V"}}); err != nil {
				return err
			}
			// byte order puts "B2" first; most locale collations put "a1" first
			if err := w.InsertRelated(ctx, []store.RelatedPair{store.NewRelatedPair("B2", "A1"), store.NewRelatedPair("a1", "B2")}); err != nil {
				return err
			}
			return w.AppendReviews(ctx, []string{"A1"}, []store.Review{{ASIN: "A1", Customer: "c", Rating: 5, Date: day}, {ASIN: "A1", Customer: "d", Rating: 1}})
		})
	}
	for i := 0; i < 2; i++ {
		if err := write(); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	ids, err := st.CategoryIDs(ctx, []string{"Books", "Subjects"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("CategoryIDs: %v %v", ids, err)
	}
	err = st.WithinUnit(ctx, func(w store.Writer) error {
		if err := w.InsertCategoryEdges(ctx, []store.CategoryEdge{{ParentID: ids["Books"], ChildID: ids["Subjects"]}}); err != nil {
			return err
		}
		return w.InsertMemberships(ctx, []store.Membership{{ASIN: "A1", CategoryID: ids["Subjects"]}})
	})
	if err != nil {
		t.Fatalf("edges: %v", err)
	}

	counts, err := st.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := store.Counts{Products: 3, Categories: 2, CategoryEdges: 1, Memberships: 1, Related: 2, Reviews: 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	p, ok, err := st.GetProduct(ctx, "A1")
	if err != nil || !ok {
		t.Fatalf("GetProduct: ok=%v err=%v", ok, err)
	}
	if p.Downloads != 3 || p.SalesRank != nil || p.AvgRating != nil {
		t.Errorf("unexpected product: %+v", p)
	}
}
