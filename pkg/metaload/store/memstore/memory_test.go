package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

func intPtr(v int) *int { return &v }

func TestUpsertKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithinUnit(ctx, func(w store.Writer) error {
		return w.UpsertProducts(ctx, []store.Product{{SourceID: 1, ASIN: "A1", Title: "Old", Downloads: 4, SalesRank: intPtr(10)}})
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	err = s.WithinUnit(ctx, func(w store.Writer) error {
		return w.UpsertProducts(ctx, []store.Product{{SourceID: 99, ASIN: "A1", Title: "New", Group: "Book", Downloads: 7}})
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	p, ok, err := s.GetProduct(ctx, "A1")
	if err != nil || !ok {
		t.Fatalf("GetProduct: ok=%v err=%v", ok, err)
	}
	if p.Title != "New" || p.Group != "Book" {
		t.Errorf("mutable fields not updated: %+v", p)
	}
	if p.SalesRank != nil {
		t.Errorf("expected rank cleared, got %d", *p.SalesRank)
	}
	if p.SourceID != 1 || p.Downloads != 4 {
		t.Errorf("immutable fields changed: source=%d downloads=%d", p.SourceID, p.Downloads)
	}
}

func TestWithinUnitRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinUnit(ctx, func(w store.Writer) error {
		if err := w.UpsertProducts(ctx, []store.Product{{ASIN: "A1", Title: "T"}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := s.GetProduct(ctx, "A1"); ok {
		t.Fatal("product visible after rollback")
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	s := New()

	cases := map[string]func(w store.Writer) error{
		"membership": func(w store.Writer) error {
			return w.InsertMemberships(ctx, []store.Membership{{ASIN: "missing", CategoryID: 1}})
		},
		"related": func(w store.Writer) error {
			return w.InsertRelated(ctx, []store.RelatedPair{{A: "A", B: "B"}})
		},
		"edge": func(w store.Writer) error {
			return w.InsertCategoryEdges(ctx, []store.CategoryEdge{{ParentID: 1, ChildID: 2}})
		},
		"review": func(w store.Writer) error {
			return w.AppendReviews(ctx, nil, []store.Review{{ASIN: "missing", Rating: 5}})
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.WithinUnit(ctx, fn)
			if !errors.Is(err, internalerr.ErrConstraint) {
				t.Fatalf("expected ErrConstraint, got %v", err)
			}
		})
	}
}

func TestCategoriesConflictIgnored(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 2; i++ {
		err := s.WithinUnit(ctx, func(w store.Writer) error {
			return w.InsertCategories(ctx, []store.Category{{Key: "Books", Name: "Books"}, {Key: "Music", Name: "Music"}})
		})
		if err != nil {
			t.Fatalf("InsertCategories: %v", err)
		}
	}

	ids, err := s.CategoryIDs(ctx, []string{"Books", "Music", "Video"})
	if err != nil {
		t.Fatalf("CategoryIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	if ids["Books"] == ids["Music"] {
		t.Fatal("distinct keys share an id")
	}
	counts, _ := s.Counts(ctx)
	if counts.Categories != 2 {
		t.Fatalf("expected 2 categories, got %d", counts.Categories)
	}
}

func TestAppendReviews(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2001, 3, 4, 0, 0, 0, 0, time.UTC)

	write := func(reset []string, reviews []store.Review) {
		t.Helper()
		err := s.WithinUnit(ctx, func(w store.Writer) error {
			if err := w.UpsertProducts(ctx, []store.Product{{ASIN: "A1", Title: "T"}, {ASIN: "A2", Title: "U"}, {ASIN: "A3", Title: "V"}}); err != nil {
				return err
			}
			return w.AppendReviews(ctx, reset, reviews)
		})
		if err != nil {
			t.Fatalf("AppendReviews: %v", err)
		}
	}

	write([]string{"A1", "A2", "A3"}, []store.Review{
		{ASIN: "A1", Customer: "c1", Rating: 5, Date: day},
		{ASIN: "A2", Customer: "c2", Rating: 1},
		{ASIN: "A3", Customer: "c3", Rating: 2},
	})
	// A1 reset and rewritten, A3 reset to nothing, A2 appended with a duplicate
	write([]string{"A1", "A3"}, []store.Review{
		{ASIN: "A1", Customer: "c1", Rating: 5, Date: day},
		{ASIN: "A2", Customer: "c2", Rating: 1},
	})

	snap := s.Snapshot()
	want := []store.Review{
		{ASIN: "A1", Customer: "c1", Rating: 5, Date: day},
		{ASIN: "A2", Customer: "c2", Rating: 1},
		{ASIN: "A2", Customer: "c2", Rating: 1},
	}
	if diff := cmp.Diff(want, snap.Reviews); diff != "" {
		t.Fatalf("reviews mismatch (-want +got):\n%s", diff)
	}
}

func TestWithinUnitUndoesEveryChange(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithinUnit(ctx, func(w store.Writer) error {
		if err := w.InsertCategories(ctx, []store.Category{{Key: "Books", Name: "Books"}}); err != nil {
			return err
		}
		if err := w.UpsertProducts(ctx, []store.Product{{SourceID: 1, ASIN: "A1", Title: "Kept", Downloads: 2}}); err != nil {
			return err
		}
		if err := w.InsertMemberships(ctx, []store.Membership{{ASIN: "A1", CategoryID: 1}}); err != nil {
			return err
		}
		return w.AppendReviews(ctx, []string{"A1"}, []store.Review{{ASIN: "A1", Customer: "c1", Rating: 4}})
	})
	if err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	before := s.Snapshot()

	boom := errors.New("boom")
	err = s.WithinUnit(ctx, func(w store.Writer) error {
		if err := w.InsertCategories(ctx, []store.Category{{Key: "Music", Name: "Music"}}); err != nil {
			return err
		}
		if err := w.InsertCategoryEdges(ctx, []store.CategoryEdge{{ParentID: 1, ChildID: 2}}); err != nil {
			return err
		}
		if err := w.UpsertProducts(ctx, []store.Product{{ASIN: "A1", Title: "Changed"}, {ASIN: "B2", Title: "New"}}); err != nil {
			return err
		}
		if err := w.InsertMemberships(ctx, []store.Membership{{ASIN: "B2", CategoryID: 2}}); err != nil {
			return err
		}
		if err := w.InsertRelated(ctx, []store.RelatedPair{store.NewRelatedPair("B2", "A1")}); err != nil {
			return err
		}
		if err := w.AppendReviews(ctx, []string{"A1"}, []store.Review{{ASIN: "A1", Customer: "c2", Rating: 1}, {ASIN: "B2", Customer: "c3", Rating: 2}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Fatalf("state changed by a failed unit (-want +got):\n%s", diff)
	}

	// the id sequence is restored too
	err = s.WithinUnit(ctx, func(w store.Writer) error {
		return w.InsertCategories(ctx, []store.Category{{Key: "Video", Name: "Video"}})
	})
	if err != nil {
		t.Fatalf("InsertCategories: %v", err)
	}
	ids, _ := s.CategoryIDs(ctx, []string{"Video"})
	if ids["Video"] != 2 {
		t.Errorf("expected the next id to be 2 after rollback, got %d", ids["Video"])
	}
}
