package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/store"
	"github.com/cognicore/metaload/pkg/metaload/store/memstore"
)

func TestParseMergePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MergePolicy
		wantErr bool
	}{
		{"", MergeByName, false},
		{"name", MergeByName, false},
		{" External-ID ", MergeByExternalID, false},
		{"asin", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMergePolicy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("ParseMergePolicy(%q): expected ErrInvalidConfig, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMergePolicy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestTaxonomyFirstOccurrenceWins(t *testing.T) {
	tax := NewTaxonomy(MergeByName)
	if !tax.Add(corpus.ChainNode{ExternalID: 1, Name: "Books"}) {
		t.Fatal("expected first node to be added")
	}
	if tax.Add(corpus.ChainNode{ExternalID: 1, Name: "Livres", ParentID: 9}) {
		t.Fatal("expected duplicate external id to be ignored")
	}
	if tax.Add(corpus.ChainNode{ExternalID: 2, Name: "   "}) {
		t.Fatal("expected blank name to be dropped")
	}
	nodes := tax.Nodes()
	if diff := cmp.Diff([]corpus.ChainNode{{ExternalID: 1, Name: "Books"}}, nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func collectTaxonomy(t *testing.T, policy MergePolicy, text string) *Taxonomy {
	t.Helper()
	tax := NewTaxonomy(policy)
	if err := tax.Collect(context.Background(), corpus.StringSource(text)); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return tax
}

func TestChainYieldsParentEdges(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	tax := collectTaxonomy(t, MergeByName, "Id: 1\nASIN: X\n |A[1]|B[2]|C[3]|\n")

	ids, err := tax.Persist(ctx, st, 10)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	stats, err := tax.Link(ctx, st, ids, 10)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if stats.Linked != 2 || stats.Unresolved != 0 || stats.SelfLinks != 0 {
		t.Fatalf("unexpected link stats: %+v", stats)
	}

	id := func(ext int64) int64 {
		v, ok := ids.Resolve(ext)
		if !ok {
			t.Fatalf("external id %d unresolved", ext)
		}
		return v
	}
	want := []store.CategoryEdge{
		{ParentID: id(1), ChildID: id(2)},
		{ParentID: id(2), ChildID: id(3)},
	}
	if diff := cmp.Diff(want, st.Snapshot().Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestSameNameCollapsesToOneDurableID(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	tax := collectTaxonomy(t, MergeByName, testCorpus)

	ids, err := tax.Persist(ctx, st, 2)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	a, okA := ids.Resolve(100)
	b, okB := ids.Resolve(500)
	if !okA || !okB {
		t.Fatalf("expected both Books ids to resolve, got %v %v", okA, okB)
	}
	if a != b {
		t.Fatalf("expected one durable id for Books, got %d and %d", a, b)
	}
	if ids.Len() != 6 {
		t.Errorf("expected 6 mapped external ids, got %d", ids.Len())
	}
	if got := len(st.Snapshot().Categories); got != 5 {
		t.Errorf("expected 5 durable categories, got %d", got)
	}
}

func TestExternalIDPolicyKeepsIDsApart(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	tax := collectTaxonomy(t, MergeByExternalID, testCorpus)

	ids, err := tax.Persist(ctx, st, 500)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	a, _ := ids.Resolve(100)
	b, _ := ids.Resolve(500)
	if a == b {
		t.Fatal("expected distinct durable ids under external-id policy")
	}
	if got := len(st.Snapshot().Categories); got != 6 {
		t.Errorf("expected 6 durable categories, got %d", got)
	}
	if name, _ := st.CategoryName(b); name != "Books" {
		t.Errorf("expected name kept alongside the id key, got %q", name)
	}
}

func TestLinkSkipsUnresolvedAndSelfEdges(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	tax := NewTaxonomy(MergeByName)
	tax.Add(corpus.ChainNode{ExternalID: 1, Name: "Books"})
	tax.Add(corpus.ChainNode{ExternalID: 2, Name: "Books", ParentID: 1})
	tax.Add(corpus.ChainNode{ExternalID: 3, Name: "Orphan", ParentID: 99})
	tax.Add(corpus.ChainNode{ExternalID: 4, Name: "Fiction", ParentID: 2})

	ids, err := tax.Persist(ctx, st, 10)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	stats, err := tax.Link(ctx, st, ids, 10)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	want := LinkStats{Linked: 1, Unresolved: 1, SelfLinks: 1}
	if stats != want {
		t.Fatalf("link stats: got %+v, want %+v", stats, want)
	}
}

func TestPersistUnreadableKeyIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	st := newRecordingStore(memstore.New())
	st.idsHook = func(ids map[string]int64) map[string]int64 {
		delete(ids, "Fiction")
		return ids
	}
	tax := collectTaxonomy(t, MergeByName, testCorpus)

	_, err := tax.Persist(ctx, st, 500)
	if !errors.Is(err, internalerr.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestPersistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	first, err := collectTaxonomy(t, MergeByName, testCorpus).Persist(ctx, st, 3)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	second, err := collectTaxonomy(t, MergeByName, testCorpus).Persist(ctx, st, 3)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	for _, ext := range []int64{100, 200, 300, 400, 500, 600} {
		a, _ := first.Resolve(ext)
		b, _ := second.Resolve(ext)
		if a != b {
			t.Errorf("external id %d moved from %d to %d", ext, a, b)
		}
	}
}
