package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

// Store is an in-memory implementation of store.Store for tests and dry runs.
// It enforces the same keys and references as the SQL backends.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	nextCategoryID int64
	categoryIDs    map[string]int64
	categories     map[int64]store.Category
	edges          map[store.CategoryEdge]struct{}
	products       map[string]store.Product
	memberships    map[store.Membership]struct{}
	related        map[store.RelatedPair]struct{}
	reviews        map[string][]store.Review
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		nextCategoryID: 1,
		categoryIDs:    make(map[string]int64),
		categories:     make(map[int64]store.Category),
		edges:          make(map[store.CategoryEdge]struct{}),
		products:       make(map[string]store.Product),
		memberships:    make(map[store.Membership]struct{}),
		related:        make(map[store.RelatedPair]struct{}),
		reviews:        make(map[string][]store.Review),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// WithinUnit runs fn directly against the data. Every change is journaled
// so a failing unit can be undone in reverse order.
func (s *Store) WithinUnit(ctx context.Context, fn func(store.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &writer{st: s.state, nextCategoryID: s.state.nextCategoryID}
	if err := fn(w); err != nil {
		w.rollback()
		return err
	}
	return nil
}

// CategoryIDs implements store.Store.
func (s *Store) CategoryIDs(ctx context.Context, keys []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if id, ok := s.state.categoryIDs[k]; ok {
			out[k] = id
		}
	}
	return out, nil
}

// GetProduct implements store.Store.
func (s *Store) GetProduct(ctx context.Context, asin string) (store.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.products[asin]
	if !ok {
		return store.Product{}, false, nil
	}
	return copyProduct(p), true, nil
}

// Counts implements store.Store.
func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	var reviews int64
	for _, rs := range st.reviews {
		reviews += int64(len(rs))
	}
	return store.Counts{
		Products:      int64(len(st.products)),
		Categories:    int64(len(st.categories)),
		CategoryEdges: int64(len(st.edges)),
		Memberships:   int64(len(st.memberships)),
		Related:       int64(len(st.related)),
		Reviews:       reviews,
	}, nil
}

type writer struct {
	st             *state
	nextCategoryID int64
	undo           []func()
	touched        map[string]struct{}
}

func (w *writer) journal(fn func()) {
	w.undo = append(w.undo, fn)
}

func (w *writer) rollback() {
	for i := len(w.undo) - 1; i >= 0; i-- {
		w.undo[i]()
	}
	w.undo = nil
	w.st.nextCategoryID = w.nextCategoryID
}

func (w *writer) InsertCategories(ctx context.Context, cats []store.Category) error {
	for _, c := range cats {
		if c.Key == "" {
			return fmt.Errorf("category with empty key: %w", internalerr.ErrInvalidInput)
		}
		if _, ok := w.st.categoryIDs[c.Key]; ok {
			continue
		}
		id := w.st.nextCategoryID
		w.st.nextCategoryID++
		w.st.categoryIDs[c.Key] = id
		w.st.categories[id] = c
		key := c.Key
		w.journal(func() {
			delete(w.st.categoryIDs, key)
			delete(w.st.categories, id)
		})
	}
	return nil
}

func (w *writer) InsertCategoryEdges(ctx context.Context, edges []store.CategoryEdge) error {
	for _, e := range edges {
		if e.ParentID == e.ChildID {
			return fmt.Errorf("category edge %d->%d: self edge: %w", e.ParentID, e.ChildID, internalerr.ErrConstraint)
		}
		if _, ok := w.st.categories[e.ParentID]; !ok {
			return fmt.Errorf("category edge parent %d: %w", e.ParentID, internalerr.ErrConstraint)
		}
		if _, ok := w.st.categories[e.ChildID]; !ok {
			return fmt.Errorf("category edge child %d: %w", e.ChildID, internalerr.ErrConstraint)
		}
		if _, ok := w.st.edges[e]; ok {
			continue
		}
		w.st.edges[e] = struct{}{}
		w.journal(func() { delete(w.st.edges, e) })
	}
	return nil
}

func (w *writer) UpsertProducts(ctx context.Context, products []store.Product) error {
	for _, p := range products {
		if p.ASIN == "" {
			return fmt.Errorf("product with empty asin: %w", internalerr.ErrInvalidInput)
		}
		existing, ok := w.st.products[p.ASIN]
		if ok {
			p.SourceID = existing.SourceID
			p.Downloads = existing.Downloads
		}
		asin := p.ASIN
		w.journal(func() {
			if ok {
				w.st.products[asin] = existing
			} else {
				delete(w.st.products, asin)
			}
		})
		w.st.products[p.ASIN] = copyProduct(p)
	}
	return nil
}

func (w *writer) InsertMemberships(ctx context.Context, ms []store.Membership) error {
	for _, m := range ms {
		if _, ok := w.st.products[m.ASIN]; !ok {
			return fmt.Errorf("membership product %q: %w", m.ASIN, internalerr.ErrConstraint)
		}
		if _, ok := w.st.categories[m.CategoryID]; !ok {
			return fmt.Errorf("membership category %d: %w", m.CategoryID, internalerr.ErrConstraint)
		}
		if _, ok := w.st.memberships[m]; ok {
			continue
		}
		w.st.memberships[m] = struct{}{}
		w.journal(func() { delete(w.st.memberships, m) })
	}
	return nil
}

// saveReviews journals the review list of asin once per unit. Lists only
// grow or get dropped, so the saved slice header is enough to restore them.
func (w *writer) saveReviews(asin string) {
	if w.touched == nil {
		w.touched = make(map[string]struct{})
	}
	if _, ok := w.touched[asin]; ok {
		return
	}
	w.touched[asin] = struct{}{}
	prev, ok := w.st.reviews[asin]
	w.journal(func() {
		if ok {
			w.st.reviews[asin] = prev
		} else {
			delete(w.st.reviews, asin)
		}
	})
}

func (w *writer) AppendReviews(ctx context.Context, reset []string, reviews []store.Review) error {
	for _, asin := range reset {
		w.saveReviews(asin)
		delete(w.st.reviews, asin)
	}
	for _, r := range reviews {
		if _, ok := w.st.products[r.ASIN]; !ok {
			return fmt.Errorf("review product %q: %w", r.ASIN, internalerr.ErrConstraint)
		}
		w.saveReviews(r.ASIN)
		// full slice expression so a restored header never sees later writes
		rs := w.st.reviews[r.ASIN]
		w.st.reviews[r.ASIN] = append(rs[:len(rs):len(rs)], r)
	}
	return nil
}

func (w *writer) InsertRelated(ctx context.Context, pairs []store.RelatedPair) error {
	for _, p := range pairs {
		if p.A >= p.B {
			return fmt.Errorf("related pair %q/%q not canonical: %w", p.A, p.B, internalerr.ErrConstraint)
		}
		if _, ok := w.st.products[p.A]; !ok {
			return fmt.Errorf("related product %q: %w", p.A, internalerr.ErrConstraint)
		}
		if _, ok := w.st.products[p.B]; !ok {
			return fmt.Errorf("related product %q: %w", p.B, internalerr.ErrConstraint)
		}
		if _, ok := w.st.related[p]; ok {
			continue
		}
		w.st.related[p] = struct{}{}
		w.journal(func() { delete(w.st.related, p) })
	}
	return nil
}

// CategoryRow is a category together with its durable id.
type CategoryRow struct {
	ID   int64
	Key  string
	Name string
}

// Snapshot is a sorted copy of everything in the store.
type Snapshot struct {
	Products    []store.Product
	Categories  []CategoryRow
	Edges       []store.CategoryEdge
	Memberships []store.Membership
	Related     []store.RelatedPair
	Reviews     []store.Review
}

// Snapshot returns the current contents in a deterministic order.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	var snap Snapshot
	for _, p := range st.products {
		snap.Products = append(snap.Products, copyProduct(p))
	}
	sort.Slice(snap.Products, func(i, j int) bool { return snap.Products[i].ASIN < snap.Products[j].ASIN })

	for id, c := range st.categories {
		snap.Categories = append(snap.Categories, CategoryRow{ID: id, Key: c.Key, Name: c.Name})
	}
	sort.Slice(snap.Categories, func(i, j int) bool { return snap.Categories[i].ID < snap.Categories[j].ID })

	for e := range st.edges {
		snap.Edges = append(snap.Edges, e)
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].ParentID != snap.Edges[j].ParentID {
			return snap.Edges[i].ParentID < snap.Edges[j].ParentID
		}
		return snap.Edges[i].ChildID < snap.Edges[j].ChildID
	})

	for m := range st.memberships {
		snap.Memberships = append(snap.Memberships, m)
	}
	sort.Slice(snap.Memberships, func(i, j int) bool {
		if snap.Memberships[i].ASIN != snap.Memberships[j].ASIN {
			return snap.Memberships[i].ASIN < snap.Memberships[j].ASIN
		}
		return snap.Memberships[i].CategoryID < snap.Memberships[j].CategoryID
	})

	for p := range st.related {
		snap.Related = append(snap.Related, p)
	}
	sort.Slice(snap.Related, func(i, j int) bool {
		if snap.Related[i].A != snap.Related[j].A {
			return snap.Related[i].A < snap.Related[j].A
		}
		return snap.Related[i].B < snap.Related[j].B
	})

	asins := make([]string, 0, len(st.reviews))
	for asin := range st.reviews {
		asins = append(asins, asin)
	}
	sort.Strings(asins)
	for _, asin := range asins {
		snap.Reviews = append(snap.Reviews, st.reviews[asin]...)
	}
	return snap
}

// CategoryName returns the name stored under a durable id.
func (s *Store) CategoryName(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.categories[id]
	return c.Name, ok
}

func copyProduct(p store.Product) store.Product {
	if p.SalesRank != nil {
		v := *p.SalesRank
		p.SalesRank = &v
	}
	if p.AvgRating != nil {
		v := *p.AvgRating
		p.AvgRating = &v
	}
	return p
}
