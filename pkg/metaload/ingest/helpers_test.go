package ingest

import (
	"context"
	"errors"

	"github.com/cognicore/metaload/pkg/metaload/store"
)

// testCorpus has a rejected record (C3), a dangling similar key (Z9), a
// self reference (D4) and two external ids named Books (100, 500).
const testCorpus = `# header noise
Total items: 4

Id:   1
ASIN: A1
  title: Alpha
  group: Book
  salesrank: 10
  similar: 3  B2  C3  Z9
  categories: 1
   |Books[100]|Fiction[200]|Fantasy[300]
  reviews: total: 2  downloaded: 2  avg rating: 4.5
    2000-7-28  cutomer: U1  rating: 5  votes: 1  helpful: 1
    2001-1-2  cutomer: U2  rating: 4  votes: 0  helpful: 0

Id:   2
ASIN: B2
  title: Beta
  group: Music
  salesrank: n/a
  similar: 1  A1
  categories: 1
   |Music[400]|Books[500]|Jazz[600]
  reviews: total: 0  downloaded: 0  avg rating: 0

Id:   3
ASIN: C3
  discontinued product
  similar: 1  A1

Id:   4
ASIN: D4
  title: Delta
  group: Book
  similar: 2  A1  D4
   |Books[100]|Fiction[200]
`

var errInjected = errors.New("injected failure")

// recordingStore wraps a store, logs writer calls per unit and can fail
// chosen units.
type recordingStore struct {
	store.Store
	units   int
	calls   [][]string
	failOn  map[int]int // unit number -> remaining failures
	idsHook func(map[string]int64) map[string]int64
}

func newRecordingStore(inner store.Store) *recordingStore {
	return &recordingStore{Store: inner, failOn: make(map[int]int)}
}

func (r *recordingStore) WithinUnit(ctx context.Context, fn func(store.Writer) error) error {
	r.units++
	n := r.units
	var calls []string
	err := r.Store.WithinUnit(ctx, func(w store.Writer) error {
		if err := fn(&recordingWriter{Writer: w, calls: &calls}); err != nil {
			return err
		}
		if r.failOn[n] > 0 {
			r.failOn[n]--
			return errInjected
		}
		return nil
	})
	r.calls = append(r.calls, calls)
	return err
}

func (r *recordingStore) CategoryIDs(ctx context.Context, keys []string) (map[string]int64, error) {
	ids, err := r.Store.CategoryIDs(ctx, keys)
	if err != nil || r.idsHook == nil {
		return ids, err
	}
	return r.idsHook(ids), nil
}

type recordingWriter struct {
	store.Writer
	calls *[]string
}

func (w *recordingWriter) InsertCategories(ctx context.Context, cats []store.Category) error {
	*w.calls = append(*w.calls, "categories")
	return w.Writer.InsertCategories(ctx, cats)
}

func (w *recordingWriter) InsertCategoryEdges(ctx context.Context, edges []store.CategoryEdge) error {
	*w.calls = append(*w.calls, "edges")
	return w.Writer.InsertCategoryEdges(ctx, edges)
}

func (w *recordingWriter) UpsertProducts(ctx context.Context, products []store.Product) error {
	*w.calls = append(*w.calls, "products")
	return w.Writer.UpsertProducts(ctx, products)
}

func (w *recordingWriter) InsertMemberships(ctx context.Context, ms []store.Membership) error {
	*w.calls = append(*w.calls, "memberships")
	return w.Writer.InsertMemberships(ctx, ms)
}

func (w *recordingWriter) AppendReviews(ctx context.Context, reset []string, reviews []store.Review) error {
	*w.calls = append(*w.calls, "reviews")
	return w.Writer.AppendReviews(ctx, reset, reviews)
}

func (w *recordingWriter) InsertRelated(ctx context.Context, pairs []store.RelatedPair) error {
	*w.calls = append(*w.calls, "related")
	return w.Writer.InsertRelated(ctx, pairs)
}
