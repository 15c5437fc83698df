package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cognicore/metaload/internal/util"
	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/metrics"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

const DefaultBatchSize = 2000

// LoaderOptions tunes the load pass.
type LoaderOptions struct {
	BatchSize        int // accepted records per unit, DefaultBatchSize when 0
	DefaultDownloads int // used when a record has no review summary
	Attempts         int // tries per unit, 1 when 0
}

// LoadResult is what the load pass hands to the cross-reference stage.
type LoadResult struct {
	Records      int
	Accepted     int
	MissingASIN  int
	MissingTitle int

	Products              int
	Memberships           int
	UnresolvedMemberships int
	Reviews               int
	Flushes               int

	AcceptedKeys AcceptedSet
	Candidates   *CrossRefs
}

// Rejected returns the number of records dropped for a missing field.
func (r LoadResult) Rejected() int { return r.MissingASIN + r.MissingTitle }

// Loader streams the corpus a second time and writes products, their
// category memberships and their reviews in batches.
type Loader struct {
	st   store.Store
	ids  IDMap
	opts LoaderOptions
}

// NewLoader creates a loader resolving memberships through ids
func NewLoader(st store.Store, ids IDMap, opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &Loader{st: st, ids: ids, opts: opts}
}

// batch buffers one unit of work. A product seen twice keeps the mutable
// fields of its last row and the immutable ones of its first. Reviews
// accumulate across records.
type batch struct {
	records     int
	products    []store.Product
	index       map[string]int
	memberships []store.Membership
	seenMember  map[store.Membership]struct{}
	reviews     []store.Review
	reset       []string
}

func newBatch() *batch {
	return &batch{
		index:      make(map[string]int),
		seenMember: make(map[store.Membership]struct{}),
	}
}

func (b *batch) addProduct(p store.Product) {
	if i, ok := b.index[p.ASIN]; ok {
		p.SourceID = b.products[i].SourceID
		p.Downloads = b.products[i].Downloads
		b.products[i] = p
		return
	}
	b.index[p.ASIN] = len(b.products)
	b.products = append(b.products, p)
}

func (b *batch) addMembership(m store.Membership) {
	if _, ok := b.seenMember[m]; ok {
		return
	}
	b.seenMember[m] = struct{}{}
	b.memberships = append(b.memberships, m)
}

// Load runs the load pass over src. Committed units stay committed when a
// later unit fails or ctx is canceled.
func (l *Loader) Load(ctx context.Context, src corpus.Source) (LoadResult, error) {
	res := LoadResult{
		AcceptedKeys: make(AcceptedSet),
		Candidates:   NewCrossRefs(),
	}
	b := newBatch()

	for rec, err := range corpus.Records(ctx, src) {
		if err != nil {
			return res, fmt.Errorf("read corpus: %w", err)
		}
		res.Records++
		metrics.CounterRecordsParsed.Inc()

		if err := rec.Validate(); err != nil {
			l.reject(&res, rec, err)
			continue
		}
		l.accept(&res, b, rec)

		if b.records >= l.opts.BatchSize {
			if err := l.flush(ctx, &res, b); err != nil {
				return res, err
			}
			b = newBatch()
		}
	}

	if err := l.flush(ctx, &res, b); err != nil {
		return res, err
	}

	logger.Info("[Loader][Load] Load pass finished",
		"records", res.Records,
		"accepted", res.Accepted,
		"rejected", res.Rejected(),
		"flushes", res.Flushes,
		"candidates", res.Candidates.Len(),
	)
	return res, nil
}

func (l *Loader) reject(res *LoadResult, rec *corpus.Record, err error) {
	reason := "missing_title"
	if errors.Is(err, corpus.ErrMissingASIN) {
		reason = "missing_asin"
		res.MissingASIN++
	} else {
		res.MissingTitle++
	}
	metrics.CounterRecordsRejected.WithLabelValues(reason).Inc()
	logger.Debug("[Loader][Load] Dropping record", "source_id", rec.SourceID, "asin", rec.ASIN, "reason", err)
}

func (l *Loader) accept(res *LoadResult, b *batch, rec *corpus.Record) {
	res.Accepted++
	b.records++

	asin := rec.ASIN
	// reviews stored by an earlier run are cleared once, on the first
	// record of asin; later records of the same asin append
	if !res.AcceptedKeys.Has(asin) {
		b.reset = append(b.reset, asin)
	}
	b.addProduct(l.product(rec))

	for _, n := range rec.Categories {
		id, ok := l.ids.Resolve(n.ExternalID)
		if !ok {
			logger.Warn("[Loader][Load] Skipping unresolved category", "asin", asin, "external_id", n.ExternalID)
			metrics.CounterMembershipsSkipped.Inc()
			res.UnresolvedMemberships++
			continue
		}
		b.addMembership(store.Membership{ASIN: asin, CategoryID: id})
	}

	for _, other := range rec.Similar {
		if other != asin {
			res.Candidates.Add(asin, other)
		}
	}

	for _, r := range rec.Reviews {
		b.reviews = append(b.reviews, store.Review{
			ASIN:     asin,
			Customer: r.Customer,
			Rating:   r.Rating,
			Date:     r.Date,
			Votes:    r.Votes,
			Helpful:  r.Helpful,
		})
	}

	res.AcceptedKeys[asin] = struct{}{}
}

func (l *Loader) product(rec *corpus.Record) store.Product {
	p := store.Product{
		SourceID:    rec.SourceID,
		ASIN:        rec.ASIN,
		Title:       rec.Title,
		Group:       rec.Group,
		SalesRank:   rec.SalesRank,
		ReviewCount: len(rec.Reviews),
		AvgRating:   averageRating(rec.Reviews),
		Downloads:   l.opts.DefaultDownloads,
	}
	if rec.Summary != nil {
		p.Downloads = rec.Summary.Downloaded
	}
	return p
}

// averageRating is the mean rating rounded to 2 decimals, nil without reviews.
func averageRating(reviews []corpus.Review) *float64 {
	if len(reviews) == 0 {
		return nil
	}
	var sum int
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := math.Round(float64(sum)/float64(len(reviews))*100) / 100
	return &avg
}

// flush writes b as one unit: products, then memberships, then reviews.
func (l *Loader) flush(ctx context.Context, res *LoadResult, b *batch) error {
	if len(b.products) == 0 {
		return nil
	}
	reviews := b.reviews

	err := util.RetryErrWithContext(ctx, l.opts.Attempts, func(ctx context.Context) error {
		return l.st.WithinUnit(ctx, func(w store.Writer) error {
			if err := w.UpsertProducts(ctx, b.products); err != nil {
				return err
			}
			if err := w.InsertMemberships(ctx, b.memberships); err != nil {
				return err
			}
			return w.AppendReviews(ctx, b.reset, reviews)
		})
	})
	if err != nil {
		return fmt.Errorf("flush batch %d: %w", res.Flushes+1, err)
	}

	res.Flushes++
	res.Products += len(b.products)
	res.Memberships += len(b.memberships)
	res.Reviews += len(reviews)
	metrics.CounterFlushes.Inc()
	metrics.CounterProductsFlushed.Add(float64(len(b.products)))
	metrics.CounterMembershipsWritten.Add(float64(len(b.memberships)))
	metrics.CounterReviewsWritten.Add(float64(len(reviews)))

	logger.Info("[Loader][Flush] Products processed", "total", res.Products, "batch", len(b.products))
	return nil
}
