package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/metrics"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

// AcceptedSet holds the ASINs the loader accepted.
type AcceptedSet map[string]struct{}

// Has reports whether asin was accepted.
func (a AcceptedSet) Has(asin string) bool {
	_, ok := a[asin]
	return ok
}

// CrossRefs is the candidate set of related pairs. Pairs are kept in
// canonical order, so {a, b} and {b, a} are one candidate.
type CrossRefs struct {
	pairs map[store.RelatedPair]struct{}
}

// NewCrossRefs creates an empty candidate set
func NewCrossRefs() *CrossRefs {
	return &CrossRefs{pairs: make(map[store.RelatedPair]struct{})}
}

// Add records the pair {a, b}. Self pairs and empty keys are ignored.
func (c *CrossRefs) Add(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}
	c.pairs[store.NewRelatedPair(a, b)] = struct{}{}
}

// Len returns the number of distinct candidates.
func (c *CrossRefs) Len() int { return len(c.pairs) }

// Filter returns the candidates whose ends are both accepted, sorted.
func (c *CrossRefs) Filter(accepted AcceptedSet) []store.RelatedPair {
	out := make([]store.RelatedPair, 0, len(c.pairs))
	for p := range c.pairs {
		if accepted.Has(p.A) && accepted.Has(p.B) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// FilterStats counts the outcome of Persist.
type FilterStats struct {
	Candidates int
	Kept       int
	Dropped    int
}

// Persist filters the candidates against accepted and writes the survivors
// batchSize pairs per unit, conflicts ignored.
func (c *CrossRefs) Persist(ctx context.Context, st store.Store, accepted AcceptedSet, batchSize int) (FilterStats, error) {
	kept := c.Filter(accepted)
	stats := FilterStats{
		Candidates: c.Len(),
		Kept:       len(kept),
		Dropped:    c.Len() - len(kept),
	}
	if stats.Dropped > 0 {
		logger.Warn("[CrossRefs][Persist] Dropping related pairs with an unaccepted end", "dropped", stats.Dropped)
	}

	err := store.ChunkRange(len(kept), batchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return st.WithinUnit(ctx, func(w store.Writer) error {
			return w.InsertRelated(ctx, kept[start:end])
		})
	})
	if err != nil {
		return stats, fmt.Errorf("insert related pairs: %w", err)
	}
	metrics.CounterRelatedPairs.WithLabelValues("kept").Add(float64(stats.Kept))
	metrics.CounterRelatedPairs.WithLabelValues("dropped").Add(float64(stats.Dropped))

	logger.Info("[CrossRefs][Persist] Related pairs written", "kept", stats.Kept, "dropped", stats.Dropped)
	return stats, nil
}
