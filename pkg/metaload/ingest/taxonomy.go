package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/metrics"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

// MergePolicy decides which chain nodes share a durable category.
type MergePolicy string

const (
	// MergeByName collapses external ids that carry the same trimmed name.
	MergeByName MergePolicy = "name"
	// MergeByExternalID keeps one category per external id.
	MergeByExternalID MergePolicy = "external-id"
)

// ParseMergePolicy accepts "name", "external-id" or "" (name).
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MergeByName:
		return MergeByName, nil
	case MergeByExternalID:
		return MergeByExternalID, nil
	}
	return "", fmt.Errorf("merge policy %q: %w", s, internalerr.ErrInvalidConfig)
}

// Taxonomy collects classification nodes across the corpus and turns their
// unstable external ids into durable category ids.
type Taxonomy struct {
	policy MergePolicy
	nodes  map[int64]corpus.ChainNode
	order  []int64
}

// NewTaxonomy creates an empty taxonomy using policy for durable keys
func NewTaxonomy(policy MergePolicy) *Taxonomy {
	if policy == "" {
		policy = MergeByName
	}
	return &Taxonomy{
		policy: policy,
		nodes:  make(map[int64]corpus.ChainNode),
	}
}

// Add records n unless its external id was already seen. Nodes with a
// blank name are dropped. It reports whether n was kept.
func (t *Taxonomy) Add(n corpus.ChainNode) bool {
	if _, ok := t.nodes[n.ExternalID]; ok {
		return false
	}
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		logger.Debug("[Taxonomy][Add] Dropping chain node without a name", "external_id", n.ExternalID)
		return false
	}
	t.nodes[n.ExternalID] = n
	t.order = append(t.order, n.ExternalID)
	return true
}

// Len returns the number of distinct external ids.
func (t *Taxonomy) Len() int { return len(t.order) }

// Nodes returns the collected nodes in first-seen order.
func (t *Taxonomy) Nodes() []corpus.ChainNode {
	out := make([]corpus.ChainNode, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.nodes[id])
	}
	return out
}

// Collect runs the light chain scan over src and adds every node.
func (t *Taxonomy) Collect(ctx context.Context, src corpus.Source) error {
	before := t.Len()
	if err := corpus.ScanChains(ctx, src, func(n corpus.ChainNode) { t.Add(n) }); err != nil {
		return fmt.Errorf("collect categories: %w", err)
	}
	logger.Info("[Taxonomy][Collect] Categories collected", "source", src.Name(), "new", t.Len()-before, "total", t.Len())
	return nil
}

// Key returns the durable key of n under the taxonomy's policy.
func (t *Taxonomy) Key(n corpus.ChainNode) string {
	if t.policy == MergeByExternalID {
		return strconv.FormatInt(n.ExternalID, 10)
	}
	return strings.TrimSpace(n.Name)
}

// Categories returns one row per distinct durable key, first-seen order.
func (t *Taxonomy) Categories() []store.Category {
	seen := make(map[string]struct{}, len(t.order))
	out := make([]store.Category, 0, len(t.order))
	for _, id := range t.order {
		n := t.nodes[id]
		k := t.Key(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, store.Category{Key: k, Name: n.Name})
	}
	return out
}

// IDMap resolves external chain ids to durable category ids.
type IDMap struct {
	ids map[int64]int64
}

// Resolve returns the durable id for an external id.
func (m IDMap) Resolve(externalID int64) (int64, bool) {
	id, ok := m.ids[externalID]
	return id, ok
}

// Len returns the number of mapped external ids.
func (m IDMap) Len() int { return len(m.ids) }

// Persist inserts every distinct durable key, batchSize keys per unit with
// conflicts ignored, reads the durable ids back, and maps every external id
// through its key. A key that cannot be read back is an ErrIntegrity.
func (t *Taxonomy) Persist(ctx context.Context, st store.Store, batchSize int) (IDMap, error) {
	cats := t.Categories()

	logger.Debug("[Taxonomy][Persist] Inserting categories", "categories", len(cats), "batch", batchSize)
	err := store.ChunkRange(len(cats), batchSize, func(start, end int) error {
		return st.WithinUnit(ctx, func(w store.Writer) error {
			return w.InsertCategories(ctx, cats[start:end])
		})
	})
	if err != nil {
		return IDMap{}, fmt.Errorf("insert categories: %w", err)
	}
	metrics.CounterCategoriesPersisted.Add(float64(len(cats)))

	keys := make([]string, 0, len(cats))
	for _, c := range cats {
		keys = append(keys, c.Key)
	}
	fetched, err := st.CategoryIDs(ctx, keys)
	if err != nil {
		return IDMap{}, fmt.Errorf("fetch category ids: %w", err)
	}

	m := IDMap{ids: make(map[int64]int64, len(t.order))}
	for _, ext := range t.order {
		n := t.nodes[ext]
		key := t.Key(n)
		id, ok := fetched[key]
		if !ok {
			id, ok = fetched[strings.TrimSpace(key)]
		}
		if !ok {
			return IDMap{}, fmt.Errorf("category %d (%q) not readable after insert: %w", ext, key, internalerr.ErrIntegrity)
		}
		m.ids[ext] = id
	}

	logger.Info("[Taxonomy][Persist] Categories persisted", "external_ids", m.Len(), "durable", len(cats))
	return m, nil
}

// LinkStats counts the outcome of Link.
type LinkStats struct {
	Linked     int
	Unresolved int
	SelfLinks  int
}

// Link writes a parent/child edge for every node with a parent. Edges with
// an unresolved end or whose ends share a durable id are logged and skipped.
func (t *Taxonomy) Link(ctx context.Context, st store.Store, ids IDMap, batchSize int) (LinkStats, error) {
	var stats LinkStats
	seen := make(map[store.CategoryEdge]struct{})
	var edges []store.CategoryEdge

	for _, ext := range t.order {
		n := t.nodes[ext]
		if n.ParentID == 0 {
			continue
		}
		child, okChild := ids.Resolve(n.ExternalID)
		parent, okParent := ids.Resolve(n.ParentID)
		if !okChild || !okParent {
			logger.Warn("[Taxonomy][Link] Skipping edge with unresolved end", "child", n.ExternalID, "parent", n.ParentID)
			metrics.CounterCategoryEdgesSkipped.WithLabelValues("unresolved").Inc()
			stats.Unresolved++
			continue
		}
		if parent == child {
			logger.Warn("[Taxonomy][Link] Skipping self edge", "child", n.ExternalID, "parent", n.ParentID, "durable_id", child)
			metrics.CounterCategoryEdgesSkipped.WithLabelValues("self").Inc()
			stats.SelfLinks++
			continue
		}
		e := store.CategoryEdge{ParentID: parent, ChildID: child}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}

	err := store.ChunkRange(len(edges), batchSize, func(start, end int) error {
		return st.WithinUnit(ctx, func(w store.Writer) error {
			return w.InsertCategoryEdges(ctx, edges[start:end])
		})
	})
	if err != nil {
		return stats, fmt.Errorf("insert category edges: %w", err)
	}
	stats.Linked = len(edges)
	metrics.CounterCategoryEdges.Add(float64(len(edges)))

	logger.Info("[Taxonomy][Link] Category edges written", "edges", stats.Linked, "unresolved", stats.Unresolved, "self", stats.SelfLinks)
	return stats, nil
}
