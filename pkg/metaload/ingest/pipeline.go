package ingest

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/metrics"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

const DefaultCategoryBatchSize = 500

// PipelineOptions configures all three stages.
type PipelineOptions struct {
	Policy            MergePolicy
	CategoryBatchSize int // categories, edges and related pairs per unit
	Loader            LoaderOptions
}

// Pipeline orchestrates the ingest flow:
// categories → products → related pairs
type Pipeline struct {
	st      store.Store
	src     corpus.Source
	opts    PipelineOptions
	entropy *ulid.MonotonicEntropy
}

// NewPipeline creates a pipeline reading src into st
func NewPipeline(st store.Store, src corpus.Source, opts PipelineOptions) *Pipeline {
	if opts.Policy == "" {
		opts.Policy = MergeByName
	}
	if opts.CategoryBatchSize <= 0 {
		opts.CategoryBatchSize = DefaultCategoryBatchSize
	}
	return &Pipeline{
		st:      st,
		src:     src,
		opts:    opts,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// StageTimings holds the wall time of each stage.
type StageTimings struct {
	Categories time.Duration
	Products   time.Duration
	Related    time.Duration
	Total      time.Duration
}

// Report summarises one run.
type Report struct {
	RunID      string
	Source     string
	Policy     MergePolicy
	StartedAt  time.Time
	Categories CategoryReport
	Load       LoadResult
	Related    FilterStats
	Timings    StageTimings
}

// CategoryReport is the outcome of the category stage.
type CategoryReport struct {
	ExternalIDs int
	Durable     int
	Edges       LinkStats
}

// Run executes the stages in order. On error the returned report holds
// whatever the finished stages produced.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	rep := Report{
		RunID:     ulid.MustNew(ulid.Now(), p.entropy).String(),
		Source:    p.src.Name(),
		Policy:    p.opts.Policy,
		StartedAt: time.Now(),
	}
	logger.Info("[Pipeline][Run] Starting ingest", "run", rep.RunID, "source", rep.Source, "policy", rep.Policy)

	// 1. Categories: collect, persist, link
	start := time.Now()
	tax := NewTaxonomy(p.opts.Policy)
	if err := tax.Collect(ctx, p.src); err != nil {
		return rep, err
	}
	ids, err := tax.Persist(ctx, p.st, p.opts.CategoryBatchSize)
	if err != nil {
		return rep, err
	}
	links, err := tax.Link(ctx, p.st, ids, p.opts.CategoryBatchSize)
	if err != nil {
		return rep, err
	}
	rep.Categories = CategoryReport{
		ExternalIDs: ids.Len(),
		Durable:     len(tax.Categories()),
		Edges:       links,
	}
	rep.Timings.Categories = p.stageDone("categories", start)

	// 2. Products, memberships, reviews
	start = time.Now()
	load, err := NewLoader(p.st, ids, p.opts.Loader).Load(ctx, p.src)
	rep.Load = load
	if err != nil {
		return rep, err
	}
	rep.Timings.Products = p.stageDone("products", start)

	// 3. Related pairs, once every product has been seen
	start = time.Now()
	related, err := load.Candidates.Persist(ctx, p.st, load.AcceptedKeys, p.opts.CategoryBatchSize)
	rep.Related = related
	if err != nil {
		return rep, err
	}
	rep.Timings.Related = p.stageDone("related", start)

	rep.Timings.Total = time.Since(rep.StartedAt)
	logger.Info("[Pipeline][Run] Ingest finished",
		"run", rep.RunID,
		"products", load.Accepted,
		"rejected", load.Rejected(),
		"categories", rep.Categories.Durable,
		"related", related.Kept,
		"elapsed", rep.Timings.Total,
	)
	return rep, nil
}

func (p *Pipeline) stageDone(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	metrics.GaugeStageSeconds.WithLabelValues(stage).Set(d.Seconds())
	logger.Debug("[Pipeline][Run] Stage finished", "stage", stage, "elapsed", d)
	return d
}

// CollectCategories runs only the category scan. Nothing is written.
func (p *Pipeline) CollectCategories(ctx context.Context) (*Taxonomy, error) {
	tax := NewTaxonomy(p.opts.Policy)
	if err := tax.Collect(ctx, p.src); err != nil {
		return nil, err
	}
	return tax, nil
}
