// Package metaload loads SNAP amazon-meta style corpora into a relational
// store. Open wires a configuration into a ready pipeline.
package metaload

import (
	"context"

	"github.com/cognicore/metaload/pkg/metaload/config"
	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/ingest"
	"github.com/cognicore/metaload/pkg/metaload/store"
)

// Metaload is the ingest facade
type Metaload struct {
	store    store.Store
	source   corpus.Source
	pipeline *ingest.Pipeline
}

// Open validates cfg and builds the source, store and pipeline it names.
func Open(ctx context.Context, cfg *config.Config) (*Metaload, error) {
	comp, err := (&config.Loader{Config: cfg}).Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(comp.Store, comp.Source, comp.Options), nil
}

// New creates a facade over already built components
func New(st store.Store, src corpus.Source, opts ingest.PipelineOptions) *Metaload {
	return &Metaload{
		store:    st,
		source:   src,
		pipeline: ingest.NewPipeline(st, src, opts),
	}
}

// Close cleanly shuts down the store
func (m *Metaload) Close() error {
	return m.store.Close()
}

// Store returns the underlying store
func (m *Metaload) Store() store.Store { return m.store }

// Source returns the corpus source
func (m *Metaload) Source() corpus.Source { return m.source }

// Run executes the full ingest
func (m *Metaload) Run(ctx context.Context) (ingest.Report, error) {
	return m.pipeline.Run(ctx)
}

// Categories scans the corpus for classification nodes without writing
func (m *Metaload) Categories(ctx context.Context) (*ingest.Taxonomy, error) {
	return m.pipeline.CollectCategories(ctx)
}

// Counts reports the row totals of the store
func (m *Metaload) Counts(ctx context.Context) (store.Counts, error) {
	return m.store.Counts(ctx)
}
