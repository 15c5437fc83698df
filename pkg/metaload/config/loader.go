package config

import (
	"context"
	"fmt"

	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/ingest"
	"github.com/cognicore/metaload/pkg/metaload/store"
	"github.com/cognicore/metaload/pkg/metaload/store/memstore"
	"github.com/cognicore/metaload/pkg/metaload/store/pgx"
	"github.com/cognicore/metaload/pkg/metaload/store/sqlite"
)

// Loader constructs components from a validated configuration
type Loader struct {
	Config *Config
}

// Components holds everything a pipeline run needs
type Components struct {
	Source  corpus.Source
	Store   store.Store
	Options ingest.PipelineOptions
}

// Load validates the configuration and returns initialized components.
// The caller owns Components.Store and must close it.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	if err := l.Config.Validate(); err != nil {
		return nil, err
	}

	opts, err := l.PipelineOptions()
	if err != nil {
		return nil, err
	}

	src, err := l.Source(ctx)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	st, err := l.Store(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Components{Source: src, Store: st, Options: opts}, nil
}

// Source builds the corpus source for Config.Input
func (l *Loader) Source(ctx context.Context) (corpus.Source, error) {
	s3 := l.Config.S3
	return corpus.OpenSource(ctx, l.Config.Input, corpus.S3Config{
		Region:    s3.Region,
		Endpoint:  s3.Endpoint,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
	})
}

// Store opens the configured backend
func (l *Loader) Store(ctx context.Context) (store.Store, error) {
	sc := l.Config.Store
	switch sc.Driver {
	case DriverSQLite:
		return sqlite.OpenSQLite(ctx, sc.DSN)
	case DriverPostgres:
		st, err := pgx.Open(ctx, sc.DSN, sc.PingAttempts)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// PipelineOptions maps the ingest section onto pipeline options
func (l *Loader) PipelineOptions() (ingest.PipelineOptions, error) {
	ic := l.Config.Ingest
	policy, err := ingest.ParseMergePolicy(ic.MergePolicy)
	if err != nil {
		return ingest.PipelineOptions{}, err
	}
	return ingest.PipelineOptions{
		Policy:            policy,
		CategoryBatchSize: ic.CategoryBatchSize,
		Loader: ingest.LoaderOptions{
			BatchSize:        ic.BatchSize,
			DefaultDownloads: ic.DefaultDownloads,
			Attempts:         ic.Attempts,
		},
	}, nil
}
