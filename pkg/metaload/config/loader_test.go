package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/ingest"
	"github.com/cognicore/metaload/pkg/metaload/internalerr"
	"github.com/cognicore/metaload/pkg/metaload/store/memstore"
)

func TestLoaderBuildsComponents(t *testing.T) {
	cfg := Default()
	cfg.Input = "amazon-meta.txt.gz"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "meta.db")
	cfg.Ingest.MergePolicy = "external-id"
	cfg.Ingest.DefaultDownloads = 3

	comp, err := (&Loader{Config: &cfg}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer comp.Store.Close()

	if fs, ok := comp.Source.(corpus.FileSource); !ok || fs.Path != "amazon-meta.txt.gz" {
		t.Errorf("unexpected source: %#v", comp.Source)
	}
	if comp.Options.Policy != ingest.MergeByExternalID {
		t.Errorf("unexpected policy: %q", comp.Options.Policy)
	}
	if comp.Options.Loader.BatchSize != 2000 || comp.Options.Loader.DefaultDownloads != 3 || comp.Options.CategoryBatchSize != 500 {
		t.Errorf("unexpected options: %+v", comp.Options)
	}
}

func TestLoaderMemoryDriver(t *testing.T) {
	cfg := Default()
	cfg.Input = "amazon-meta.txt"
	cfg.Store.Driver = DriverMemory

	comp, err := (&Loader{Config: &cfg}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := comp.Store.(*memstore.Store); !ok {
		t.Errorf("expected memstore, got %T", comp.Store)
	}
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	_, err := (&Loader{Config: &cfg}).Load(context.Background())
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
