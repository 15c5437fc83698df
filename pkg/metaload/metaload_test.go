package metaload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/metaload/pkg/metaload/config"
)

const corpusText = `Id: 1
ASIN: A1
  title: Alpha
  similar: 1  B2
   |Books[1]|Fiction[2]
Id: 2
ASIN: B2
  title: Beta
  similar: 1  A1
   |Books[1]
    2001-1-2  cutomer: U1  rating: 4  votes: 0  helpful: 0
`

func TestOpenAndRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "amazon-meta.txt")
	if err := os.WriteFile(input, []byte(corpusText), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	cfg := config.Default()
	cfg.Input = input
	cfg.Store.DSN = filepath.Join(dir, "meta.db")

	ctx := context.Background()
	m, err := Open(ctx, &cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	rep, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Load.Accepted != 2 || rep.Related.Kept != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}

	counts, err := m.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Products != 2 || counts.Categories != 2 || counts.Memberships != 3 || counts.Reviews != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}

	tax, err := m.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if tax.Len() != 2 {
		t.Errorf("expected 2 categories, got %d", tax.Len())
	}
}
