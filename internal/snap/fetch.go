// Package snap downloads corpus files linked from a SNAP dataset page.
package snap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/cognicore/metaload/internal/util"
	"github.com/cognicore/metaload/pkg/metaload/logger"
)

const (
	DefaultPage = "https://snap.stanford.edu/data/amazon-meta.html"
	DefaultFile = "amazon-meta.txt.gz"
)

// Fetcher finds and downloads a file linked from a dataset page
type Fetcher struct {
	Client   *http.Client
	Attempts int
}

// NewFetcher returns a Fetcher with a default client
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: 30 * time.Minute},
		Attempts: 3,
	}
}

// Fetch downloads fileName, as linked from pageURL, into outDir and
// returns the written path.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, fileName, outDir string) (string, error) {
	link, err := f.FindLink(ctx, pageURL, fileName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	dest := filepath.Join(outDir, fileName)
	n, err := f.Download(ctx, link, dest)
	if err != nil {
		return "", err
	}
	logger.Info("[Snap][Fetch] Corpus downloaded", "url", link, "path", dest, "bytes", n)
	return dest, nil
}

// FindLink returns the absolute URL of the first anchor on pageURL whose
// path ends in fileName.
func (f *Fetcher) FindLink(ctx context.Context, pageURL, fileName string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	doc, err := util.RetryWithContext(ctx, f.Attempts, func(ctx context.Context) (*html.Node, error) {
		resp, err := f.get(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return html.Parse(resp.Body)
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				if path.Base(ref.Path) == fileName {
					found = base.ResolveReference(ref).String()
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == "" {
		return "", fmt.Errorf("no link to %s on %s", fileName, pageURL)
	}
	return found, nil
}

// Download streams fileURL to dest through a temporary file.
func (f *Fetcher) Download(ctx context.Context, fileURL, dest string) (int64, error) {
	resp, err := f.get(ctx, fileURL)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return 0, err
	}
	return n, nil
}

func (f *Fetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}
