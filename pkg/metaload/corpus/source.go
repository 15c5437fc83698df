package corpus

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source is a re-openable corpus stream. The pipeline opens it once per pass.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// FileSource reads a local file, gunzipping it when the path ends in .gz.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(f.Path), ".gz") {
		return file, nil
	}
	return gunzip(file, f.Path)
}

// gunzip wraps rc in a gzip reader whose Close also closes rc.
func gunzip(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gzip %s: %w", name, err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	uerr := g.under.Close()
	if zerr != nil {
		return zerr
	}
	return uerr
}

// ReaderSource serves an in-memory corpus.
type ReaderSource struct {
	Label string
	Data  []byte
}

// StringSource is a ReaderSource over s.
func StringSource(s string) ReaderSource {
	return ReaderSource{Label: "inline", Data: []byte(s)}
}

func (r ReaderSource) Name() string {
	if r.Label == "" {
		return "inline"
	}
	return r.Label
}

func (r ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.Data)), nil
}

// OpenSource picks a Source for uri: s3://bucket/key objects go through
// S3, anything else is a local path.
func OpenSource(ctx context.Context, uri string, s3cfg S3Config) (Source, error) {
	if rest, ok := strings.CutPrefix(uri, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 uri %q", uri)
		}
		src, err := NewS3Source(ctx, bucket, key, s3cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	if uri == "" {
		return nil, fmt.Errorf("empty corpus path")
	}
	return FileSource{Path: uri}, nil
}
