package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type readerState int

const (
	awaitingFirstRecord readerState = iota
	inRecord
)

// Reader is a pull iterator over the records of a corpus stream.
//
//	r, err := corpus.NewReader(ctx, src)
//	...
//	defer r.Close()
//	for r.Next() {
//		rec := r.Record()
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	ctx    context.Context
	closer io.Closer
	br     *bufio.Reader

	state   readerState
	current *Record
	record  *Record
	err     error
	eof     bool
	lines   int64
}

// NewReader opens src and returns a Reader over it. Invalid UTF-8 in the
// stream is replaced with U+FFFD.
func NewReader(ctx context.Context, src Source) (*Reader, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	r := newReader(ctx, rc)
	r.closer = rc
	return r, nil
}

func newReader(ctx context.Context, in io.Reader) *Reader {
	return &Reader{
		ctx: ctx,
		br:  bufio.NewReaderSize(decode(in), 64*1024),
	}
}

func decode(in io.Reader) io.Reader {
	return transform.NewReader(in, unicode.UTF8BOM.NewDecoder())
}

// Next advances to the next record. It returns false at end of stream or on
// error; check Err afterwards.
func (r *Reader) Next() bool {
	r.record = nil
	if r.err != nil {
		return false
	}
	for !r.eof {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
				return false
			}
			r.eof = true
		}
		if line == "" {
			continue
		}
		r.lines++
		if r.consume(line) {
			return true
		}
	}
	// end of stream yields the record in progress
	if r.current != nil {
		r.record, r.current = r.current, nil
		return true
	}
	return false
}

// consume feeds one raw line to the state machine and reports whether a
// finished record is ready.
func (r *Reader) consume(raw string) bool {
	line := strings.TrimSpace(raw)
	lower := strings.ToLower(line)

	if strings.HasPrefix(lower, "id:") {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			r.eof = true
			r.current = nil
			return false
		}
		next := &Record{SourceID: parseSourceID(line)}
		prev := r.current
		r.current = next
		if r.state == inRecord && prev != nil {
			r.record = prev
			return true
		}
		r.state = inRecord
		return false
	}

	if r.state == awaitingFirstRecord {
		return false
	}
	for _, rule := range rules {
		if rule.match(lower) {
			rule.apply(r.current, line)
			break
		}
	}
	return false
}

// Record returns the record produced by the last successful Next.
func (r *Reader) Record() *Record { return r.record }

// Err returns the first read or cancellation error.
func (r *Reader) Err() error { return r.err }

// Lines returns the number of lines read so far.
func (r *Reader) Lines() int64 { return r.lines }

// Close releases the underlying source. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Records streams the records of src. The source is closed on every exit
// path, including when the caller stops ranging early.
func Records(ctx context.Context, src Source) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		r, err := NewReader(ctx, src)
		if err != nil {
			yield(nil, err)
			return
		}
		defer r.Close()

		for r.Next() {
			if !yield(r.Record(), nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}
