// Package jsonl reads recorded sensor feeds stored as JSON lines.
//
// Each line holds one arrival:
//
//	{"stream":"odom","stamp":1700000000000000000,"payload":{...}}
//
// stamp is in unix nanoseconds. The payload is kept undecoded.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bft-labs/sensorsync/internal/domain"
)

const readBufferSize = 1 << 20

type line struct {
	Stream  domain.StreamID `json:"stream"`
	Stamp   *int64          `json:"stamp"`
	Payload json.RawMessage `json:"payload"`
}

// Reader implements ports.RecordReader and ports.RecordFlusher over a JSONL
// file. The file may still be growing; a trailing line without a newline is
// held back until it is completed or flushed.
type Reader struct {
	path string

	f       *os.File
	r       *bufio.Reader
	partial []byte
	line    int64
}

// NewReader creates a reader for the feed at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Open opens the feed file.
func (r *Reader) Open(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	r.f = f
	r.r = bufio.NewReaderSize(f, readBufferSize)
	return nil
}

// Next returns the next record. It returns io.EOF when no complete line is
// available, and an error wrapping domain.ErrMalformedPayload for a line that
// is not a valid record; the line is consumed either way.
func (r *Reader) Next(ctx context.Context) (domain.Record, error) {
	if r.r == nil {
		return domain.Record{}, domain.ErrClosed
	}

	for {
		chunk, err := r.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				r.partial = append(r.partial, chunk...)
			}
			return domain.Record{}, err
		}
		if len(r.partial) > 0 {
			chunk = append(r.partial, chunk...)
			r.partial = nil
		}
		r.line++

		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 {
			continue
		}
		return r.parse(chunk)
	}
}

// Flush parses the held-back unterminated line. It returns io.EOF when there
// is none.
func (r *Reader) Flush(ctx context.Context) (domain.Record, error) {
	if r.r == nil {
		return domain.Record{}, domain.ErrClosed
	}
	chunk := bytes.TrimSpace(r.partial)
	r.partial = nil
	if len(chunk) == 0 {
		return domain.Record{}, io.EOF
	}
	r.line++
	return r.parse(chunk)
}

func (r *Reader) parse(b []byte) (domain.Record, error) {
	rec := domain.Record{Line: r.line}

	var l line
	if err := json.Unmarshal(b, &l); err != nil {
		return rec, fmt.Errorf("%w: line %d: %w", domain.ErrMalformedPayload, r.line, err)
	}
	rec.Stream = l.Stream
	if l.Stream == "" {
		return rec, fmt.Errorf("%w: line %d: missing stream", domain.ErrMalformedPayload, r.line)
	}
	if l.Stamp == nil {
		return rec, fmt.Errorf("%w: line %d: missing stamp", domain.ErrMalformedPayload, r.line)
	}
	rec.Timestamp = *l.Stamp
	rec.Raw = []byte(l.Payload)
	return rec, nil
}

// Close closes the feed file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f, r.r = nil, nil
	return err
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int64 {
	return r.line
}
