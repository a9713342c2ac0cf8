package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// Writer appends records in the format Reader understands.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write encodes one arrival. payload is marshaled as JSON.
func (w *Writer) Write(stream domain.StreamID, stamp int64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(line{Stream: stream, Stamp: &stamp, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
