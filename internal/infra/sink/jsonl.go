// Package sink provides acquire.Sink implementations that deliver results
// outside the process.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"acquirer/internal/domain/entity"
)

// JSONL writes each result as one JSON object per line. Writes from
// concurrent Put calls never interleave.
type JSONL struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
	n   int
}

// NewJSONL creates a sink writing to w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: w, enc: json.NewEncoder(w)}
}

// Put encodes result as a single line.
func (s *JSONL) Put(ctx context.Context, result *entity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(result); err != nil {
		return fmt.Errorf("encode result %s: %w", result.RequestID, err)
	}
	s.n++
	return nil
}

// Written returns the number of results written so far.
func (s *JSONL) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Discard drops every result. The worker uses it when results are consumed
// through metrics and health only.
type Discard struct{}

// Put does nothing.
func (Discard) Put(context.Context, *entity.Result) error { return nil }
