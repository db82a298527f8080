package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/skimworks/skim/types"
)

// event is one JSON line: a finding tagged with the scan that
// produced the change
type event struct {
	ScanID  string        `json:"scan_id"`
	Change  string        `json:"change"`
	Finding types.Finding `json:"finding"`
}

// JSONLEmitter writes one JSON object per finding change. Suitable
// for piping into jq or shipping to a log collector.
type JSONLEmitter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONLEmitter writes events to out
func NewJSONLEmitter(out io.Writer) *JSONLEmitter {
	return &JSONLEmitter{out: out}
}

// Emit writes created, updated and closed findings as JSON lines
func (e *JSONLEmitter) Emit(_ context.Context, delta Delta) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	encoder := json.NewEncoder(e.out)
	for _, group := range []struct {
		change   string
		findings []types.Finding
	}{
		{"created", delta.Created},
		{"updated", delta.Updated},
		{"closed", delta.Closed},
	} {
		for _, f := range group.findings {
			if err := encoder.Encode(event{ScanID: delta.ScanID, Change: group.change, Finding: f}); err != nil {
				return fmt.Errorf("encode finding %s: %w", f.Key(), err)
			}
		}
	}
	return nil
}

// Close is a no-op; the writer's owner closes it
func (e *JSONLEmitter) Close() error { return nil }
