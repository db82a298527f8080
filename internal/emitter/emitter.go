// Package emitter defines how finding deltas leave the engine.
package emitter

import (
	"context"

	"github.com/skimworks/skim/types"
)

// Delta is one scan's worth of finding changes plus the open set
// after reconciliation
type Delta struct {
	ScanID  string          `json:"scan_id"`
	Created []types.Finding `json:"created,omitempty"`
	Updated []types.Finding `json:"updated,omitempty"`
	Closed  []types.Finding `json:"closed,omitempty"`
	Open    []types.Finding `json:"-"`
}

// Emitter sends finding deltas to a backend
type Emitter interface {
	// Emit sends one scan's delta
	Emit(ctx context.Context, delta Delta) error

	// Close cleans up resources
	Close() error
}

// MultiEmitter fans out to multiple emitters
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error
func (m *MultiEmitter) Emit(ctx context.Context, delta Delta) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, delta); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
