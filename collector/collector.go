// Package collector defines how resource inventories reach the engine.
// Each provider implements one Collector per resource family; the scan
// orchestrator treats them uniformly.
package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// Collector lists every live resource of one family in one scan unit
type Collector interface {
	// Family names the resource family this collector covers
	Family() types.Family

	// List returns a point-in-time inventory for the unit. Results
	// are complete or the call errors; no partial inventories.
	List(ctx context.Context, unit types.ScanUnit) ([]types.Resource, error)
}

// ErrorKind splits collection failures by how the scan should react
type ErrorKind string

const (
	// KindTransient failures are retried inside the unit
	KindTransient ErrorKind = "transient"
	// KindPermanent failures abort the unit without retrying
	KindPermanent ErrorKind = "permanent"
)

// CollectionError wraps a provider failure with its classification so
// the orchestrator can decide between retry and unit isolation
type CollectionError struct {
	Unit types.ScanUnit
	Kind ErrorKind
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %s: %v", e.Unit, e.Kind, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Classify wraps err for the given unit, deciding transient versus
// permanent from the provider error code
func Classify(unit types.ScanUnit, err error) *CollectionError {
	if err == nil {
		return nil
	}
	kind := KindPermanent
	if retry.IsTransient(err) && !errors.Is(err, context.Canceled) {
		kind = KindTransient
	}
	return &CollectionError{Unit: unit, Kind: kind, Err: err}
}

// IsTransient reports whether err is a retryable collection failure
func IsTransient(err error) bool {
	var ce *CollectionError
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient
	}
	return false
}
