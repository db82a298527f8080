// Package metrics answers windowed, statistic-based queries against
// the monitoring backend. Missing datapoints stay missing; they are
// never coerced to zero.
package metrics

import (
	"context"
	"errors"

	"github.com/skimworks/skim/types"
)

// ErrMetricUnavailable means the backend could not answer after all
// retries. The caller skips the rule for that resource, it does not
// fail the scan.
var ErrMetricUnavailable = errors.New("metric unavailable")

// Source resolves metric queries into series
type Source interface {
	// Query answers a single metric query
	Query(ctx context.Context, q types.MetricQuery) (types.MetricSeries, error)

	// QueryBatch answers many queries in as few backend calls as
	// possible, keyed by MetricQuery.Key
	QueryBatch(ctx context.Context, queries []types.MetricQuery) (map[string]types.MetricSeries, error)
}
