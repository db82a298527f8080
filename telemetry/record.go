package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Nil-safe recording helpers. Instruments exist only after InitOTEL;
// code paths that run without it (tests, rules validate) still record
// safely into the void.

func AddResourcesScanned(ctx context.Context, n int64) { addCounter(ctx, ResourcesScanned, n) }
func AddFindingsCreated(ctx context.Context, n int64)  { addCounter(ctx, FindingsCreated, n) }
func AddFindingsClosed(ctx context.Context, n int64)   { addCounter(ctx, FindingsClosed, n) }
func AddRulesSkipped(ctx context.Context, n int64)     { addCounter(ctx, RulesSkipped, n) }
func AddMetricQueries(ctx context.Context, n int64)    { addCounter(ctx, MetricQueries, n) }
func AddThrottleEvents(ctx context.Context, n int64)   { addCounter(ctx, ThrottleEvents, n) }

func RecordScanDuration(ctx context.Context, seconds float64) {
	if ScanDuration != nil {
		ScanDuration.Record(ctx, seconds)
	}
}

func RecordUnitDuration(ctx context.Context, seconds float64) {
	if UnitDuration != nil {
		UnitDuration.Record(ctx, seconds)
	}
}

func RecordOpenFindings(ctx context.Context, n int64) {
	if OpenFindings != nil {
		OpenFindings.Record(ctx, n)
	}
}

func addCounter(ctx context.Context, counter metric.Int64Counter, n int64) {
	if counter != nil {
		counter.Add(ctx, n)
	}
}
