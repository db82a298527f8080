package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the daemon's operational metrics
type Metrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
}

// NewMetrics creates daemon metrics following OTEL naming conventions
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("skim.daemon")

	cycles, err := meter.Int64Counter(
		"skim.daemon.cycles",
		metric.WithDescription("Number of scan cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"skim.daemon.cycle.duration",
		metric.WithDescription("Duration of scan cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{cycles: cycles, cycleDuration: cycleDuration}, nil
}

// RecordCycle records one scan cycle with its terminal status
func (m *Metrics) RecordCycle(ctx context.Context, status string) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCycleDuration records how long a cycle took
func (m *Metrics) RecordCycleDuration(ctx context.Context, durationSeconds float64, status string) {
	m.cycleDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(attribute.String("status", status)))
}
