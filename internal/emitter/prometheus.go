package emitter

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skimworks/skim/types"
)

// PrometheusEmitter exposes finding state as metrics via OTEL
type PrometheusEmitter struct {
	meter metric.Meter

	findingInfo    metric.Int64ObservableGauge
	savingsGauge   metric.Float64ObservableGauge
	changesCounter metric.Int64Counter

	// State for the observable gauges
	mu   sync.RWMutex
	open []types.Finding
}

// NewPrometheusEmitter creates a Prometheus emitter
func NewPrometheusEmitter() (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter: otel.Meter("skim"),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.findingInfo, err = e.meter.Int64ObservableGauge(
		"skim_finding_info",
		metric.WithDescription("Open waste findings"),
		metric.WithInt64Callback(e.observeFindings),
	)
	if err != nil {
		return fmt.Errorf("create finding_info gauge: %w", err)
	}

	e.savingsGauge, err = e.meter.Float64ObservableGauge(
		"skim_monthly_savings_dollars",
		metric.WithDescription("Estimated monthly savings across open findings"),
		metric.WithFloat64Callback(e.observeSavings),
	)
	if err != nil {
		return fmt.Errorf("create monthly_savings gauge: %w", err)
	}

	e.changesCounter, err = e.meter.Int64Counter(
		"skim_finding_changes_total",
		metric.WithDescription("Finding lifecycle changes per scan"),
	)
	if err != nil {
		return fmt.Errorf("create finding_changes counter: %w", err)
	}

	return nil
}

// Emit records the delta and refreshes the open set for the gauges
func (e *PrometheusEmitter) Emit(ctx context.Context, delta Delta) error {
	for _, group := range []struct {
		change string
		count  int
	}{
		{"created", len(delta.Created)},
		{"updated", len(delta.Updated)},
		{"closed", len(delta.Closed)},
	} {
		if group.count > 0 {
			e.changesCounter.Add(ctx, int64(group.count),
				metric.WithAttributes(attribute.String("change", group.change)))
		}
	}

	e.mu.Lock()
	e.open = delta.Open
	e.mu.Unlock()
	return nil
}

func (e *PrometheusEmitter) observeFindings(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, f := range e.open {
		o.Observe(1, metric.WithAttributes(
			attribute.String("rule_id", f.RuleID),
			attribute.String("family", string(f.Family)),
			attribute.String("account", f.Account),
			attribute.String("region", f.Region),
			attribute.String("confidence", string(f.Confidence)),
		))
	}
	return nil
}

func (e *PrometheusEmitter) observeSavings(_ context.Context, o metric.Float64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byRule := map[string]float64{}
	for _, f := range e.open {
		savings, _ := f.MonthlySavings.Float64()
		byRule[f.RuleID] += savings
	}
	for ruleID, savings := range byRule {
		o.Observe(savings, metric.WithAttributes(attribute.String("rule_id", ruleID)))
	}
	return nil
}

// Close is a no-op for the Prometheus emitter
func (e *PrometheusEmitter) Close() error { return nil }
