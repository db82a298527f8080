package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/skimworks/skim/types"
)

func testLogger(buf *bytes.Buffer) *Logger {
	logger := zerolog.New(buf).Hook(OTELHook{})
	return &Logger{Logger: logger}
}

func spanContext(t *testing.T) (context.Context, *tracetest.InMemoryExporter, func()) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	ctx, span := provider.Tracer("test").Start(context.Background(), "test-span")
	return ctx, exporter, func() { span.End() }
}

func logFields(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	return fields
}

func TestOTELHookWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	l.WithContext(context.Background()).Info().Msg("plain")

	fields := logFields(t, &buf)
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "span_id")
}

func TestOTELHookAddsTraceIDs(t *testing.T) {
	ctx, _, end := spanContext(t)
	defer end()

	var buf bytes.Buffer
	l := testLogger(&buf)
	l.WithContext(ctx).Info().Msg("traced")

	fields := logFields(t, &buf)
	assert.Len(t, fields["trace_id"], 32)
	assert.Len(t, fields["span_id"], 16)
}

func TestOTELHookMarksSpanOnError(t *testing.T) {
	ctx, exporter, end := spanContext(t)

	var buf bytes.Buffer
	l := testLogger(&buf)
	l.WithContext(ctx).Error().Msg("boom")
	end()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
}

func TestWithLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf).WithLevel("warn")

	l.LogRuleSkipped(context.Background(), "rule", "res", nil)
	assert.Zero(t, buf.Len())

	l.LogEstimateRejected(context.Background(), "rule", "res", nil)
	assert.NotZero(t, buf.Len())
}

func TestWithLevelBadLevelKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)
	assert.Same(t, l, l.WithLevel("noisy"))
}

func TestLogUnitDoneWarnsOnFailure(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	outcome := types.UnitOutcome{
		Unit:     unit,
		Status:   types.UnitFailed,
		Error:    "throttled out",
		Attempts: 2,
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	testLogger(&buf).LogUnitDone(context.Background(), unit, outcome)

	fields := logFields(t, &buf)
	assert.Equal(t, "warn", fields["level"])
	assert.Equal(t, unit.String(), fields["unit"])
	assert.Equal(t, "failed", fields["status"])
	assert.Equal(t, float64(2), fields["attempts"])
}

func TestRecordersAreNilSafe(t *testing.T) {
	// Before InitOTEL every instrument is nil; recording must be inert
	ctx := context.Background()
	assert.NotPanics(t, func() {
		AddResourcesScanned(ctx, 5)
		AddFindingsCreated(ctx, 1)
		AddFindingsClosed(ctx, 1)
		AddRulesSkipped(ctx, 2)
		AddMetricQueries(ctx, 10)
		AddThrottleEvents(ctx, 1)
		RecordScanDuration(ctx, 1.5)
		RecordUnitDuration(ctx, 0.2)
		RecordOpenFindings(ctx, 3)
	})
}
