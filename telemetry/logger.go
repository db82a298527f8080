package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skimworks/skim/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithLevel returns a copy of the logger filtered to the given level
func (l *Logger) WithLevel(level string) *Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return l
	}
	return &Logger{Logger: l.Logger.Level(parsed)}
}

// WithContext returns a logger with context for trace propagation
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for scan operations

func (l *Logger) LogScanStart(ctx context.Context, scanID string, units int) {
	l.WithContext(ctx).Info().
		Str("scan_id", scanID).
		Int("units", units).
		Str("operation", "scan").
		Msg("scan started")
}

func (l *Logger) LogScanEnd(ctx context.Context, scanID string, status types.ScanStatus, durationMS float64) {
	l.WithContext(ctx).Info().
		Str("scan_id", scanID).
		Str("status", string(status)).
		Float64("duration_ms", durationMS).
		Str("operation", "scan").
		Msg("scan finished")
}

func (l *Logger) LogUnitDone(ctx context.Context, unit types.ScanUnit, outcome types.UnitOutcome) {
	event := l.WithContext(ctx).Info()
	if outcome.Status != types.UnitCompleted {
		event = l.WithContext(ctx).Warn()
	}
	event.
		Str("unit", unit.String()).
		Str("status", string(outcome.Status)).
		Int("attempts", outcome.Attempts).
		Int("resources", outcome.Resources).
		Int("findings", outcome.Findings).
		Int("skipped", outcome.Skipped).
		Float64("duration_ms", float64(outcome.Duration.Milliseconds())).
		Str("operation", "scan_unit").
		Msg("unit finished")
}

func (l *Logger) LogRuleSkipped(ctx context.Context, ruleID, resourceID string, err error) {
	l.WithContext(ctx).Debug().
		Err(err).
		Str("rule_id", ruleID).
		Str("resource_id", resourceID).
		Str("operation", "evaluate").
		Msg("rule skipped")
}

func (l *Logger) LogEstimateRejected(ctx context.Context, ruleID, resourceID string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("rule_id", ruleID).
		Str("resource_id", resourceID).
		Str("operation", "estimate").
		Msg("waste estimate rejected")
}

func (l *Logger) LogReconciliation(ctx context.Context, created, updated, closed int) {
	l.WithContext(ctx).Info().
		Int("created", created).
		Int("updated", updated).
		Int("closed", closed).
		Str("operation", "reconcile").
		Msg("findings reconciled")
}

func (l *Logger) LogCatalogReload(ctx context.Context, version string, rules int, err error) {
	if err != nil {
		l.WithContext(ctx).Error().
			Err(err).
			Str("operation", "catalog_reload").
			Msg("catalog reload failed, keeping previous")
		return
	}
	l.WithContext(ctx).Info().
		Str("version", version).
		Int("rules", rules).
		Str("operation", "catalog_reload").
		Msg("catalog reloaded")
}

func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
