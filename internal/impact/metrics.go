package impact

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/leapstack-labs/leapgov/internal/impact"

// instruments holds the analyzer's tracer and metrics.
type instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	total    metric.Int64Counter
	affected metric.Int64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	in := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	in.duration, err = meter.Float64Histogram(
		"impact_analysis_duration_seconds",
		metric.WithDescription("Duration of impact analysis operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	in.total, err = meter.Int64Counter(
		"impact_analysis_total",
		metric.WithDescription("Total number of impact analyses"),
	)
	if err != nil {
		return nil, err
	}
	in.affected, err = meter.Int64Histogram(
		"impact_affected_entities",
		metric.WithDescription("Number of entities reached by an impact analysis"),
	)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (in *instruments) startSpan(ctx context.Context, entity string, maxDepth int) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "Analyzer.AnalyzeImpact",
		trace.WithAttributes(
			attribute.String("impact.entity", entity),
			attribute.Int("impact.max_depth", maxDepth),
		),
	)
}

func (in *instruments) record(ctx context.Context, span trace.Span, d time.Duration, r *Report, err error) {
	level := ""
	affected := 0
	if r != nil {
		level = string(r.RiskLevel)
		affected = len(r.Downstream) + len(r.Upstream)
		span.SetAttributes(
			attribute.String("impact.risk_level", level),
			attribute.Int("impact.downstream", len(r.Downstream)),
			attribute.Int("impact.upstream", len(r.Upstream)),
			attribute.Int("impact.critical", len(r.CriticalDependencies)),
		)
	}
	success := err == nil
	span.SetAttributes(attribute.Bool("impact.success", success))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("risk_level", level),
		attribute.Bool("success", success),
	)
	in.duration.Record(ctx, d.Seconds(), attrs)
	in.total.Add(ctx, 1, attrs)
	if success {
		in.affected.Record(ctx, int64(affected))
	}
}
