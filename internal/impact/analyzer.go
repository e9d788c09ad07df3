package impact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapgov/internal/lineage"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Traverser is the lineage source of an analysis. *lineage.Tracker
// implements it.
type Traverser interface {
	// Snapshot runs fn with a walker pinned to one read snapshot.
	Snapshot(ctx context.Context, fn func(w lineage.Walker) error) error
	// DefaultDepth is the depth used for a maxDepth of zero.
	DefaultDepth() int
}

// Config holds Impact Analyzer configuration.
type Config struct {
	// Lineage is the traversal source. Required.
	Lineage Traverser
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Analyzer scores the impact of changing an entity.
type Analyzer struct {
	lineage Traverser
	logger  *slog.Logger
	inst    *instruments
	now     func() time.Time
}

// NewAnalyzer creates an Impact Analyzer.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Lineage == nil {
		return nil, fmt.Errorf("impact analyzer requires a lineage traverser")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	inst, err := newInstruments(tp, mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create impact metrics: %w", err)
	}
	return &Analyzer{lineage: cfg.Lineage, logger: logger, inst: inst, now: now}, nil
}

// AffectedEntity is one entity reached by the analysis.
type AffectedEntity struct {
	Entity           core.EntityRef
	Depth            int
	RelationshipType core.RelationshipType
	// CriticalReason is empty for non-critical entities.
	CriticalReason string
}

// IsCritical reports whether the entity was classified critical.
func (e AffectedEntity) IsCritical() bool {
	return e.CriticalReason != ""
}

// ToMap converts the entity to a plain map for transport.
func (e AffectedEntity) ToMap() map[string]any {
	m := map[string]any{
		"entity":            e.Entity.ToMap(),
		"depth":             e.Depth,
		"relationship_type": string(e.RelationshipType),
	}
	if e.CriticalReason != "" {
		m["critical_reason"] = e.CriticalReason
	}
	return m
}

// Report is the result of AnalyzeImpact.
type Report struct {
	Entity               core.EntityRef
	MaxDepth             int
	Downstream           []AffectedEntity
	Upstream             []AffectedEntity
	CriticalDependencies []AffectedEntity
	// MaxDepthReached is the deepest level reached in either direction.
	MaxDepthReached int
	RiskLevel       RiskLevel
	RiskFactors     []string
	Recommendations []string
	AnalyzedAt      time.Time
}

// ToMap converts the report to a plain map for transport.
func (r *Report) ToMap() map[string]any {
	return map[string]any{
		"entity":                r.Entity.ToMap(),
		"max_depth":             r.MaxDepth,
		"downstream":            entityMaps(r.Downstream),
		"upstream":              entityMaps(r.Upstream),
		"critical_dependencies": entityMaps(r.CriticalDependencies),
		"downstream_count":      len(r.Downstream),
		"upstream_count":        len(r.Upstream),
		"critical_count":        len(r.CriticalDependencies),
		"max_depth_reached":     r.MaxDepthReached,
		"risk_level":            string(r.RiskLevel),
		"risk_factors":          r.RiskFactors,
		"recommendations":       r.Recommendations,
		"analyzed_at":           r.AnalyzedAt.UTC().Format(time.RFC3339Nano),
	}
}

// AnalyzeImpact walks downstream and upstream from ref concurrently over one
// read snapshot, each walk with its own visited set, and scores the
// downstream reach. maxDepth
// zero means the traverser's default depth.
func (a *Analyzer) AnalyzeImpact(ctx context.Context, ref core.EntityRef, maxDepth int) (report *Report, err error) {
	if maxDepth == 0 {
		maxDepth = a.lineage.DefaultDepth()
	}

	start := a.now()
	ctx, span := a.inst.startSpan(ctx, ref.Key(), maxDepth)
	defer func() {
		a.inst.record(ctx, span, a.now().Sub(start), report, err)
		span.End()
	}()

	var down, up *lineage.Traversal
	err = a.lineage.Snapshot(ctx, func(w lineage.Walker) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			down, err = w.Traverse(gctx, ref, core.DirectionDownstream, maxDepth)
			return err
		})
		g.Go(func() error {
			var err error
			up, err = w.Traverse(gctx, ref, core.DirectionUpstream, maxDepth)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("impact analysis of %s: %w", ref, err)
	}

	report = &Report{
		Entity:          ref,
		MaxDepth:        maxDepth,
		MaxDepthReached: max(down.MaxDepthReached, up.MaxDepthReached),
		AnalyzedAt:      a.now().UTC(),
	}
	for _, r := range down.Reached {
		e := affected(r)
		e.CriticalReason = IsCritical(string(r.Entity.Type), r.Depth)
		report.Downstream = append(report.Downstream, e)
		if e.IsCritical() {
			report.CriticalDependencies = append(report.CriticalDependencies, e)
		}
	}
	for _, r := range up.Reached {
		report.Upstream = append(report.Upstream, affected(r))
	}

	critical, downstream := len(report.CriticalDependencies), len(report.Downstream)
	report.RiskLevel = AssessRisk(critical, downstream)
	report.RiskFactors = RiskFactors(critical, downstream, report.MaxDepthReached)
	report.Recommendations = Recommendations(report.RiskLevel, downstream)

	a.logger.Debug("impact analyzed",
		"entity", ref.Key(),
		"downstream", downstream,
		"upstream", len(report.Upstream),
		"critical", critical,
		"risk", report.RiskLevel)
	return report, nil
}

func affected(r lineage.Reached) AffectedEntity {
	return AffectedEntity{Entity: r.Entity, Depth: r.Depth, RelationshipType: r.Record.RelationshipType}
}

func entityMaps(es []AffectedEntity) []any {
	out := make([]any, 0, len(es))
	for _, e := range es {
		out = append(out, e.ToMap())
	}
	return out
}
