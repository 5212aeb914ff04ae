package otelexport

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/perfscope"
)

// Metric names recorded by Recorder.
const (
	MetricScopeDuration = "perfscope.scope.duration"
	MetricGroupDuration = "perfscope.group.duration"
)

// Attribute keys on recorded metrics.
const (
	AttrScopeName  = "perfscope.scope.name"
	AttrScopeDepth = "perfscope.scope.depth"
	AttrGroupLabel = "perfscope.group.label"
)

// Recorder records scope and group durations as histograms.
//
// Scope names and group labels become metric attributes. Each is capped
// by a CardinalityLimiter, so names such as "HTTP GET /users/42" fold into
// OverflowValue once the limit is reached.
type Recorder struct {
	scopeDuration metric.Float64Histogram
	groupDuration metric.Float64Histogram
	limiter       *CardinalityLimiter
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderOptions)

type recorderOptions struct {
	cardinalityLimit int
}

// WithCardinalityLimit sets how many distinct scope names and group labels
// are kept per metric. Non-positive values keep the default.
func WithCardinalityLimit(limit int) RecorderOption {
	return func(o *recorderOptions) {
		if limit > 0 {
			o.cardinalityLimit = limit
		}
	}
}

// NewRecorder creates the histogram instruments on mp, or on the global
// meter provider when mp is nil.
func NewRecorder(mp metric.MeterProvider, opts ...RecorderOption) (*Recorder, error) {
	o := recorderOptions{cardinalityLimit: perfscope.DefaultCardinalityLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	scopeDuration, err := meter.Float64Histogram(MetricScopeDuration,
		metric.WithDescription("Elapsed time of perfscope scopes"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s histogram: %w", MetricScopeDuration, err)
	}

	groupDuration, err := meter.Float64Histogram(MetricGroupDuration,
		metric.WithDescription("Accumulated time of perfscope groups per scope"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s histogram: %w", MetricGroupDuration, err)
	}

	return &Recorder{
		scopeDuration: scopeDuration,
		groupDuration: groupDuration,
		limiter: NewCardinalityLimiter(map[string]int{
			AttrScopeName:  o.cardinalityLimit,
			AttrGroupLabel: o.cardinalityLimit,
		}),
	}, nil
}

// Record records every node of the tree under root and every group on
// those nodes. It returns the number of scopes recorded.
func (r *Recorder) Record(ctx context.Context, root *perfscope.Node) int {
	if root == nil {
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}

	count := 0
	root.Walk(func(n *perfscope.Node, depth int) bool {
		count++
		r.scopeDuration.Record(ctx, millis(n.Elapsed()), metric.WithAttributes(
			attribute.String(AttrScopeName, r.limiter.CheckAndLimit(MetricScopeDuration, AttrScopeName, n.Name())),
			attribute.Int(AttrScopeDepth, depth),
		))
		groups := n.Groups()
		if len(groups) == 0 {
			return true
		}
		name := r.limiter.CheckAndLimit(MetricGroupDuration, AttrScopeName, n.Name())
		for label, d := range groups {
			r.groupDuration.Record(ctx, millis(d), metric.WithAttributes(
				attribute.String(AttrScopeName, name),
				attribute.String(AttrGroupLabel, r.limiter.CheckAndLimit(MetricGroupDuration, AttrGroupLabel, label)),
			))
		}
		return true
	})
	return count
}
