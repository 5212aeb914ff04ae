// Package otelexport replays finished perfscope trees into OpenTelemetry.
//
// perfscope itself never talks to a backend. Once a root scope has ended,
// hand its Node to an Exporter to get one span per scope, with the original
// start and end times, or to a Recorder to get duration histograms.
//
//	ctx, scope := perfscope.Create(ctx, "import batch")
//	runImport(ctx)
//	scope.End()
//
//	pipeline.Export(ctx, scope.Scope())
package otelexport

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/perfscope"
)

const instrumentationName = "github.com/itsneelabh/perfscope/otelexport"

// Span attribute keys.
const (
	AttrScopeID        = "perfscope.scope.id"
	AttrScopeElapsedMS = "perfscope.scope.elapsed_ms"
	AttrGroupPrefix    = "perfscope.group."
	attrGroupSuffix    = ".ms"
)

// Exporter turns scope trees into spans.
type Exporter struct {
	tracer trace.Tracer
}

// NewExporter creates an exporter using tp, or the global tracer provider
// when tp is nil.
func NewExporter(tp trace.TracerProvider) *Exporter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Exporter{tracer: tp.Tracer(instrumentationName)}
}

// Export emits one span per node under root, parented the same way the
// scopes were, and returns the number of spans emitted. A span already
// active in ctx becomes the parent of the root span.
func (e *Exporter) Export(ctx context.Context, root *perfscope.Node) int {
	if root == nil {
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return e.export(ctx, root)
}

func (e *Exporter) export(ctx context.Context, n *perfscope.Node) int {
	start := n.StartedOn()
	end := start.Add(n.Elapsed())

	ctx, span := e.tracer.Start(ctx, n.Name(),
		trace.WithTimestamp(start),
		trace.WithAttributes(nodeAttributes(n)...),
	)

	count := 1
	for _, child := range n.Children() {
		count += e.export(ctx, child)
	}

	span.End(trace.WithTimestamp(end))
	return count
}

// nodeAttributes describes a node, with groups in label order.
func nodeAttributes(n *perfscope.Node) []attribute.KeyValue {
	groups := n.Groups()
	attrs := make([]attribute.KeyValue, 0, 2+len(groups))
	attrs = append(attrs,
		attribute.String(AttrScopeID, n.ID()),
		attribute.Float64(AttrScopeElapsedMS, millis(n.Elapsed())),
	)

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		attrs = append(attrs, attribute.Float64(GroupAttributeKey(label), millis(groups[label])))
	}
	return attrs
}

// GroupAttributeKey returns the span attribute key for a group label.
func GroupAttributeKey(label string) string {
	return AttrGroupPrefix + label + attrGroupSuffix
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
