package otelexport

import (
	"context"
	"errors"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/itsneelabh/perfscope"
)

// Pipeline owns the providers built from a Config and sends finished
// trees through them.
type Pipeline struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	exporter       *Exporter
	recorder       *Recorder
	logger         *perfscope.Logger
}

// NewPipeline builds the tracer provider, and the meter provider when
// metrics are enabled, for cfg.
func NewPipeline(ctx context.Context, cfg perfscope.Config, opts ...ProviderOption) (*Pipeline, error) {
	tp, err := NewTracerProvider(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		tracerProvider: tp,
		exporter:       NewExporter(tp),
		logger:         perfscope.GetLogger(),
	}

	mp, err := NewMeterProvider(ctx, cfg, opts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	if mp != nil {
		recorder, err := NewRecorder(mp, WithCardinalityLimit(cfg.Export.CardinalityLimit))
		if err != nil {
			_ = tp.Shutdown(ctx)
			_ = mp.Shutdown(ctx)
			return nil, err
		}
		p.meterProvider = mp
		p.recorder = recorder
	}

	p.logger.Info("Export pipeline ready", map[string]interface{}{
		"exporter": cfg.Export.Exporter,
		"endpoint": cfg.Export.Endpoint,
		"metrics":  p.recorder != nil,
	})
	return p, nil
}

// TracerProvider returns the provider spans are emitted on.
func (p *Pipeline) TracerProvider() *sdktrace.TracerProvider {
	return p.tracerProvider
}

// Export emits root as spans, and as metrics when enabled. It returns the
// number of spans emitted.
func (p *Pipeline) Export(ctx context.Context, root *perfscope.Node) int {
	if p == nil || root == nil {
		return 0
	}
	spans := p.exporter.Export(ctx, root)
	if p.recorder != nil {
		p.recorder.Record(ctx, root)
	}
	if p.logger.DebugEnabled() {
		p.logger.Debug("Exported scope tree", map[string]interface{}{
			"root":       root.Name(),
			"spans":      spans,
			"elapsed_ms": root.Elapsed().Milliseconds(),
		})
	}
	return spans
}

// ForceFlush pushes buffered spans and metrics to the exporters.
func (p *Pipeline) ForceFlush(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops both providers.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down meter provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Error("Export pipeline shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
