package generation

import (
	"context"
	"errors"
	"time"

	"inkwell/api/internal/observe"
)

// Instrumented records latency and outcome of every call to next.
type Instrumented struct {
	next    Generator
	metrics *observe.Metrics
	// fallback labels requests that carry no source.
	fallback string
}

// NewInstrumented wraps next. A nil metrics uses observe.DefaultMetrics.
func NewInstrumented(next Generator, metrics *observe.Metrics, fallbackSource string) *Instrumented {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Instrumented{next: next, metrics: metrics, fallback: fallbackSource}
}

// Generate implements Generator.
func (g *Instrumented) Generate(ctx context.Context, req Request) (string, error) {
	source := req.Metadata.Source
	if source == "" {
		source = g.fallback
	}
	mode := string(req.Mode)
	if mode == "" {
		mode = string(ModeDefault)
	}

	start := time.Now()
	out, err := g.next.Generate(ctx, req)
	if errors.Is(err, ErrCircuitOpen) {
		g.metrics.RecordRejected(ctx, "circuit_open")
		return out, err
	}
	g.metrics.RecordGeneration(ctx, source, mode, time.Since(start), err)
	return out, err
}
