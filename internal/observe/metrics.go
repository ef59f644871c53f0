// Package observe holds the OpenTelemetry metric instruments for inkwell and
// the Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] and a manual
// reader; production code uses [DefaultMetrics] after [InitProvider].
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "inkwell/api"

// Metrics holds every instrument the service records.
type Metrics struct {
	// GenerationDuration tracks backend latency per source and mode.
	GenerationDuration metric.Float64Histogram

	// GenerationRequests counts generation calls by source, mode and status.
	GenerationRequests metric.Int64Counter

	// GenerationErrors counts failed generation calls by source.
	GenerationErrors metric.Int64Counter

	// GenerationRejected counts requests refused before reaching a backend.
	// Use with attribute.String("reason", "busy"|"no_section"|"circuit_open").
	GenerationRejected metric.Int64Counter

	// ParseDuration tracks parse plus reconcile time in the editor pipeline.
	ParseDuration metric.Float64Histogram

	// ActiveSessions tracks live editor sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// generationBuckets are in seconds; LLM calls run from sub-second to a minute.
var generationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60,
}

var parseBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("inkwell.generation.duration",
		metric.WithDescription("Latency of text generation backends."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationRequests, err = m.Int64Counter("inkwell.generation.requests",
		metric.WithDescription("Total generation requests by source, mode, and status."),
	); err != nil {
		return nil, err
	}
	if met.GenerationErrors, err = m.Int64Counter("inkwell.generation.errors",
		metric.WithDescription("Total generation failures by source."),
	); err != nil {
		return nil, err
	}
	if met.GenerationRejected, err = m.Int64Counter("inkwell.generation.rejected",
		metric.WithDescription("Generation requests refused before dispatch, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ParseDuration, err = m.Float64Histogram("inkwell.editor.parse.duration",
		metric.WithDescription("Time spent parsing and reconciling sections."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(parseBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("inkwell.editor.active_sessions",
		metric.WithDescription("Number of live editor sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("inkwell.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance built from the global
// meter provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for attribute.String.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGeneration records one completed backend call.
func (m *Metrics) RecordGeneration(ctx context.Context, source, mode string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GenerationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("source", source), Attr("mode", mode)),
	)
	m.GenerationRequests.Add(ctx, 1,
		metric.WithAttributes(
			Attr("source", source),
			Attr("mode", mode),
			Attr("status", status),
		),
	)
	if err != nil {
		m.GenerationErrors.Add(ctx, 1, metric.WithAttributes(Attr("source", source)))
	}
}

// RecordRejected counts a generation request that never reached a backend.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.GenerationRejected.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordParse records one debounced parse cycle.
func (m *Metrics) RecordParse(ctx context.Context, d time.Duration) {
	m.ParseDuration.Record(ctx, d.Seconds())
}

// SessionOpened increments the live session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed decrements the live session gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// RecordHTTP records a served request.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			Attr("method", method),
			Attr("route", route),
			Attr("status", strconv.Itoa(status)),
		),
	)
}
