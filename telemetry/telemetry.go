// Package telemetry holds the OpenTelemetry instruments shared by the
// pipeline. Without an installed SDK the global providers are no-ops.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/poiesic/ragpipe"

// Metrics holds the pipeline instruments.
type Metrics struct {
	Operations     metric.Int64Counter
	Duration       metric.Float64Histogram
	Candidates     metric.Int64Histogram
	RerankDegraded metric.Int64Counter
	ChunksIngested metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operations, err := meter.Int64Counter(
		"ragpipe.operations.total",
		metric.WithDescription("Pipeline operations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ragpipe.operation.duration",
		metric.WithDescription("Pipeline operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	candidates, err := meter.Int64Histogram(
		"ragpipe.retrieval.candidates",
		metric.WithDescription("Candidates returned per retrieval"),
	)
	if err != nil {
		return nil, err
	}

	degraded, err := meter.Int64Counter(
		"ragpipe.rerank.degraded",
		metric.WithDescription("Retrievals that fell back to similarity order"),
	)
	if err != nil {
		return nil, err
	}

	chunks, err := meter.Int64Counter(
		"ragpipe.ingestion.chunks",
		metric.WithDescription("Chunks embedded and upserted"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Operations:     operations,
		Duration:       duration,
		Candidates:     candidates,
		RerankDegraded: degraded,
		ChunksIngested: chunks,
	}, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns instruments on the global meter provider, falling back
// to no-op instruments if they cannot be created.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(instrumentationName))
		if err != nil {
			slog.Warn("failed to create metrics, using no-op instruments", "err", err)
			m, _ = NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Tracer returns the pipeline tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RecordOperation counts one operation and its duration.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.Operations.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, elapsed.Seconds(), attrs)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
