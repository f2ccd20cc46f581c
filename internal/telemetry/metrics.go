package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	DocumentsIngested   metric.Int64Counter
	ChunksStored        metric.Int64Counter
	ChunksSkipped       metric.Int64Counter
	IngestDuration      metric.Float64Histogram
	QueryDuration       metric.Float64Histogram
	OrphanVectors       metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(ServiceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsIngested, err := meter.Int64Counter(
		"ingest.documents",
		metric.WithDescription("Documents processed by the ingestion pipeline, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chunksStored, err := meter.Int64Counter(
		"ingest.chunks.stored",
		metric.WithDescription("Chunks committed to the document store"),
	)
	if err != nil {
		return nil, err
	}

	chunksSkipped, err := meter.Int64Counter(
		"ingest.chunks.skipped",
		metric.WithDescription("Chunks skipped because embedding failed"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("Query answer duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	orphanVectors, err := meter.Int64Counter(
		"index.orphan_vectors",
		metric.WithDescription("Vector index entries left without a committed chunk row"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		DocumentsIngested:   documentsIngested,
		ChunksStored:        chunksStored,
		ChunksSkipped:       chunksSkipped,
		IngestDuration:      ingestDuration,
		QueryDuration:       queryDuration,
		OrphanVectors:       orphanVectors,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordIngestion records the outcome of one document ingestion
func (m *Metrics) RecordIngestion(ctx context.Context, docType, outcome string, stored, skipped int, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("document.type", docType),
		attribute.String("ingest.outcome", outcome),
	)

	m.DocumentsIngested.Add(ctx, 1, attrs)
	m.ChunksStored.Add(ctx, int64(stored), attrs)
	m.ChunksSkipped.Add(ctx, int64(skipped), attrs)
	m.IngestDuration.Record(ctx, duration, attrs)
}

// RecordQuery records query latency by outcome
func (m *Metrics) RecordQuery(ctx context.Context, outcome string, sources int, duration float64) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("query.outcome", outcome),
		attribute.Int("query.sources", sources),
	))
}

// RecordOrphanVectors counts index entries that could not be reconciled with the store
func (m *Metrics) RecordOrphanVectors(ctx context.Context, n int, reason string) {
	if m == nil || n == 0 {
		return
	}
	m.OrphanVectors.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}
