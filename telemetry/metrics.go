// Package telemetry wires OpenTelemetry metrics and structured logging for
// the bindle store.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/wolfeidau/bindle-store"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	storageOpsTotal     metric.Int64Counter
	storageOpDuration   metric.Float64Histogram
	parcelsMissingTotal metric.Int64Counter

	indexSyncTotal metric.Int64Counter
	outboxPending  metric.Int64Gauge

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bindle-store"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	backendRequestDuration, err := meter.Float64Histogram(
		"bindle_backend_request_duration_seconds",
		metric.WithDescription("Duration of filesystem backend operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	backendRequestsTotal, err := meter.Int64Counter(
		"bindle_backend_requests_total",
		metric.WithDescription("Total number of filesystem backend operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	backendBytesTotal, err := meter.Int64Counter(
		"bindle_backend_bytes_total",
		metric.WithDescription("Total bytes written through the filesystem backend"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	storageOpsTotal, err := meter.Int64Counter(
		"bindle_storage_ops_total",
		metric.WithDescription("Total number of storage engine operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	storageOpDuration, err := meter.Float64Histogram(
		"bindle_storage_op_duration_seconds",
		metric.WithDescription("Duration of storage engine operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	parcelsMissingTotal, err := meter.Int64Counter(
		"bindle_parcels_missing_total",
		metric.WithDescription("Parcels reported missing when creating invoices"),
		metric.WithUnit("{parcel}"),
	)
	if err != nil {
		return nil, err
	}

	indexSyncTotal, err := meter.Int64Counter(
		"bindle_index_sync_total",
		metric.WithDescription("Search index synchronisation attempts"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	outboxPending, err := meter.Int64Gauge(
		"bindle_outbox_pending",
		metric.WithDescription("Index events waiting in the outbox"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		backendRequestDuration: backendRequestDuration,
		backendRequestsTotal:   backendRequestsTotal,
		backendBytesTotal:      backendBytesTotal,
		storageOpsTotal:        storageOpsTotal,
		storageOpDuration:      storageOpDuration,
		parcelsMissingTotal:    parcelsMissingTotal,
		indexSyncTotal:         indexSyncTotal,
		outboxPending:          outboxPending,
	}, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordBackendOp records a filesystem backend operation.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordStorageOp records a storage engine operation. outcome is "success"
// or the error kind.
func RecordStorageOp(ctx context.Context, op, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	globalMetrics.storageOpsTotal.Add(ctx, 1, attrs)
	globalMetrics.storageOpDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMissingParcels records the number of parcels an invoice creation
// reported as missing.
func RecordMissingParcels(ctx context.Context, missing int) {
	if globalMetrics == nil || missing == 0 {
		return
	}
	globalMetrics.parcelsMissingTotal.Add(ctx, int64(missing))
}

// RecordIndexSync records one attempt to apply an index event.
// mode is "direct" or "outbox", op is "create" or "yank".
func RecordIndexSync(ctx context.Context, mode, op, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.indexSyncTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// UpdateOutboxPending records the number of undelivered outbox events.
func UpdateOutboxPending(ctx context.Context, pending int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.outboxPending.Record(ctx, int64(pending))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// Outcome converts an error into a metric outcome label. Errors in the chain
// that expose KindName, such as storage errors, supply the label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var k interface{ KindName() string }
	if errors.As(err, &k) {
		return k.KindName()
	}
	return "error"
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
