package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics creates a Metrics instance backed by a ManualReader for testing.
func setupTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := newMetrics(mp.Meter(meterName))
	require.NoError(t, err)
	m.meterProvider = mp
	globalMetrics = m

	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		globalMetrics = nil
	})

	return reader
}

// collectMetrics reads all metrics from the ManualReader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findCounter finds a counter metric by name and returns its data points.
func findCounter(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					return sum.DataPoints
				}
			}
		}
	}
	return nil
}

// findHistogram finds a histogram metric by name and returns its data points.
func findHistogram(rm metricdata.ResourceMetrics, name string) []metricdata.HistogramDataPoint[float64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return hist.DataPoints
				}
			}
		}
	}
	return nil
}

// findGauge finds a gauge metric by name and returns its data points.
func findGauge(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
					return g.DataPoints
				}
			}
		}
	}
	return nil
}

// hasAttr checks if a data point's attribute set contains the given key-value pair.
func hasAttr(attrs attribute.Set, key, value string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordBackendOp(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordBackendOp(context.Background(), "filesystem", "create", "success", 5*time.Millisecond, 6)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "bindle_backend_requests_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 1, dps[0].Value)
	require.True(t, hasAttr(dps[0].Attributes, "backend", "filesystem"))
	require.True(t, hasAttr(dps[0].Attributes, "op", "create"))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "success"))

	bytesDps := findCounter(rm, "bindle_backend_bytes_total")
	require.Len(t, bytesDps, 1)
	require.EqualValues(t, 6, bytesDps[0].Value)

	histDps := findHistogram(rm, "bindle_backend_request_duration_seconds")
	require.Len(t, histDps, 1)
	require.Equal(t, uint64(1), histDps[0].Count)
}

func TestRecordBackendOp_ZeroBytesNotCounted(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordBackendOp(context.Background(), "filesystem", "stat", "success", time.Millisecond, 0)

	rm := collectMetrics(t, reader)
	require.Empty(t, findCounter(rm, "bindle_backend_bytes_total"))
}

func TestRecordStorageOp(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordStorageOp(ctx, "create_invoice", "success", 2*time.Millisecond)
	RecordStorageOp(ctx, "create_invoice", "success", 3*time.Millisecond)
	RecordStorageOp(ctx, "get_invoice", "yanked", time.Millisecond)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "bindle_storage_ops_total")
	require.Len(t, dps, 2)
	for _, dp := range dps {
		if hasAttr(dp.Attributes, "op", "create_invoice") {
			require.EqualValues(t, 2, dp.Value)
		} else {
			require.True(t, hasAttr(dp.Attributes, "outcome", "yanked"))
			require.EqualValues(t, 1, dp.Value)
		}
	}
}

func TestRecordMissingParcels(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordMissingParcels(ctx, 0)
	RecordMissingParcels(ctx, 3)

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "bindle_parcels_missing_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 3, dps[0].Value)
}

func TestRecordIndexSyncAndOutbox(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordIndexSync(ctx, "outbox", "yank", "error")
	UpdateOutboxPending(ctx, 4)

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "bindle_index_sync_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "mode", "outbox"))
	require.True(t, hasAttr(dps[0].Attributes, "op", "yank"))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "error"))

	gauge := findGauge(rm, "bindle_outbox_pending")
	require.Len(t, gauge, 1)
	require.EqualValues(t, 4, gauge[0].Value)
}

func TestRecord_NilGlobalMetrics(t *testing.T) {
	globalMetrics = nil
	ctx := context.Background()

	// Should not panic
	RecordBackendOp(ctx, "filesystem", "read", "success", time.Millisecond, 10)
	RecordStorageOp(ctx, "get_label", "success", time.Millisecond)
	RecordMissingParcels(ctx, 1)
	RecordIndexSync(ctx, "direct", "create", "success")
	UpdateOutboxPending(ctx, 0)
}

func TestPrometheusHandlerDisabled(t *testing.T) {
	globalMetrics = nil

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type kindError string

func (k kindError) Error() string    { return string(k) }
func (k kindError) KindName() string { return string(k) }

func TestOutcome(t *testing.T) {
	require.Equal(t, "success", Outcome(nil))
	require.Equal(t, "error", Outcome(errors.New("boom")))
	require.Equal(t, "not_found", Outcome(kindError("not_found")))
	require.Equal(t, "exists", Outcome(fmt.Errorf("wrapped: %w", kindError("exists"))))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogHandler(t *testing.T) {
	for _, format := range []string{"text", "plain", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewLogHandler(&buf, slog.LevelInfo, format, true)
			require.NoError(t, err)

			logger := slog.New(h)
			logger.Debug("hidden")
			logger.Info("indexed invoice", "invoice_id", "abc", ErrAttr(errors.New("boom")))

			out := buf.String()
			require.NotContains(t, out, "hidden")
			require.Contains(t, out, "indexed invoice")
			require.Contains(t, out, "abc")
			require.Contains(t, out, "boom")
		})
	}

	_, err := NewLogHandler(&bytes.Buffer{}, slog.LevelInfo, "xml", true)
	require.Error(t, err)
}
