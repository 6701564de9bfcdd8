package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"resumeforge/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsRecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, "analyze", 2*time.Second, "")
	m.RecordRun(ctx, "analyze", time.Second, "SchemaInvalid")
	m.RecordStageFailure(ctx, "analyze", "validate", "SchemaInvalid")
	m.RecordTokenUsage(ctx, "analyze", &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})

	got := collect(t, reader)

	runs, ok := got["resumeforge_pipeline_runs_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range runs.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs.DataPoints, 2, "success and failure are separate series")

	failures, ok := got["resumeforge_pipeline_stage_failures_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, failures.DataPoints, 1)
	stage, _ := failures.DataPoints[0].Attributes.Value("stage")
	assert.Equal(t, "validate", stage.AsString())

	tokens, ok := got["resumeforge_ai_token_usage"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	assert.Len(t, tokens.DataPoints, 3)
}

func TestZeroMetricsRecordNothing(t *testing.T) {
	var nilMetrics *Metrics
	ctx := context.Background()
	for _, m := range []*Metrics{nilMetrics, {}} {
		m.RecordRun(ctx, "generate", time.Second, "")
		m.RecordStageFailure(ctx, "generate", "send", "TransportFailed")
		m.RecordTokenUsage(ctx, "generate", &TokenUsage{})
		m.RecordJobFetch(ctx, true)
		m.RecordPromptReload(ctx, false)
		m.RecordRateLimitHit(ctx)
	}
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, om.GetMetrics())
	assert.Nil(t, om.PrometheusServer())
	assert.NotNil(t, om.Tracer("x"))
	assert.NoError(t, om.Shutdown(context.Background()))

	h := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestPrometheusExporter(t *testing.T) {
	reader, mux, err := SetupPrometheusExporter(PrometheusConfig{Enabled: true, Endpoint: "/metrics", Port: "0"})
	require.NoError(t, err)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	m.RecordRun(context.Background(), "generate", time.Second, "")

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "resumeforge_pipeline_runs_total"), string(body))

	assert.NotNil(t, NewPrometheusServer(mux, "9090"))
	assert.Nil(t, NewPrometheusServer(nil, "9090"))
}

func TestGetObservabilityConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Observability.Enabled = true
	cfg.Observability.ServiceName = "resumeforge"
	cfg.Observability.SampleRate = 0.5
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Prometheus.Enabled = true
	cfg.Observability.Metrics.Enabled = false

	got := GetObservabilityConfig(cfg, "1.2.3")
	assert.Equal(t, "1.2.3", got.ServiceVersion)
	assert.Equal(t, 0.5, got.SampleRate)
	assert.False(t, got.Prometheus.Enabled, "metrics disabled turns prometheus off")

	fallback := GetObservabilityConfig(nil, "dev")
	assert.Equal(t, "resumeforge", fallback.ServiceName)
	assert.True(t, fallback.Prometheus.Enabled)
}
