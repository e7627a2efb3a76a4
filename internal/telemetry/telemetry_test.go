package telemetry

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTraceExporter(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		opts      Options
		expectNil bool
		expectErr bool
	}{
		{name: "default is none", expectNil: true},
		{name: "none", opts: Options{TraceExporter: "none"}, expectNil: true},
		{name: "console", opts: Options{TraceExporter: "console"}},
		{name: "http without endpoint", opts: Options{TraceExporter: "http"}, expectErr: true},
		{name: "unknown", opts: Options{TraceExporter: "zipkin"}, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			exporter, err := NewTraceExporter(t.Context(), io.Discard, &tc.opts)
			if tc.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)

			if tc.expectNil {
				assert.Nil(t, exporter)
				return
			}

			assert.IsType(t, (*stdouttrace.Exporter)(nil), exporter)
		})
	}
}

func TestNewMetricsExporterNone(t *testing.T) {
	t.Parallel()

	exporter, err := NewMetricsExporter(t.Context(), io.Discard, &Options{})
	require.NoError(t, err)
	assert.Nil(t, exporter)

	_, err = NewMetricsExporter(t.Context(), io.Discard, &Options{MetricExporter: "statsd"})
	require.Error(t, err)
}

func TestDisabledTelemeterRunsFunction(t *testing.T) {
	t.Parallel()

	tlm, err := NewTelemeter(t.Context(), "clusterflow", "test", io.Discard, &Options{})
	require.NoError(t, err)

	for _, tlm := range []*Telemeter{tlm, nil, new(Telemeter)} {
		var called bool

		err := tlm.Collect(t.Context(), "stage_exec", nil, func(context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)

		tlm.Count(t.Context(), "shard_attempts", 1, nil)
	}
}

func TestCollectRecordsSpanAndCounter(t *testing.T) {
	t.Parallel()

	spans := tracetest.NewInMemoryExporter()
	traceProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tlm := &Telemeter{
		Tracer: &Tracer{Tracer: traceProvider.Tracer("test"), provider: traceProvider},
		Meter:  &Meter{Meter: meterProvider.Meter("test"), provider: meterProvider},
	}

	failure := errors.New("boom")

	err := tlm.Collect(t.Context(), "stage_provision", map[string]any{"cluster": "foo"}, func(context.Context) error {
		return failure
	})
	require.ErrorIs(t, err, failure)

	tlm.Count(t.Context(), "shard_attempts", 3, map[string]any{"shard": 2})

	ended := spans.GetSpans()
	require.Len(t, ended, 1)
	assert.Equal(t, "stage_provision", ended[0].Name)
	assert.Equal(t, codes.Error, ended[0].Status.Code)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &data))

	names := map[string]bool{}

	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["stage_provision_duration"])
	assert.True(t, names["shard_attempts_count"])
}

func TestParseTraceParent(t *testing.T) {
	t.Parallel()

	parent, err := parseTraceParent("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	require.NoError(t, err)
	assert.True(t, parent.IsSampled())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", parent.TraceID().String())

	_, err = parseTraceParent("garbage")
	require.Error(t, err)
}

func TestCleanMetricName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stage_sync_file_mounts", CleanMetricName("stage sync-file/mounts"))
	assert.Equal(t, "a_b", CleanMetricName("__a__b__"))
}
