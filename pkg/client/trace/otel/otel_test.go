package otel_test

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

func TestTelemetry_Spans(t *testing.T) {
	t.Parallel()

	// Setup tracing
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdkTrace.NewTracerProvider(sdkTrace.WithSyncer(traceExporter))

	// Setup metrics
	metricReader := sdkMetric.NewManualReader()
	meterProvider := sdkMetric.NewMeterProvider(sdkMetric.WithReader(metricReader))

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com?foo=bar`, httpmock.NewStringResponder(200, "OK"))

	// Create client
	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		WithTelemetry(tracerProvider, meterProvider)

	// Send request
	str := ""
	_, _, err := request.NewHTTPRequest(c).
		WithGet("https://example.com").
		AndQueryParam("foo", "bar").
		WithResult(&str).
		Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK", str)

	// Spans end bottom-up, low-level httptrace spans are not created by the mocked transport
	spans := spansByName(traceExporter.GetSpans())
	var spanNames []string
	for _, span := range traceExporter.GetSpans() {
		spanNames = append(spanNames, span.Name)
	}
	assert.Equal(t, []string{
		"http.request",
		"http.request.body.parse",
		"oxylabs.go.client.request",
	}, spanNames)

	// The root span describes the request definition
	rootSpan := spans["oxylabs.go.client.request"]
	rootAttrs := attrMap(rootSpan.Attributes)
	assert.Equal(t, "GET", rootAttrs["request.method"])
	assert.Equal(t, "https://example.com", rootAttrs["request.url.full"])
	assert.Equal(t, "example.com", rootAttrs["request.url.host"])
	assert.Equal(t, "*string", rootAttrs["request.result_type"])
	assert.Equal(t, "bar", rootAttrs["request.query.foo"])

	// The wire span carries the semconv request and response attributes
	httpSpan := spans["http.request"]
	httpAttrs := attrMap(httpSpan.Attributes)
	assert.Equal(t, "GET", httpAttrs["http.method"])
	assert.Equal(t, int64(200), httpAttrs["http.status_code"])

	// Both child spans are parented on the root span
	assert.Equal(t, rootSpan.SpanContext.SpanID(), httpSpan.Parent.SpanID())
	assert.Equal(t, rootSpan.SpanContext.SpanID(), spans["http.request.body.parse"].Parent.SpanID())

	// Check metrics
	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	metrics := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		metrics[m.Name] = m
	}
	assert.Len(t, metrics, 7)

	// The in-flight counters are back to zero
	assert.Equal(t, int64(0), sumValue(t, metrics, "oxylabs.go.client.request.in_flight"))
	assert.Equal(t, int64(0), sumValue(t, metrics, "oxylabs.go.http.request.in_flight"))
	assert.Equal(t, int64(0), sumValue(t, metrics, "oxylabs.go.client.request.parse.in_flight"))

	// One request was measured
	assert.Equal(t, uint64(1), histogramCount(t, metrics, "oxylabs.go.client.request.duration"))
	assert.Equal(t, uint64(1), histogramCount(t, metrics, "oxylabs.go.http.request.duration"))
	assert.Equal(t, uint64(1), histogramCount(t, metrics, "oxylabs.go.client.request.parse.duration"))

	// The whole body was counted
	assert.Equal(t, int64(len("OK")), sumValue(t, metrics, "oxylabs.go.http.response.read_bytes"))
}

func TestTelemetry_ErrorSpan(t *testing.T) {
	t.Parallel()

	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdkTrace.NewTracerProvider(sdkTrace.WithSyncer(traceExporter))

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "not found"))

	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		WithTelemetry(tracerProvider, nil)

	err := request.NewHTTPRequest(c).WithGet("https://example.com").SendOrErr(ctx)
	assert.Error(t, err)

	spans := spansByName(traceExporter.GetSpans())

	// The wire span records the HTTP status error
	httpSpan, found := spans["http.request"]
	require.True(t, found)
	assert.Equal(t, codes.Error, httpSpan.Status.Code)
	assert.Equal(t, int64(404), attrMap(httpSpan.Attributes)["http.status_code"])

	// The root span records the error with an exception event
	rootSpan, found := spans["oxylabs.go.client.request"]
	require.True(t, found)
	assert.Equal(t, codes.Error, rootSpan.Status.Code)
	require.NotEmpty(t, rootSpan.Events)
	assert.Equal(t, "exception", rootSpan.Events[0].Name)
}

func TestTelemetry_RedactedHeaders(t *testing.T) {
	t.Parallel()

	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdkTrace.NewTracerProvider(sdkTrace.WithSyncer(traceExporter))

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "OK"))

	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		WithHeader("Authorization", "top secret").
		WithTelemetry(tracerProvider, nil)

	err := request.NewHTTPRequest(c).WithGet("https://example.com").SendOrErr(ctx)
	assert.NoError(t, err)

	spans := spansByName(traceExporter.GetSpans())
	httpSpan, found := spans["http.request"]
	require.True(t, found)
	assert.Equal(t, "****", attrMap(httpSpan.Attributes)["http.request.header.authorization"])
}

func TestTelemetry_NilProviders(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "OK"))

	// Nil providers fall back to noop implementations
	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		WithTelemetry(nil, nil)

	err := request.NewHTTPRequest(c).WithGet("https://example.com").SendOrErr(ctx)
	assert.NoError(t, err)
}

func spansByName(spans tracetest.SpanStubs) map[string]tracetest.SpanStub {
	out := make(map[string]tracetest.SpanStub)
	for _, span := range spans {
		out[span.Name] = span
	}
	return out
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any)
	for _, attr := range attrs {
		out[string(attr.Key)] = attr.Value.AsInterface()
	}
	return out
}

func sumValue(t *testing.T, metrics map[string]metricdata.Metrics, name string) int64 {
	t.Helper()
	m, found := metrics[name]
	require.True(t, found, name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, metrics map[string]metricdata.Metrics, name string) uint64 {
	t.Helper()
	m, found := metrics[name]
	require.True(t, found, name)
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, name)
	var count uint64
	for _, dp := range histogram.DataPoints {
		count += dp.Count
	}
	return count
}
