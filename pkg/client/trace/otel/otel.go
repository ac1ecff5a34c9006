// Package otel provides OpenTelemetry tracing and metrics for the HTTP clients.
//
// One logical request produces a span tree:
//
//	oxylabs.go.client.request        the whole request, redirects and parsing included
//	└── http.request                 one span per wire request
//	    ├── http.dns, http.getconn, http.connect, http.tls
//	    ├── http.headers, http.send, http.receive
//	└── http.request.body.parse      mapping of the body to the result targets
//
// The connection level spans come from httptrace hooks, they exist only for
// the net/http client, fasthttp exposes no transport internals. Metrics are
// listed in the meters struct. The otelhttp/otelhttptrace contrib packages
// are not used: the client part of otelhttp records no metrics, and
// otelhttptrace leaks unfinished spans
// (https://github.com/open-telemetry/opentelemetry-go-contrib/issues/399).
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// AppName is the name of the tracer and meter in the telemetry providers.
const AppName = "github.com/oxylabs/nethttp-vs-fasthttp"

const (
	clientMeterPrefix     = "oxylabs.go.client."
	httpMeterPrefix       = "oxylabs.go.http."
	clientRequestSpanName = "oxylabs.go.client.request"
	httpRequestSpanName   = "http.request"
	bodyParseSpanName     = "http.request.body.parse"
	dnsSpanName           = "http.dns"
	getConnSpanName       = "http.getconn"
	connectSpanName       = "http.connect"
	tlsSpanName           = "http.tls"
	headersSpanName       = "http.headers"
	sendSpanName          = "http.send"
	receiveSpanName       = "http.receive"
)

const (
	attrDNSAddresses   = attribute.Key("http.dns.addrs")
	attrRemoteAddr     = attribute.Key("http.remote")
	attrLocalAddr      = attribute.Key("http.local")
	attrConnReused     = attribute.Key("http.conn.reused")
	attrConnWasIdle    = attribute.Key("http.conn.was_idle")
	attrConnIdleTime   = attribute.Key("http.conn.idle_time")
	attrConnNetwork    = attribute.Key("http.conn.network")
	attrConnRemoteAddr = attribute.Key("http.conn.remote")
	attrReadBytes      = attribute.Key("http.read_bytes")
)

// NewTrace creates a trace.Factory recording spans and metrics for every request.
// A nil provider falls back to its noop implementation.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	t := &telemetry{
		cfg:    newConfig(opts),
		tracer: tracerProvider.Tracer(AppName),
		meters: newMeters(meterProvider.Meter(AppName)),
	}
	return t.traceRequest
}

type telemetry struct {
	cfg    config
	tracer otelTrace.Tracer
	meters *meters
}

// traceRequest starts the root span and wires the hooks of one request.
func (t *telemetry) traceRequest(rootCtx context.Context, reqDef request.HTTPRequest) (context.Context, *trace.ClientTrace) {
	s := &requestTrace{
		telemetry: t,
		attrs:     newAttrSet(t.cfg, reqDef),
		startedAt: time.Now(),
	}

	s.rootCtx, s.rootSpan = t.tracer.Start(
		rootCtx,
		clientRequestSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(s.attrs.definition...),
		otelTrace.WithAttributes(s.attrs.definitionDetail...),
	)
	t.meters.requestsInFlight.Add(s.rootCtx, 1, otelMetric.WithAttributes(s.attrs.definition...))

	tc := &trace.ClientTrace{
		HTTPRequestStart: s.onRequestStart,
		HTTPRequestDone:  s.onRequestDone,
		BodyRead:         s.onBodyRead,
		BodyParseStart:   s.onParseStart,
		BodyParseDone:    s.onParseDone,
		RequestProcessed: s.onProcessed,
	}
	tc.ClientTrace = httptrace.ClientTrace{
		DNSStart:             s.onDNSStart,
		DNSDone:              s.onDNSDone,
		GetConn:              s.onGetConn,
		GotConn:              s.onGotConn,
		ConnectStart:         s.onConnectStart,
		ConnectDone:          s.onConnectDone,
		TLSHandshakeStart:    s.onTLSStart,
		TLSHandshakeDone:     s.onTLSDone,
		WroteHeaderField:     s.onWroteHeaderField,
		WroteHeaders:         s.onWroteHeaders,
		WroteRequest:         s.onWroteRequest,
		GotFirstResponseByte: s.onFirstResponseByte,
	}
	return s.rootCtx, tc
}

// requestTrace is the state of one traced request.
// The hooks of one request are never called concurrently, no locking is needed.
type requestTrace struct {
	*telemetry
	attrs *attrSet

	startedAt      time.Time
	httpStartedAt  time.Time
	parseStartedAt time.Time
	readBytes      int64
	parseAttrs     []attribute.KeyValue

	rootCtx context.Context
	httpCtx context.Context

	rootSpan    otelTrace.Span
	httpSpan    otelTrace.Span
	dnsSpan     otelTrace.Span
	getConnSpan otelTrace.Span
	connectSpan otelTrace.Span
	tlsSpan     otelTrace.Span
	headersSpan otelTrace.Span
	sendSpan    otelTrace.Span
	receiveSpan otelTrace.Span
	parseSpan   otelTrace.Span
}

// onRequestStart opens the http.request span, a redirect opens a new one.
func (s *requestTrace) onRequestStart(req *http.Request) {
	s.readBytes = 0
	s.httpStartedAt = time.Now()
	s.httpCtx, s.httpSpan = s.tracer.Start(s.rootCtx, httpRequestSpanName, otelTrace.WithSpanKind(otelTrace.SpanKindClient))

	if s.cfg.propagators != nil {
		s.cfg.propagators.Inject(s.httpCtx, propagation.HeaderCarrier(req.Header))
	}

	s.attrs.SetFromRequest(req)
	s.httpSpan.SetAttributes(s.attrs.httpRequest...)
	s.httpSpan.SetAttributes(s.attrs.httpRequestDetail...)
	s.meters.httpInFlight.Add(s.rootCtx, 1, otelMetric.WithAttributes(s.attrs.httpRequest...))
}

func (s *requestTrace) onRequestDone(res *http.Response, err error) {
	s.attrs.SetFromResponse(res, err)
	elapsed := float64(time.Since(s.httpStartedAt)) / float64(time.Millisecond)

	// The in_flight decrement must use the same attributes as the increment
	s.meters.httpInFlight.Add(s.rootCtx, -1, otelMetric.WithAttributes(s.attrs.httpRequest...))
	s.meters.httpDuration.Record(
		s.rootCtx,
		elapsed,
		otelMetric.WithAttributes(s.attrs.httpRequest...),
		otelMetric.WithAttributes(s.attrs.httpResponse...),
	)

	if s.httpSpan == nil {
		return
	}
	s.httpSpan.SetAttributes(s.attrs.httpResponse...)
	s.httpSpan.SetAttributes(s.attrs.httpResponseDetail...)
	if err == nil && res != nil && res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("HTTP status code: %d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	endSpan(s.httpSpan, err)
	s.httpSpan = nil
}

func (s *requestTrace) onBodyRead(bytes int64, err error) {
	s.readBytes = bytes
	s.meters.readBytes.Add(
		s.rootCtx,
		bytes,
		otelMetric.WithAttributes(s.attrs.httpRequest...),
		otelMetric.WithAttributes(s.attrs.httpResponse...),
	)
	if s.receiveSpan != nil {
		s.receiveSpan.SetAttributes(attrReadBytes.Int64(bytes))
		endSpan(s.receiveSpan, err)
		s.receiveSpan = nil
	}
}

func (s *requestTrace) onParseStart(response *http.Response) {
	s.parseStartedAt = time.Now()
	s.parseAttrs = append(s.attrs.definition[:len(s.attrs.definition):len(s.attrs.definition)], s.attrs.httpResponse...)
	s.meters.parseInFlight.Add(s.rootCtx, 1, otelMetric.WithAttributes(s.parseAttrs...))
	_, s.parseSpan = s.tracer.Start(
		s.rootCtx,
		bodyParseSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(s.attrs.httpRequest...),
		otelTrace.WithAttributes(s.attrs.httpResponse...),
	)
}

func (s *requestTrace) onParseDone(response *http.Response, result any, err error, parseError error) {
	elapsed := float64(time.Since(s.parseStartedAt)) / float64(time.Millisecond)
	s.meters.parseInFlight.Add(s.rootCtx, -1, otelMetric.WithAttributes(s.parseAttrs...))
	s.meters.parseDuration.Record(s.rootCtx, elapsed, otelMetric.WithAttributes(s.parseAttrs...))
	if s.parseSpan != nil {
		s.parseSpan.SetAttributes(attrReadBytes.Int64(s.readBytes))
		endSpan(s.parseSpan, parseError)
		s.parseSpan = nil
	}
}

// onProcessed closes the root span and records the logical request metrics.
func (s *requestTrace) onProcessed(result any, err error) {
	elapsed := float64(time.Since(s.startedAt)) / float64(time.Millisecond)

	s.meters.requestsInFlight.Add(s.rootCtx, -1, otelMetric.WithAttributes(s.attrs.definition...))
	s.meters.requestDuration.Record(
		s.rootCtx,
		elapsed,
		otelMetric.WithAttributes(s.attrs.definition...),
		otelMetric.WithAttributes(s.attrs.httpResponse...),
		otelMetric.WithAttributes(s.attrs.outcome...),
	)

	if s.rootSpan == nil {
		return
	}
	s.rootSpan.SetAttributes(s.attrs.httpResponse...)
	s.rootSpan.SetAttributes(s.attrs.httpResponseDetail...)
	if err != nil {
		s.rootSpan.RecordError(err)
		s.rootSpan.SetStatus(codes.Error, err.Error())
		s.rootSpan.End(otelTrace.WithStackTrace(true))
	} else {
		s.rootSpan.End()
	}
	s.rootSpan = nil
}

func (s *requestTrace) onDNSStart(info httptrace.DNSStartInfo) {
	_, s.dnsSpan = s.tracer.Start(
		s.httpCtx,
		dnsSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(semconv.NetHostName(info.Host)),
	)
}

func (s *requestTrace) onDNSDone(info httptrace.DNSDoneInfo) {
	if s.dnsSpan == nil {
		return
	}
	var addrs []string
	for _, addr := range info.Addrs {
		addrs = append(addrs, addr.String())
	}
	s.dnsSpan.SetAttributes(attrDNSAddresses.String(strings.Join(addrs, ";")))
	endSpan(s.dnsSpan, info.Err)
	s.dnsSpan = nil
}

func (s *requestTrace) onGetConn(host string) {
	_, s.getConnSpan = s.tracer.Start(
		s.httpCtx,
		getConnSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(semconv.NetHostName(host)),
	)
}

func (s *requestTrace) onGotConn(info httptrace.GotConnInfo) {
	if s.getConnSpan == nil {
		return
	}
	s.getConnSpan.SetAttributes(
		attrRemoteAddr.String(info.Conn.RemoteAddr().String()),
		attrLocalAddr.String(info.Conn.LocalAddr().String()),
		attrConnReused.Bool(info.Reused),
		attrConnWasIdle.Bool(info.WasIdle),
	)
	if info.WasIdle {
		s.getConnSpan.SetAttributes(attrConnIdleTime.String(info.IdleTime.String()))
	}
	s.getConnSpan.End()
	s.getConnSpan = nil
}

func (s *requestTrace) onConnectStart(network, addr string) {
	_, s.connectSpan = s.tracer.Start(
		s.httpCtx,
		connectSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attrConnNetwork.String(network), attrConnRemoteAddr.String(addr)),
	)
}

func (s *requestTrace) onConnectDone(network, addr string, err error) {
	if s.connectSpan != nil {
		endSpan(s.connectSpan, err)
		s.connectSpan = nil
	}
}

// The TLS spans are not reported by a bare http2.Transport,
// it drives the handshake itself, without the httptrace hooks.
func (s *requestTrace) onTLSStart() {
	_, s.tlsSpan = s.tracer.Start(s.httpCtx, tlsSpanName, otelTrace.WithSpanKind(otelTrace.SpanKindClient))
}

func (s *requestTrace) onTLSDone(_ tls.ConnectionState, err error) {
	if s.tlsSpan != nil {
		endSpan(s.tlsSpan, err)
		s.tlsSpan = nil
	}
}

func (s *requestTrace) onWroteHeaderField(_ string, _ []string) {
	// The first header field opens the headers span
	if s.headersSpan == nil {
		_, s.headersSpan = s.tracer.Start(s.httpCtx, headersSpanName, otelTrace.WithSpanKind(otelTrace.SpanKindClient))
	}
}

func (s *requestTrace) onWroteHeaders() {
	if s.headersSpan != nil {
		s.headersSpan.End()
		s.headersSpan = nil
	}
	_, s.sendSpan = s.tracer.Start(s.httpCtx, sendSpanName, otelTrace.WithSpanKind(otelTrace.SpanKindClient))
}

func (s *requestTrace) onWroteRequest(info httptrace.WroteRequestInfo) {
	if s.sendSpan != nil {
		endSpan(s.sendSpan, info.Err)
		s.sendSpan = nil
	}
}

func (s *requestTrace) onFirstResponseByte() {
	_, s.receiveSpan = s.tracer.Start(s.httpCtx, receiveSpanName, otelTrace.WithSpanKind(otelTrace.SpanKindClient))
}

func endSpan(span otelTrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
