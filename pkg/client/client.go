// Package client provides the default request.Sender implementation based on the standard net/http package.
//
// Use request.NewHTTPRequest function to define immutable HTTP requests, see the request package.
//
// Client is a configurable value type, see the With* methods.
// It contains tracing/telemetry support and must be released by the Close method
// when no more requests will be sent, see the fastclient package for the alternative implementation.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	otelMetric "go.opentelemetry.io/otel/metric"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/counter"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace/otel"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

const userAgent = "nethttp-vs-fasthttp"

// ErrClientClosed is returned by the Send method after the client has been closed.
var ErrClientClosed = errors.New("http client is closed")

// Client is a default and configurable implementation of the request.Sender interface by Go native http.Client.
// It supports tracing/telemetry.
type Client struct {
	transport http.RoundTripper
	baseURL   *url.URL
	header    http.Header
	timeout   time.Duration
	tracers   []trace.Factory
	closed    *atomic.Bool
}

// New creates new HTTP Client.
func New() Client {
	c := Client{transport: DefaultTransport(), header: make(http.Header), closed: &atomic.Bool{}}
	c.header.Set("User-Agent", userAgent)
	c.header.Set("Accept-Encoding", "gzip, br")
	return c
}

// WithBaseURL returns a clone of the Client with base url set.
func (c Client) WithBaseURL(baseURLStr string) Client {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		panic(fmt.Errorf(`base url "%s" is not valid: %w`, baseURLStr, err))
	}
	c.baseURL = baseURL
	return c
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	c.header = c.header.Clone()
	c.header.Set("User-Agent", v)
	return c
}

// WithHeader returns a clone of the Client with common header set.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithHeaders returns a clone of the Client with common headers set.
func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

// WithTransport returns a clone of the Client with a HTTP transport set.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil || transport == http.RoundTripper(nil) {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.transport = transport
	return c
}

// WithTotalTimeout returns a clone of the Client with a total request timeout set.
// There is no timeout by default, a hung request blocks until its context is cancelled.
func (c Client) WithTotalTimeout(v time.Duration) Client {
	c.timeout = v
	return c
}

// AndTrace returns a clone of the Client with an additional trace hooks factory.
// Hooks from all registered factories are composed.
func (c Client) AndTrace(fn trace.Factory) Client {
	c.tracers = append(c.tracers[:len(c.tracers):len(c.tracers)], fn)
	return c
}

// WithTelemetry returns a clone of the Client with OpenTelemetry tracing and metrics enabled.
func (c Client) WithTelemetry(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...otel.Option) Client {
	return c.AndTrace(otel.NewTrace(tracerProvider, meterProvider, opts...))
}

// Close releases the pooled connections.
// Only the first call releases the pool, a later Close is a no-op,
// so the release happens exactly once even if Close is deferred on several paths.
// The Send method must not be used after Close, it returns ErrClientClosed.
func (c Client) Close() error {
	if c.closed == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if v, ok := c.transport.(closeIdler); ok {
		v.CloseIdleConnections()
	}
	return nil
}

type closeIdler interface {
	CloseIdleConnections()
}

// Send method sends HTTP request and returns HTTP response, it implements the request.Sender interface.
func (c Client) Send(ctx context.Context, reqDef request.HTTPRequest) (res *http.Response, result any, err error) {
	// Method cannot be called on an empty value
	if c.transport == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	// If method or url is not set, panic occurs. So we get these values first.
	method := reqDef.Method()
	if c.closed.Load() {
		return nil, nil, fmt.Errorf(`cannot send request %s "%s": %w`, method, reqDef.URL().String(), ErrClientClosed)
	}

	// Init trace
	var tc *trace.ClientTrace
	for _, fn := range c.tracers {
		old := tc
		var created *trace.ClientTrace
		ctx, created = fn(ctx, reqDef)
		if created != nil {
			created.Compose(old)
			tc = created
		}
	}
	if tc != nil {
		ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)
	}

	// Trace request processed
	if tc != nil && tc.RequestProcessed != nil {
		defer func() {
			tc.RequestProcessed(result, err)
		}()
	}

	// Resolve path/query parameters and the base URL
	reqURL, err := request.ResolveURL(c.baseURL, reqDef)
	if err != nil {
		return nil, nil, err
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	// Global headers
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	// Request headers
	for k, values := range reqDef.RequestHeader() {
		req.Header.Del(k) // clear global values
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	// Body
	if reqDef.RequestBody() != nil {
		// GetBody factory is used for requests when a redirect requires reading the body more than once.
		req.GetBody = func() (io.ReadCloser, error) {
			if body, err := request.BodyReader(reqDef); err == nil {
				return body, nil
			} else {
				return nil, fmt.Errorf(`request %s "%s": cannot prepare request body: %w`, req.Method, req.URL.String(), err)
			}
		}
		req.Body, err = req.GetBody()
		if err != nil {
			return nil, nil, err
		}
	}

	// Setup native client
	nativeClient := http.Client{
		Timeout:   c.timeout,
		Transport: roundTripper{trace: tc, wrapped: c.transport}, // wrapped transport for trace
	}

	// Send request
	startedAt := time.Now()
	res, err = nativeClient.Do(req)

	// Handle send error
	if err != nil {
		return nil, nil, handleSendError(startedAt, c.timeout, req, err)
	}

	// Count bytes read from the response body
	if tc != nil && tc.BodyRead != nil {
		res.Body = counter.NewReadCloser(res.Body, tc.BodyRead)
	}

	// Process body
	if tc != nil && tc.BodyParseStart != nil {
		tc.BodyParseStart(res)
	}
	r, e, unexpectedErr := request.MapResponseBody(reqDef, res)
	if tc != nil && tc.BodyParseDone != nil {
		tc.BodyParseDone(res, r, e, unexpectedErr)
	}
	if unexpectedErr == nil {
		// No unexpected error, set result/error result
		result, err = r, e
	} else {
		// Unexpected error
		err = fmt.Errorf(`cannot process request %s "%s": %w`, req.Method, req.URL.String(), unexpectedErr)
	}

	// Generic HTTP error
	if err == nil && res.StatusCode > 399 {
		return res, nil, fmt.Errorf(`request %s "%s" failed: %d %s`, req.Method, req.URL.String(), res.StatusCode, http.StatusText(res.StatusCode))
	}

	return res, result, err
}

func handleSendError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) error {
	// Timeout
	var netErr net.Error
	if deadline, ok := req.Context().Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		err = urlError(req, fmt.Errorf("timeout after %s", deadline.Sub(startedAt)))
	} else if errors.Is(err, context.Canceled) {
		err = urlError(req, fmt.Errorf("canceled after %s", time.Since(startedAt)))
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		if strings.Contains(err.Error(), "Client.Timeout exceeded") {
			err = urlError(req, fmt.Errorf("timeout after %s", clientTimeout))
		} else {
			err = urlError(req, fmt.Errorf("timeout after %s", time.Since(startedAt)))
		}
	}

	// Url error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
	}

	return err
}

// roundTripper wraps a http.RoundTripper and adds trace functionality.
type roundTripper struct {
	trace   *trace.ClientTrace
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Trace request start
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}

	// Send
	res, err := rt.wrapped.RoundTrip(req)

	// Trace request done
	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}

	return res, err
}

func urlError(req *http.Request, err error) *url.Error {
	return &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
}
