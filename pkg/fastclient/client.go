// Package fastclient provides a request.Sender implementation based on the fasthttp package.
//
// It is a drop-in alternative to the default client package:
// the same immutable request definitions from the request package can be sent
// through either implementation, which makes it easy to compare them side by side,
// see the bench package.
//
// Low-level httptrace hooks and OpenTelemetry spans for connection internals are
// not available, fasthttp has no httptrace support. The high-level trace hooks
// (request start/done, body parse, request processed) work the same way as in the
// client package.
package fastclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/counter"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

const userAgent = "nethttp-vs-fasthttp"

// Pool geometry and timeouts, kept in sync with the client package defaults
// so the bench package compares the two HTTP stacks with equal pools.
const (
	dialTimeout         = 3 * time.Second
	maxIdleConnDuration = 10 * time.Second
	maxConnsPerHost     = 32
)

// ErrClientClosed is returned by the Send method after the client has been closed.
var ErrClientClosed = errors.New("http client is closed")

// Client is an implementation of the request.Sender interface by the fasthttp.Client.
type Client struct {
	client  *fasthttp.Client
	baseURL *url.URL
	header  http.Header
	timeout time.Duration
	tracers []trace.Factory
	closed  *atomic.Bool
}

// New creates new HTTP Client backed by fasthttp.
func New() Client {
	c := Client{
		client: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     maxConnsPerHost,
			MaxIdleConnDuration: maxIdleConnDuration,
			Dial: func(addr string) (conn net.Conn, err error) {
				return fasthttp.DialTimeout(addr, dialTimeout)
			},
		},
		header: make(http.Header),
		closed: &atomic.Bool{},
	}
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

// Close releases the pooled connections.
// Only the first call releases the pool, a later Close is a no-op,
// so the release happens exactly once even if Close is deferred on several paths.
// The Send method must not be used after Close, it returns ErrClientClosed.
func (c Client) Close() error {
	if c.closed == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.client.CloseIdleConnections()
	return nil
}

// Send method sends HTTP request and returns HTTP response, it implements the request.Sender interface.
func (c Client) Send(ctx context.Context, reqDef request.HTTPRequest) (res *http.Response, result any, err error) {
	// Method cannot be called on an empty value
	if c.client == nil {
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

	// The request definition is mirrored to a native http.Request,
	// trace hooks and response mapping work with the native types.
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	freq := fasthttp.AcquireRequest()
	fres := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(freq)
	defer fasthttp.ReleaseResponse(fres)

	freq.Header.SetMethod(method)
	freq.SetRequestURI(reqURL.String())

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
	for k, values := range req.Header {
		// The first value replaces a fasthttp default, e.g. the User-Agent
		// derived from the fasthttp.Client name, the rest are added,
		// so multi-valued headers keep all their values.
		for i, v := range values {
			if i == 0 {
				freq.Header.Set(k, v)
			} else {
				freq.Header.Add(k, v)
			}
		}
	}

	// Body
	if reqDef.RequestBody() != nil {
		bodyReader, err := request.BodyReader(reqDef)
		if err != nil {
			return nil, nil, fmt.Errorf(`request %s "%s": cannot prepare request body: %w`, method, reqURL.String(), err)
		}
		bodyBytes, err := io.ReadAll(bodyReader)
		_ = bodyReader.Close()
		if err != nil {
			return nil, nil, fmt.Errorf(`request %s "%s": cannot read request body: %w`, method, reqURL.String(), err)
		}
		freq.SetBody(bodyBytes)
	}

	// Trace request start
	if tc != nil && tc.HTTPRequestStart != nil {
		tc.HTTPRequestStart(req)
	}

	// Send request, fasthttp has no context support, so the context
	// is checked before the request and mapped to a deadline, if any.
	if err := ctx.Err(); err != nil {
		sendErr := sendError(method, reqURL, err)
		if tc != nil && tc.HTTPRequestDone != nil {
			tc.HTTPRequestDone(nil, sendErr)
		}
		return nil, nil, sendErr
	}
	deadline, hasDeadline := ctx.Deadline()
	if c.timeout > 0 {
		if t := time.Now().Add(c.timeout); !hasDeadline || t.Before(deadline) {
			deadline, hasDeadline = t, true
		}
	}
	startedAt := time.Now()
	if hasDeadline {
		err = c.client.DoDeadline(freq, fres, deadline)
	} else {
		err = c.client.Do(freq, fres)
	}

	// Handle send error
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("timeout after %s", time.Since(startedAt))
		}
		sendErr := sendError(method, reqURL, err)
		if tc != nil && tc.HTTPRequestDone != nil {
			tc.HTTPRequestDone(nil, sendErr)
		}
		return nil, nil, sendErr
	}

	// Convert the response to the native type,
	// the body must be copied out, the fasthttp response is pooled.
	res = toNativeResponse(req, fres)

	// Trace request done
	if tc != nil && tc.HTTPRequestDone != nil {
		tc.HTTPRequestDone(res, nil)
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

func sendError(method string, reqURL *url.URL, err error) error {
	return fmt.Errorf(`request %s "%s" failed: %w`, method, reqURL.String(), err)
}

func toNativeResponse(req *http.Request, fres *fasthttp.Response) *http.Response {
	statusCode := fres.StatusCode()
	header := make(http.Header)
	fres.Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	body := append([]byte(nil), fres.Body()...)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
