package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// HTTPRequest is an immutable request definition bound to a Sender.
//
// Every With*/And* method returns a modified copy, the receiver is never
// changed, so a prepared definition can be branched and shared freely,
// the bench package for example adds one GET definition to a batch N times.
type HTTPRequest interface {
	reqDefView
	// WithGet is a shortcut for WithMethod(http.MethodGet).WithURL(url).
	WithGet(url string) HTTPRequest
	// WithPost is a shortcut for WithMethod(http.MethodPost).WithURL(url).
	WithPost(url string) HTTPRequest
	// WithPut is a shortcut for WithMethod(http.MethodPut).WithURL(url).
	WithPut(url string) HTTPRequest
	// WithDelete is a shortcut for WithMethod(http.MethodDelete).WithURL(url).
	WithDelete(url string) HTTPRequest
	// WithMethod sets the HTTP method.
	WithMethod(method string) HTTPRequest
	// WithBaseURL sets the base URL the target URL is resolved against.
	WithBaseURL(baseURL string) HTTPRequest
	// WithURL sets the target URL, it may be relative to the base URL.
	WithURL(url string) HTTPRequest
	// AndHeader adds one request header.
	AndHeader(header string, value string) HTTPRequest
	// AndQueryParam adds one query parameter.
	AndQueryParam(param, value string) HTTPRequest
	// WithQueryParams replaces all query parameters.
	WithQueryParams(params map[string]string) HTTPRequest
	// AndPathParam adds one value for a {placeholder} in the URL path.
	AndPathParam(param, value string) HTTPRequest
	// WithPathParams replaces all path placeholder values.
	WithPathParams(params map[string]string) HTTPRequest
	// WithFormBody sets the body to the encoded form
	// and the Content-Type header to "application/x-www-form-urlencoded".
	WithFormBody(form map[string]string) HTTPRequest
	// WithJSONBody sets the body to the value marshalled as JSON
	// and the Content-Type header to "application/json".
	WithJSONBody(body any) HTTPRequest
	// WithBody sets the raw request body, see RequestBody for supported types.
	WithBody(body any) HTTPRequest
	// WithContentType sets the Content-Type header.
	WithContentType(contentType string) HTTPRequest
	// WithError sets the target the response body is mapped to when the status is >= 400.
	WithError(err error) HTTPRequest
	// WithResult sets the target the response body is mapped to on success.
	WithResult(result any) HTTPRequest
	// WithOnComplete adds a listener invoked when the request finishes.
	WithOnComplete(func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest
	// WithOnSuccess adds a listener invoked when the request finishes with a 2xx status.
	WithOnSuccess(func(ctx context.Context, response HTTPResponse) error) HTTPRequest
	// WithOnError adds a listener invoked when the request finishes with an error.
	WithOnError(func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest
	// Send sends the definition by the bound sender.
	Send(ctx context.Context) (response HTTPResponse, result any, err error)
	SendOrErr(ctx context.Context) error
}

// reqDefView is the read-only side of a definition,
// it is what the Sender implementations and the HTTPResponse see.
type reqDefView interface {
	// Method returns the HTTP method, it panics if the method is not set.
	Method() string
	// URL returns the target URL resolved against the base URL,
	// it panics if the URL is not set.
	URL() *url.URL
	// RequestHeader returns the request headers.
	RequestHeader() http.Header
	// QueryParams returns the query parameters.
	QueryParams() url.Values
	// PathParams returns values for the {placeholder} parts of the URL path.
	PathParams() map[string]string
	// RequestBody returns the body definition.
	// Supported types are string, []byte, io.ReadSeeker, io.ReadSeekCloser
	// and any JSON-marshallable value if the content type is JSON.
	RequestBody() any
	// ErrorDef returns the error mapping target, see WithError.
	ErrorDef() error
	// ResultDef returns the result mapping target, see WithResult.
	ResultDef() any
}

// NewHTTPRequest creates an empty immutable definition bound to the sender.
func NewHTTPRequest(sender Sender) HTTPRequest {
	return reqDef{sender: sender, header: make(http.Header)}
}

// reqDef is a value type, the With* methods modify and return a copy.
// Maps and slices are cloned before a write, copies never share them.
type reqDef struct {
	sender    Sender
	method    string
	base      *url.URL
	target    *url.URL
	header    http.Header
	query     url.Values
	path      map[string]string
	body      any
	result    any
	errValue  error
	listeners []func(ctx context.Context, response HTTPResponse, err error) error
}

func (r reqDef) Method() string {
	if r.method == "" {
		panic(fmt.Errorf("request method is not set"))
	}
	return r.method
}

func (r reqDef) URL() *url.URL {
	if r.target == nil {
		panic(fmt.Errorf("request url is not set"))
	}
	out := *r.target
	if r.base != nil && !out.IsAbs() {
		out.Path = strings.TrimLeft(out.Path, "/")
		return r.base.ResolveReference(&out)
	}
	return &out
}

func (r reqDef) RequestHeader() http.Header {
	return r.header
}

func (r reqDef) QueryParams() url.Values {
	return r.query
}

func (r reqDef) PathParams() map[string]string {
	return r.path
}

func (r reqDef) RequestBody() any {
	return r.body
}

func (r reqDef) ErrorDef() error {
	return r.errValue
}

func (r reqDef) ResultDef() any {
	return r.result
}

func (r reqDef) WithGet(url string) HTTPRequest {
	return r.WithMethod(http.MethodGet).WithURL(url)
}

func (r reqDef) WithPost(url string) HTTPRequest {
	return r.WithMethod(http.MethodPost).WithURL(url)
}

func (r reqDef) WithPut(url string) HTTPRequest {
	return r.WithMethod(http.MethodPut).WithURL(url)
}

func (r reqDef) WithDelete(url string) HTTPRequest {
	return r.WithMethod(http.MethodDelete).WithURL(url)
}

func (r reqDef) WithMethod(method string) HTTPRequest {
	r.method = method
	return r
}

func (r reqDef) WithURL(urlStr string) HTTPRequest {
	v, err := url.Parse(urlStr)
	if err != nil {
		panic(fmt.Errorf("invalid url %q: %w", urlStr, err))
	}
	r.target = v
	return r
}

func (r reqDef) WithBaseURL(baseURL string) HTTPRequest {
	v, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		panic(fmt.Errorf("invalid base url %q: %w", baseURL, err))
	}
	// The trailing slash makes ResolveReference treat the whole base path as a directory.
	v.Path = strings.TrimRight(v.Path, "/") + "/"
	r.base = v
	return r
}

func (r reqDef) AndHeader(header string, value string) HTTPRequest {
	r.header = r.header.Clone()
	r.header.Set(header, value)
	return r
}

func (r reqDef) AndQueryParam(key, value string) HTTPRequest {
	r.query = cloneURLValues(r.query)
	r.query.Set(key, value)
	return r
}

func (r reqDef) WithQueryParams(params map[string]string) HTTPRequest {
	r.query = make(url.Values)
	for k, v := range params {
		r.query.Set(k, v)
	}
	return r
}

func (r reqDef) AndPathParam(key, value string) HTTPRequest {
	r.path = cloneParams(r.path)
	r.path[key] = value
	return r
}

func (r reqDef) WithPathParams(params map[string]string) HTTPRequest {
	r.path = make(map[string]string)
	for k, v := range params {
		r.path[k] = v
	}
	return r
}

func (r reqDef) WithFormBody(form map[string]string) HTTPRequest {
	data := make(url.Values)
	for k, v := range form {
		data.Set(k, v)
	}
	r.body = data.Encode()
	return r.AndHeader("Content-Type", ContentTypeForm)
}

func (r reqDef) WithJSONBody(body any) HTTPRequest {
	r.body = body
	return r.AndHeader("Content-Type", ContentTypeJSON)
}

func (r reqDef) WithBody(body any) HTTPRequest {
	r.body = body
	return r
}

func (r reqDef) WithContentType(contentType string) HTTPRequest {
	return r.AndHeader("Content-Type", contentType)
}

func (r reqDef) WithError(err error) HTTPRequest {
	if reflect.ValueOf(err).Kind() != reflect.Ptr {
		panic(fmt.Errorf("the error target must be a pointer"))
	}
	r.errValue = err
	return r
}

func (r reqDef) WithResult(result any) HTTPRequest {
	_, isWriter := result.(io.Writer)
	_, isWriteCloser := result.(io.WriteCloser)
	if !isWriter && !isWriteCloser && reflect.ValueOf(result).Kind() != reflect.Ptr {
		panic(fmt.Errorf("the result target must be a pointer or a writer"))
	}
	r.result = result
	return r
}

func (r reqDef) WithOnComplete(fn func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest {
	r.listeners = appendListener(r.listeners, fn)
	return r
}

func (r reqDef) WithOnSuccess(fn func(ctx context.Context, response HTTPResponse) error) HTTPRequest {
	r.listeners = appendListener(r.listeners, func(ctx context.Context, response HTTPResponse, err error) error {
		if err == nil {
			return fn(ctx, response)
		}
		return err
	})
	return r
}

func (r reqDef) WithOnError(fn func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest {
	r.listeners = appendListener(r.listeners, func(ctx context.Context, response HTTPResponse, err error) error {
		if err != nil {
			return fn(ctx, response, err)
		}
		return err
	})
	return r
}

func (r reqDef) Send(ctx context.Context) (HTTPResponse, any, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	rawResponse, result, err := r.sender.Send(ctx, r)
	out := &httpResponse{reqDef: r, raw: rawResponse, result: result, err: err}

	for _, fn := range r.listeners {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		out.err = fn(ctx, out, out.err)
	}

	return out, out.result, out.err
}

func (r reqDef) SendOrErr(ctx context.Context) error {
	_, _, err := r.Send(ctx)
	return err
}

type listener = func(ctx context.Context, response HTTPResponse, err error) error

// appendListener clips the slice first, so two copies branched from the same
// definition never write to the same backing array.
func appendListener(listeners []listener, fn listener) []listener {
	return append(listeners[:len(listeners):len(listeners)], fn)
}
