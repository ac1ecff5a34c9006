package request

import "net/http"

// HTTPResponse is the outcome of a sent definition.
// It exposes the definition getters, the raw response and the mapped Result.
type HTTPResponse interface {
	reqDefView
	// ResponseHeader returns the response headers.
	ResponseHeader() http.Header
	// StatusCode returns the HTTP status code.
	StatusCode() int
	// RawRequest returns the native request, nil when the send failed early.
	RawRequest() *http.Request
	// RawResponse returns the native response.
	RawResponse() *http.Response
	// IsSuccess reports a 2xx status.
	IsSuccess() bool
	// IsError reports a status >= 400.
	IsError() bool
	// Result returns the value mapped by the ResultDef target, or nil.
	Result() any
	// Error returns the mapped error, a generic HTTP status error,
	// or a network error from the sender.
	Error() error
}

type httpResponse struct {
	reqDef
	raw    *http.Response
	result any
	err    error
}

func (r httpResponse) ResponseHeader() http.Header {
	return r.raw.Header
}

func (r httpResponse) StatusCode() int {
	return r.raw.StatusCode
}

func (r httpResponse) RawRequest() *http.Request {
	if r.raw != nil {
		return r.raw.Request
	}
	return nil
}

func (r httpResponse) RawResponse() *http.Response {
	return r.raw
}

func (r httpResponse) IsSuccess() bool {
	code := r.StatusCode()
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func (r httpResponse) IsError() bool {
	return r.StatusCode() >= http.StatusBadRequest
}

func (r httpResponse) Result() any {
	return r.result
}

func (r httpResponse) Error() error {
	return r.err
}
