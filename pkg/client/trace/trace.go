// Package trace defines hooks observing the lifecycle of a sent request.
//
// ClientTrace extends httptrace.ClientTrace with hooks above the transport
// level: request start/done, body read, body parse and request processed.
// A Factory is registered in a client by its AndTrace method, hooks from all
// registered factories are composed and run in registration order.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// Factory creates the hooks for one request definition.
// It may derive a new context, e.g. to carry a telemetry span.
type Factory func(ctx context.Context, request request.HTTPRequest) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks invoked while a request is sent.
// Any hook may be nil. The embedded httptrace.ClientTrace hooks fire only
// for the net/http sender, fasthttp exposes no transport internals.
type ClientTrace struct {
	httptrace.ClientTrace
	// HTTPRequestStart is invoked when a request goes to the wire, including redirects.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is invoked when the response headers arrive or the send fails.
	HTTPRequestDone func(response *http.Response, err error)
	// BodyRead is invoked when the response body is closed,
	// with the number of bytes read from it.
	BodyRead func(bytes int64, err error)
	// BodyParseStart is invoked before the body is mapped to the Result/Error targets.
	BodyParseStart func(response *http.Response)
	// BodyParseDone is invoked when the mapping is finished.
	BodyParseDone func(response *http.Response, result any, err error, parseError error)
	// RequestProcessed is invoked when the sender is completely done with the request.
	RequestProcessed func(result any, err error)
}

// Compose merges the hooks of old into t, so that for every hook the old
// one runs first and the one of t second. The embedded httptrace hooks are
// merged the same way, a log tracer and a telemetry tracer can both watch
// connection events of one request.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}

	t.HTTPRequestStart = chain1(old.HTTPRequestStart, t.HTTPRequestStart)
	t.HTTPRequestDone = chain2(old.HTTPRequestDone, t.HTTPRequestDone)
	t.BodyRead = chain2(old.BodyRead, t.BodyRead)
	t.BodyParseStart = chain1(old.BodyParseStart, t.BodyParseStart)
	t.BodyParseDone = chain4(old.BodyParseDone, t.BodyParseDone)
	t.RequestProcessed = chain2(old.RequestProcessed, t.RequestProcessed)

	composeFuncFields(&t.ClientTrace, &old.ClientTrace)
}

func chain1[A any](prev, next func(A)) func(A) {
	switch {
	case prev == nil:
		return next
	case next == nil:
		return prev
	default:
		return func(a A) { prev(a); next(a) }
	}
}

func chain2[A, B any](prev, next func(A, B)) func(A, B) {
	switch {
	case prev == nil:
		return next
	case next == nil:
		return prev
	default:
		return func(a A, b B) { prev(a, b); next(a, b) }
	}
}

func chain4[A, B, C, D any](prev, next func(A, B, C, D)) func(A, B, C, D) {
	switch {
	case prev == nil:
		return next
	case next == nil:
		return prev
	default:
		return func(a A, b B, c C, d D) { prev(a, b, c, d); next(a, b, c, d) }
	}
}

// composeFuncFields merges the function fields of two structs of the same
// type, old before new. The httptrace.ClientTrace hook set is too large to
// chain by hand, and the stdlib keeps its own compose private.
func composeFuncFields[T any](target, old *T) {
	tv := reflect.ValueOf(target).Elem()
	ov := reflect.ValueOf(old).Elem()
	for i := 0; i < tv.NumField(); i++ {
		tf := tv.Field(i)
		if tf.Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}
		next := reflect.ValueOf(tf.Interface()) // copy, the closure below must not call itself
		tf.Set(reflect.MakeFunc(tf.Type(), func(args []reflect.Value) []reflect.Value {
			of.Call(args)
			return next.Call(args)
		}))
	}
}
