package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/semconv/v1.17.0/httpconv"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

const redactedValue = "****"

// attrSet collects the attributes of one request as they become known:
// the definition when tracing starts, the native request when it goes to
// the wire and the response when it arrives.
type attrSet struct {
	cfg config
	// reqURL is the resolved URL of the definition
	reqURL *url.URL
	// definition attributes, for metrics and spans
	definition []attribute.KeyValue
	// definitionDetail attributes (headers, params), for spans only
	definitionDetail []attribute.KeyValue
	// httpRequest semconv attributes of the wire request, for metrics and spans
	httpRequest []attribute.KeyValue
	// httpRequestDetail request header attributes, for spans only
	httpRequestDetail []attribute.KeyValue
	// httpResponse semconv attributes, for metrics and spans
	httpResponse []attribute.KeyValue
	// httpResponseDetail response header attributes, for spans only
	httpResponseDetail []attribute.KeyValue
	// outcome flags of the finished request, for metrics
	outcome []attribute.KeyValue
}

func newAttrSet(cfg config, reqDef request.HTTPRequest) *attrSet {
	a := &attrSet{cfg: cfg, reqURL: reqDef.URL()}

	var resultType string
	if v := reflect.TypeOf(reqDef.ResultDef()); v != nil {
		resultType = v.String()
	}
	a.definition = []attribute.KeyValue{
		attribute.String("request.method", reqDef.Method()),
		attribute.String("request.result_type", resultType),
		attribute.String("request.url.full", pathUnescape(a.reqURL.String())),
		attribute.String("request.url.path", pathUnescape(a.reqURL.Path)),
		attribute.String("request.url.host", a.reqURL.Host),
	}

	a.definitionDetail = a.headerAttrs("request.header.", reqDef.RequestHeader())
	for k, v := range reqDef.QueryParams() {
		a.definitionDetail = append(a.definitionDetail, attribute.String("request.query."+k, strings.Join(v, ";")))
	}
	for k, v := range reqDef.PathParams() {
		a.definitionDetail = append(a.definitionDetail, attribute.String("request.path."+k, v))
	}

	return a
}

// SetFromRequest fills the wire request attributes, it is called per send,
// a redirect overwrites the values of the previous hop.
func (a *attrSet) SetFromRequest(req *http.Request) {
	if req == nil {
		a.httpRequest, a.httpRequestDetail = nil, nil
		return
	}
	a.httpRequest = httpconv.ClientRequest(req)
	a.httpRequestDetail = a.headerAttrs("http.request.header.", req.Header, "user-agent") // the user agent is covered by httpconv
}

// SetFromResponse fills the response attributes and the outcome flags.
func (a *attrSet) SetFromResponse(res *http.Response, err error) {
	if res == nil {
		a.httpResponse, a.httpResponseDetail = nil, nil
	} else {
		a.httpResponse = httpconv.ClientResponse(res)
		a.httpResponseDetail = a.headerAttrs("http.response.header.", res.Header)
	}

	var netErr net.Error
	errors.As(err, &netErr)
	a.outcome = []attribute.KeyValue{
		attribute.Bool("http.response.is_success", err == nil && res != nil && res.StatusCode < http.StatusBadRequest),
		attribute.Bool("http.response.error", err != nil),
		attribute.Bool("http.response.timeout", netErr != nil && netErr.Timeout()),
		attribute.Bool("http.response.cancelled", errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)),
	}
}

// headerAttrs converts headers to sorted attributes,
// values of credential headers are masked, see config.redactedHeaders.
func (a *attrSet) headerAttrs(prefix string, header http.Header, skip ...string) []attribute.KeyValue {
	var out []attribute.KeyValue
	for k, values := range header {
		k = strings.ToLower(k)
		if slices.Contains(skip, k) {
			continue
		}
		value := strings.Join(values, ";")
		if _, found := a.cfg.redactedHeaders[k]; found {
			value = redactedValue
		}
		out = append(out, attribute.String(prefix+k, value))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}

func pathUnescape(in string) string {
	out, err := url.PathUnescape(in)
	if err != nil {
		return in
	}
	return out
}
