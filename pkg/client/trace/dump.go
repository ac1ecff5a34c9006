package trace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"time"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/decode"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// Bodies longer than dumpBodyLimit are truncated,
// set the HTTP_DUMP_FULL_BODY=true environment variable to dump everything.
const dumpBodyLimit = 4096

// DumpTracer dumps every request and response to the writer, bodies included.
// The output may contain credentials, it is meant for debugging only.
func DumpTracer(wr io.Writer) Factory {
	return func(ctx context.Context, reqDef request.HTTPRequest) (context.Context, *ClientTrace) {
		d := &dumper{wr: wr}

		tc := &ClientTrace{}
		tc.HTTPRequestStart = func(r *http.Request) {
			d.startedAt = time.Now()
			d.method = r.Method
			d.uri = r.URL.RequestURI()
			d.requestDump, _ = httputil.DumpRequestOut(r, true)
		}
		tc.HTTPRequestDone = func(r *http.Response, err error) {
			d.line("=== HTTP DUMP", d.method, d.uri)
			d.body(string(d.requestDump))
			d.line("--- response")
			switch {
			case err != nil:
				d.err = err
				d.line("ERROR:", err)
			case r != nil:
				d.status = r.StatusCode
				d.headersAt = time.Now()
				d.response(r)
			}
			d.line("=== HTTP DUMP END")
		}
		tc.RequestProcessed = func(result any, err error) {
			d.line("=== HTTP REQUEST PROCESSED |", d.method, d.uri, d.status,
				"| ERROR:", d.err, "| HEADERS AT:", d.headersAt.Sub(d.startedAt), "| DONE AT:", time.Since(d.startedAt))
		}
		return ctx, tc
	}
}

type dumper struct {
	wr          io.Writer
	method      string
	uri         string
	status      int
	err         error
	requestDump []byte
	startedAt   time.Time
	headersAt   time.Time
}

func (d *dumper) response(r *http.Response) {
	if headers, err := httputil.DumpResponse(r, false); err == nil {
		d.line(strings.TrimSpace(string(headers)))
	} else {
		d.line("cannot dump response headers:", err)
	}
	if r.Body == nil {
		return
	}

	// The raw body is teed to a buffer and put back, decoding must not
	// consume it, the response is mapped to the result targets later.
	var raw bytes.Buffer
	var decoded strings.Builder
	reader, err := decode.Wrap(io.NopCloser(io.TeeReader(r.Body, &raw)), r.Header.Get("Content-Encoding"))
	if err == nil {
		_, err = io.Copy(&decoded, reader)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw.Bytes()))
	if err != nil {
		d.line("cannot read response body:", err)
		return
	}
	d.line("--- body")
	d.body(decoded.String())
}

func (d *dumper) body(body string) {
	body = strings.TrimSpace(body)
	if len(body) > dumpBodyLimit && os.Getenv("HTTP_DUMP_FULL_BODY") != "true" { //nolint:forbidigo
		d.line(body[:dumpBodyLimit])
		d.line("... truncated, set HTTP_DUMP_FULL_BODY=true for the full output")
		return
	}
	d.line(body)
}

func (d *dumper) line(a ...any) {
	_, _ = fmt.Fprintln(d.wr, a...)
}
