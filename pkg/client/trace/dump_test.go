package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

func TestDumpTracer(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, `{"foo":"bar"}`))

	// Dump output
	var out strings.Builder

	// Create client
	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		AndTrace(trace.DumpTracer(&out))

	// Test
	str := ""
	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").WithResult(&str).Send(ctx)
	assert.NoError(t, err)

	// The dump does not consume the body, the result is still mapped
	assert.Equal(t, `{"foo":"bar"}`, str)

	dump := out.String()
	assert.Contains(t, dump, "=== HTTP DUMP")
	assert.Contains(t, dump, "GET / HTTP/1.1")
	assert.Contains(t, dump, "Host: example.com")
	assert.Contains(t, dump, `{"foo":"bar"}`)
	assert.Contains(t, dump, "=== HTTP DUMP END")
	assert.Contains(t, dump, "=== HTTP REQUEST PROCESSED")
}
