package trace_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client/trace"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

func TestLogTracer(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "OK1"))

	// Logs for trace testing
	var logs strings.Builder

	// Create client
	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		AndTrace(trace.LogTracer(&logs))

	// Test
	str := ""
	_, result, err := request.NewHTTPRequest(c).WithGet("https://example.com").WithResult(&str).Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK1", *result.(*string))
	_, result, err = request.NewHTTPRequest(c).WithGet("https://example.com").WithResult(&str).Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "OK1", *result.(*string))

	// One started/done/processed triplet per request, requests are numbered.
	// The mocked transport opens no connection, so there is no "connection open" event.
	expected := []*regexp.Regexp{
		regexp.MustCompile(`^\{"level":"info","request_id":1,"method":"GET","url":"https://example\.com","message":"request started"\}$`),
		regexp.MustCompile(`^\{"level":"info","request_id":1,"method":"GET","url":"https://example\.com","status":200,"elapsed":\d+(\.\d+)?,"message":"request done"\}$`),
		regexp.MustCompile(`^\{"level":"info","request_id":1,"method":"GET","url":"https://example\.com","parse_time":\d+(\.\d+)?,"message":"request processed"\}$`),
		regexp.MustCompile(`^\{"level":"info","request_id":2,"method":"GET","url":"https://example\.com","message":"request started"\}$`),
		regexp.MustCompile(`^\{"level":"info","request_id":2,"method":"GET","url":"https://example\.com","status":200,"elapsed":\d+(\.\d+)?,"message":"request done"\}$`),
		regexp.MustCompile(`^\{"level":"info","request_id":2,"method":"GET","url":"https://example\.com","parse_time":\d+(\.\d+)?,"message":"request processed"\}$`),
	}
	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, len(expected))
	for i, pattern := range expected {
		assert.Regexp(t, pattern, lines[i])
	}
}

func TestLogTracer_Error(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "not found"))

	var logs strings.Builder
	ctx := context.Background()
	c := client.New().
		WithTransport(transport).
		AndTrace(trace.LogTracer(&logs))

	err := request.NewHTTPRequest(c).WithGet("https://example.com").SendOrErr(ctx)
	assert.Error(t, err)

	// The response arrived, so "request done" reports the status,
	// the generic HTTP error is logged by the "request processed" event.
	assert.Contains(t, logs.String(), `"status":404`)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `failed: 404 Not Found`)
	assert.Contains(t, logs.String(), `"message":"request processed"`)
}
