package request_test

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

func TestBatch(t *testing.T) {
	t.Parallel()
	c, transport := client.NewMockedClient()
	c = c.WithBaseURL("https://example.com")
	transport.RegisterResponder("GET", `=~^https://example.com/`, httpmock.NewStringResponder(200, "OK"))

	// Create batch
	g := request.NewBatch(context.Background())

	// Add requests
	g.Add(request.NewHTTPRequest(c).WithGet("foo1"))
	g.Add(request.NewHTTPRequest(c).WithGet("foo2"))
	g.Add(request.NewHTTPRequest(c).
		WithGet("foo3").
		WithOnSuccess(func(ctx context.Context, response request.HTTPResponse) error {
			g.Add(request.NewHTTPRequest(c).WithGet("foo5"))
			return nil
		}).
		WithOnError(func(ctx context.Context, response request.HTTPResponse, err error) error {
			g.Add(request.NewHTTPRequest(c).WithGet("err"))
			return err
		}),
	)
	g.Add(request.NewHTTPRequest(c).
		WithGet("foo4").
		WithOnSuccess(func(ctx context.Context, response request.HTTPResponse) error {
			g.Add(request.NewHTTPRequest(c).WithGet("foo6"))
			return nil
		}),
	)

	// No requests have been sent yet
	assert.Equal(t, 0, transport.GetTotalCallCount())

	// Run and wait
	assert.NoError(t, g.RunAndWait())

	// All requests have been sent
	assert.Equal(t, map[string]int{
		"GET =~^https://example.com/":  6,
		"GET https://example.com/foo1": 1,
		"GET https://example.com/foo2": 1,
		"GET https://example.com/foo3": 1,
		"GET https://example.com/foo4": 1,
		"GET https://example.com/foo5": 1,
		"GET https://example.com/foo6": 1,
	}, transport.GetCallCountInfo())
}

func TestBatch_HandleError(t *testing.T) {
	t.Parallel()
	c, transport := client.NewMockedClient()
	c = c.WithBaseURL("https://example.com")
	transport.RegisterResponder("GET", `=~^https://example.com/`, httpmock.NewStringResponder(401, "Forbidden"))

	// Create batch
	g := request.NewBatch(context.Background())

	// Add requests
	requestsCount := 100
	assert.Greater(t, requestsCount, request.BatchConcurrencyLimit)
	for i := 1; i <= requestsCount; i++ {
		g.Add(request.NewHTTPRequest(c).WithGet("foo"))
	}

	// No requests have been sent yet
	assert.Equal(t, 0, transport.GetTotalCallCount())

	// Run and wait, first error is returned
	err := g.RunAndWait()
	assert.Error(t, err)
	assert.Equal(t, `request GET "https://example.com/foo" failed: 401 Unauthorized`, err.Error())

	// NOT all requests have been sent
	// Sending stops when the first error occurs
	assert.Less(t, transport.GetTotalCallCount(), 100)
}

func TestBatch_Empty(t *testing.T) {
	t.Parallel()

	// An empty batch completes immediately without an error
	g := request.NewBatch(context.Background())
	assert.NoError(t, g.RunAndWait())
}

func TestBatch_CustomLimit(t *testing.T) {
	t.Parallel()
	c, transport := client.NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "OK"))

	// All requests of the batch can run concurrently
	requestsCount := 50
	g := request.NewBatchWithLimit(context.Background(), int64(requestsCount))
	for i := 0; i < requestsCount; i++ {
		g.Add(request.NewHTTPRequest(c).WithGet("https://example.com"))
	}

	assert.NoError(t, g.RunAndWait())
	assert.Equal(t, requestsCount, transport.GetTotalCallCount())
}
