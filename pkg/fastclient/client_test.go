package fastclient_test

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/oxylabs/nethttp-vs-fasthttp/pkg/fastclient"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

type testStruct struct {
	Foo string `json:"foo"`
}

func TestNew(t *testing.T) {
	t.Parallel()
	c := New()
	assert.NotNil(t, c)
}

func TestRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	str := ""
	_, result, err := request.NewHTTPRequest(c).WithGet(srv.URL).WithResult(&str).Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "test", *result.(*string))
}

func TestJsonStructResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foo":"bar"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	resultDef := &testStruct{}
	_, result, err := request.NewHTTPRequest(c).WithGet(srv.URL).WithResult(resultDef).Send(ctx)
	assert.NoError(t, err)
	assert.Same(t, resultDef, result)
	assert.Equal(t, &testStruct{Foo: "bar"}, result)
}

func TestFormBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		assert.NoError(t, req.ParseForm())
		_, _ = w.Write([]byte(req.Form.Get("key")))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	str := ""
	_, _, err := request.NewHTTPRequest(c).
		WithPost(srv.URL).
		WithFormBody(map[string]string{"key": "value"}).
		WithResult(&str).
		Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "value", str)
}

func TestGzipResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		wr := gzip.NewWriter(w)
		_, _ = wr.Write([]byte("hello"))
		_ = wr.Close()
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	str := ""
	_, _, err := request.NewHTTPRequest(c).WithGet(srv.URL).WithResult(&str).Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "hello", str)
}

func TestGenericError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	_, _, err := request.NewHTTPRequest(c).WithGet(srv.URL).Send(ctx)
	assert.Error(t, err)
	assert.Equal(t, `request GET "`+srv.URL+`" failed: 404 Not Found`, err.Error())
}

func TestWithBaseUrl(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/baz", req.URL.Path)
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New().WithBaseURL(srv.URL)
	str := ""
	_, _, err := request.NewHTTPRequest(c).WithGet("baz").WithResult(&str).Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "test", str)
}

func TestUserAgentHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "my-user-agent", req.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New().WithUserAgent("my-user-agent")
	_, _, err := request.NewHTTPRequest(c).WithGet(srv.URL).Send(ctx)
	assert.NoError(t, err)
}

func TestMultiValuedHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// All values must arrive, not only the last one
		assert.Equal(t, []string{"a", "b"}, req.Header["X-Tag"])
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()
	def := request.NewHTTPRequest(c).WithGet(srv.URL).AndHeader("X-Tag", "a")
	def.RequestHeader().Add("X-Tag", "b")
	err := def.SendOrErr(ctx)
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New()

	// The client works before Close
	err := request.NewHTTPRequest(c).WithGet(srv.URL).SendOrErr(ctx)
	assert.NoError(t, err)

	// Close releases the client
	assert.NoError(t, c.Close())

	// The client must not be used after Close
	err = request.NewHTTPRequest(c).WithGet(srv.URL).SendOrErr(ctx)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrClientClosed))

	// A repeated Close is a no-op
	assert.NoError(t, c.Close())
}

func TestContext_Canceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("test"))
	}))
	defer srv.Close()

	// A cancelled context stops the request before sending
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New()
	err := request.NewHTTPRequest(c).WithGet(srv.URL).SendOrErr(ctx)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
