package demo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxylabs/nethttp-vs-fasthttp/internal/demo"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/fastclient"
)

func TestGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	var out strings.Builder
	c := client.New()
	defer c.Close()

	err := demo.Get(context.Background(), &out, c, srv.URL)
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}

func TestGet_Fasthttp(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	// The demo works with any sender implementation
	var out strings.Builder
	c := fastclient.New()
	defer c.Close()

	err := demo.Get(context.Background(), &out, c, srv.URL)
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}

func TestPostForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		assert.NoError(t, req.ParseForm())
		_, _ = w.Write([]byte("form: " + req.Form.Encode()))
	}))
	defer srv.Close()

	var out strings.Builder
	c := client.New()
	defer c.Close()

	err := demo.PostForm(context.Background(), &out, c, srv.URL, map[string]any{"key": "value", "count": 3})
	assert.NoError(t, err)
	assert.Equal(t, "form: count=3&key=value\n", out.String())
}
