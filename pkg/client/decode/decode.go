// Package decode unwraps compressed response bodies.
package decode

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Wrap returns a reader decoding the given Content-Encoding.
// An empty or unknown encoding returns the body unchanged.
func Wrap(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(contentEncoding) {
	case "gzip":
		v, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode gzip: %w", err)
		}
		return v, nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	default:
		return body, nil
	}
}
