// Package counter wraps a response body to observe how many bytes were read from it.
package counter

import (
	"errors"
	"io"
)

// OnClose receives the number of bytes read when the body is closed.
type OnClose func(bytes int64, err error)

// ReadCloser counts the bytes read from the wrapped body and reports them
// to the OnClose callback, together with the read or close error, if any.
type ReadCloser struct {
	body    io.ReadCloser
	onClose OnClose
	read    int64
	lastErr error
}

func NewReadCloser(body io.ReadCloser, onClose OnClose) *ReadCloser {
	return &ReadCloser{body: body, onClose: onClose}
}

// Bytes returns the number of bytes read so far.
func (c *ReadCloser) Bytes() int64 {
	return c.read
}

func (c *ReadCloser) Read(p []byte) (int, error) {
	n, err := c.body.Read(p)
	c.read += int64(n)
	c.lastErr = err
	return n, err
}

func (c *ReadCloser) Close() error {
	closeErr := c.body.Close()
	if c.onClose != nil {
		// A read error is more useful to the callback than a close error,
		// a normal end of the body (io.EOF) is not an error.
		if c.lastErr != nil && !errors.Is(c.lastErr, io.EOF) {
			c.onClose(c.read, c.lastErr)
		} else {
			c.onClose(c.read, closeErr)
		}
	}
	return closeErr
}
