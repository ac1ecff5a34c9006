package request

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
)

// Helpers shared by the Sender implementations.
// They turn an immutable HTTPRequest definition into wire-level values
// and map a raw response back to the defined Result/Error targets,
// so both the net/http and the fasthttp senders behave identically.

// ResolveURL returns the absolute request URL:
// path parameters are replaced, the URL is resolved against the sender base URL (if any)
// and query parameters are encoded.
func ResolveURL(base *url.URL, reqDef HTTPRequest) (*url.URL, error) {
	reqURLStr := reqDef.URL().String()

	// Replace path parameters
	for k, v := range reqDef.PathParams() {
		reqURLStr = strings.ReplaceAll(reqURLStr, url.PathEscape("{"+k+"}"), url.PathEscape(v))
	}

	// Convert to absolute url
	var reqURL *url.URL
	var err error
	if base == nil {
		reqURL, err = url.Parse(reqURLStr)
	} else {
		reqURL, err = base.Parse(reqURLStr)
	}
	if err != nil {
		return nil, err
	}

	// Set query parameters
	if params := reqDef.QueryParams(); len(params) > 0 {
		reqURL.RawQuery = params.Encode()
	}

	return reqURL, nil
}

// BodyReader converts the request body definition to a reader.
// It can be called repeatedly, each call returns a fresh reader,
// so a redirect can read the body more than once.
func BodyReader(reqDef HTTPRequest) (io.ReadCloser, error) {
	contentType := reqDef.RequestHeader().Get("Content-Type")
	body := reqDef.RequestBody()
	if v, ok := body.(string); ok {
		return io.NopCloser(strings.NewReader(v)), nil
	}
	if v, ok := body.([]byte); ok {
		return io.NopCloser(bytes.NewReader(v)), nil
	}
	if v, ok := body.(io.ReadSeekCloser); ok {
		// io.ReadSeekCloser stream
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return v, nil
	}
	if v, ok := body.(io.ReadSeeker); ok {
		// io.ReadSeeker stream
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.NopCloser(v), nil
	}
	if body != nil && isJSONContentType(contentType) {
		// Json body
		c, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf(`cannot encode JSON body: %w`, err)
		}
		return io.NopCloser(bytes.NewReader(c)), nil
	}
	// empty body
	return nil, nil
}

// MapResponseBody maps the response body to the ResultDef/ErrorDef targets of the request definition.
// The response body is closed.
// The unexpectedErr return value reports a problem in the mapping itself, e.g. malformed JSON.
func MapResponseBody(reqDef HTTPRequest, r *http.Response) (result any, err error, unexpectedErr error) {
	defer r.Body.Close()
	resultDef := reqDef.ResultDef()
	errDef := reqDef.ErrorDef()

	if r.StatusCode == http.StatusNoContent {
		return nil, nil, nil
	}

	// Process content encoding
	contentEncoding := strings.ToLower(r.Header.Get("Content-Encoding"))
	switch contentEncoding {
	case "gzip":
		if v, err := gzip.NewReader(r.Body); err == nil {
			r.Body = v
		} else {
			return nil, nil, fmt.Errorf("cannot decode gzip response: %w", err)
		}
	case "br":
		r.Body = io.NopCloser(brotli.NewReader(r.Body))
	}

	// Process content type
	contentType := r.Header.Get("Content-Type")
	if v, ok := resultDef.(*[]byte); ok {
		// Load response body as []byte
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
		*v = bodyBytes
		return v, nil, nil

	} else if v, ok := resultDef.(*string); ok {
		// Load response body as string
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
		*v = string(bodyBytes)
		return v, nil, nil

	} else if v, ok := resultDef.(io.WriteCloser); ok {
		// Stream response to io.WriteCloser
		if _, err := io.Copy(v, r.Body); err != nil {
			return nil, nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
		if err := v.Close(); err != nil {
			return nil, nil, fmt.Errorf(`cannot close response writer: %w`, err)
		}
	} else if v, ok := resultDef.(io.Writer); ok {
		// Stream response to io.Writer
		if _, err := io.Copy(v, r.Body); err != nil {
			return nil, nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
	} else if isJSONContentType(contentType) {
		// Map JSON response
		if r.StatusCode > 199 && r.StatusCode < 300 && resultDef != nil {
			// Map JSON response to defined result
			if err := json.NewDecoder(r.Body).Decode(resultDef); err != nil {
				return nil, nil, fmt.Errorf(`cannot decode JSON result: %w`, err)
			}
			return resultDef, nil, nil

		} else if r.StatusCode > 399 && errDef != nil {
			// Map JSON response to defined error
			if err := json.NewDecoder(r.Body).Decode(errDef); err != nil {
				return nil, nil, fmt.Errorf(`cannot decode JSON error: %w`, err)
			}
			// Set HTTP request
			if v, ok := errDef.(errorWithRequest); ok {
				v.SetRequest(r.Request)
			}
			// Set HTTP response
			if v, ok := errDef.(errorWithResponse); ok {
				v.SetResponse(r)
			}
			return nil, errDef, nil
		}
	}
	return nil, nil, nil
}

type errorWithRequest interface {
	error
	SetRequest(request *http.Request)
}

type errorWithResponse interface {
	error
	SetResponse(response *http.Response)
}
