// Package demo contains small runnable examples of the request package,
// they are used by the commands in the cmd directory.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// Get downloads the URL and prints the response body to the output.
func Get(ctx context.Context, out io.Writer, sender request.Sender, url string) error {
	var body string
	if err := request.
		NewHTTPRequest(sender).
		WithGet(url).
		WithResult(&body).
		SendOrErr(ctx); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, body)
	return err
}

// PostForm submits the form to the URL and prints the response body to the output.
// The form values may be of any scalar type, see request.ToFormBody.
func PostForm(ctx context.Context, out io.Writer, sender request.Sender, url string, form map[string]any) error {
	var body string
	if err := request.
		NewHTTPRequest(sender).
		WithPost(url).
		WithFormBody(request.ToFormBody(form)).
		WithResult(&body).
		SendOrErr(ctx); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, body)
	return err
}
