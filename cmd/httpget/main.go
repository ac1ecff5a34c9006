// Command httpget downloads a page and prints its body to stdout.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/oxylabs/nethttp-vs-fasthttp/internal/demo"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
)

const targetURL = "https://example.com"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("request failed")
	}
}

func run(ctx context.Context) (err error) {
	c := client.New()
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return demo.Get(ctx, os.Stdout, c, targetURL)
}
