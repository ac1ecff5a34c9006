// Command httpbench compares how long the net/http and fasthttp based clients
// take to download the same page 100 times concurrently.
//
// Example output:
//
//	net/http: 1.54 seconds
//	fasthttp: 1.32 seconds
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/bench"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/client"
	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/fastclient"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("benchmark failed")
	}
}

func run(ctx context.Context) error {
	runner := bench.NewRunner(
		bench.DefaultTargetURL,
		bench.DefaultBatchSize,
		os.Stdout,
		bench.Candidate{Name: "net/http", Client: client.New()},
		bench.Candidate{Name: "fasthttp", Client: fastclient.New()},
	)
	_, err := runner.Run(ctx)
	return err
}
