// Package bench measures how long different request.Sender implementations
// take to process a batch of concurrent GET requests.
//
// Each candidate client downloads the same URL in a batch of concurrent requests,
// candidates run one after another, so they never compete for resources.
// The result of each candidate is printed as "<name>: <seconds> seconds".
package bench

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// DefaultBatchSize specifies default number of concurrent requests per candidate.
const DefaultBatchSize = 100

// DefaultTargetURL specifies default URL downloaded by each request.
const DefaultTargetURL = "https://example.com"

// Client is a request sender whose pooled connections can be released.
type Client interface {
	request.Sender
	io.Closer
}

// Candidate is a named client measured by the Runner.
type Candidate struct {
	Name   string
	Client Client
}

// Measurement is a result of one candidate run.
type Measurement struct {
	Name     string
	Requests int
	Elapsed  time.Duration
}

// Runner measures candidates one by one and prints each result to the output.
type Runner struct {
	targetURL  string
	batchSize  int
	out        io.Writer
	candidates []Candidate
}

// NewRunner creates a benchmark Runner.
func NewRunner(targetURL string, batchSize int, out io.Writer, candidates ...Candidate) *Runner {
	if batchSize < 0 {
		panic(fmt.Errorf("batch size cannot be negative, found %d", batchSize))
	}
	return &Runner{targetURL: targetURL, batchSize: batchSize, out: out, candidates: candidates}
}

// Run measures all candidates sequentially and returns their measurements.
//
// Per candidate, the whole batch is sent concurrently and the run fails fast:
// the first request error cancels the rest of the batch and the whole benchmark.
// All clients are closed before the method returns, on failure too,
// a close error of one client doesn't prevent closing of the others.
func (r *Runner) Run(ctx context.Context) (out []Measurement, err error) {
	defer func() {
		// Close all clients, even if the run failed
		closeErr := &multierror.Error{}
		for _, c := range r.candidates {
			if e := c.Client.Close(); e != nil {
				closeErr = multierror.Append(closeErr, fmt.Errorf(`cannot close client "%s": %w`, c.Name, e))
			}
		}
		if e := closeErr.ErrorOrNil(); e != nil && err == nil {
			err = e
		}
	}()

	for _, c := range r.candidates {
		m, err := r.measure(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		if _, err := fmt.Fprintln(r.out, m.String()); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Runner) measure(ctx context.Context, c Candidate) (Measurement, error) {
	// The limit equals the batch size, all requests of the batch run concurrently.
	batch := request.NewBatchWithLimit(ctx, int64(max(r.batchSize, 1)))
	for i := 0; i < r.batchSize; i++ {
		batch.Add(request.NewHTTPRequest(c.Client).WithGet(r.targetURL))
	}

	startedAt := time.Now()
	if err := batch.RunAndWait(); err != nil {
		return Measurement{}, fmt.Errorf(`benchmark of the client "%s" failed: %w`, c.Name, err)
	}

	return Measurement{Name: c.Name, Requests: r.batchSize, Elapsed: time.Since(startedAt)}, nil
}

// String formats the measurement as "<name>: <seconds> seconds", with two decimal places.
func (m Measurement) String() string {
	return fmt.Sprintf("%s: %.2f seconds", m.Name, m.Elapsed.Seconds())
}
