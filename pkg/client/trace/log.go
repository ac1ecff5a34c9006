package trace

import (
	"context"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oxylabs/nethttp-vs-fasthttp/pkg/request"
)

// LogTracer writes one structured log line per request event to the writer.
// All events of one request share a "request_id" field, requests are
// numbered from 1 in the order they are sent.
func LogTracer(wr io.Writer) Factory {
	logger := zerolog.New(wr)
	var lastID uint64
	return func(ctx context.Context, reqDef request.HTTPRequest) (context.Context, *ClientTrace) {
		log := logger.With().Uint64("request_id", atomic.AddUint64(&lastID, 1)).Logger()

		var method, url string
		var dialedAt, startedAt, doneAt time.Time

		tc := &ClientTrace{}
		tc.ConnectStart = func(network, addr string) {
			dialedAt = time.Now()
		}
		tc.GotConn = func(info httptrace.GotConnInfo) {
			evt := log.Info().Str("method", method).Str("url", url).Bool("reused", info.Reused)
			if info.WasIdle {
				evt = evt.Dur("idle_time", info.IdleTime)
			} else if !info.Reused {
				evt = evt.Dur("dial_time", time.Since(dialedAt))
			}
			evt.Msg("connection open")
		}
		tc.HTTPRequestStart = func(r *http.Request) {
			method, url = r.Method, r.URL.String()
			startedAt = time.Now()
			log.Info().Str("method", method).Str("url", url).Msg("request started")
		}
		tc.HTTPRequestDone = func(r *http.Response, err error) {
			doneAt = time.Now()
			if err != nil {
				log.Warn().Str("method", method).Str("url", url).Dur("elapsed", doneAt.Sub(startedAt)).Err(err).Msg("request done")
				return
			}
			log.Info().Str("method", method).Str("url", url).Int("status", r.StatusCode).Dur("elapsed", doneAt.Sub(startedAt)).Msg("request done")
		}
		tc.RequestProcessed = func(result any, err error) {
			if err != nil {
				log.Warn().Str("method", method).Str("url", url).Dur("parse_time", time.Since(doneAt)).Err(err).Msg("request processed")
				return
			}
			log.Info().Str("method", method).Str("url", url).Dur("parse_time", time.Since(doneAt)).Msg("request processed")
		}
		return ctx, tc
	}
}
