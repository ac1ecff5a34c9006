package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Pool geometry and timeouts of the default transport.
//
// The values mirror the fastclient defaults, so the bench package compares
// the two HTTP stacks with equal connection pools: a host is dialed for at
// most 3 seconds, idle connections are probed every 10 seconds and at most
// 32 connections per host are open at once.
const (
	dialTimeout         = 3 * time.Second
	keepAliveInterval   = 10 * time.Second
	tlsHandshakeTimeout = 5 * time.Second
	headerTimeout       = 20 * time.Second
	maxConnsPerHost     = 32
)

// DefaultTransport returns the pooled transport used by New.
// HTTP/2 is negotiated when the server offers it.
func DefaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           newDialer().DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: headerTimeout,
		MaxConnsPerHost:       maxConnsPerHost,
		MaxIdleConnsPerHost:   maxConnsPerHost,
	}
}

// HTTP2Transport returns a transport speaking HTTP/2 only, without the
// upgrade from HTTP/1.1. Set it by WithTransport to benchmark the HTTP/2
// code path in isolation, fasthttp has no HTTP/2 counterpart.
func HTTP2Transport() http.RoundTripper {
	return &http2.Transport{
		DialTLS: func(network, addr string, cfg *tls.Config) (net.Conn, error) {
			return tls.DialWithDialer(newDialer(), network, addr, cfg)
		},
		ReadIdleTimeout:  3 * time.Second,
		PingTimeout:      3 * time.Second,
		WriteByteTimeout: 3 * time.Second,
	}
}

func newDialer() *net.Dialer {
	return &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}
}
