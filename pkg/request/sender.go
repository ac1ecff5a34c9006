package request

import (
	"context"
	"net/http"
)

// Sender does the network I/O for a request definition.
// Both the client.Client (net/http) and the fastclient.Client (fasthttp)
// implement the interface, code above this layer does not care
// which library talks to the network.
type Sender interface {
	// Send sends the request definition and returns the raw response
	// together with the value mapped by the ResultDef/ErrorDef targets.
	Send(ctx context.Context, request HTTPRequest) (rawResponse *http.Response, result any, err error)
}

// Sendable is anything that can be handed to a Batch or a WaitGroup,
// typically an HTTPRequest.
type Sendable interface {
	SendOrErr(ctx context.Context) error
}
