// Package request provides immutable HTTP request definitions, see NewHTTPRequest.
//
// A definition is bound to a Sender at construction and sent by the Send method.
// Two Sender implementations are provided by this module:
// client.Client, based on the standard net/http package,
// and fastclient.Client, based on the fasthttp package.
//
// Batch and WaitGroup send multiple requests concurrently.
package request
