// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents an inbound request to be forwarded to its target.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Target is the raw value of the url query parameter.
	Target        string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the target's response to be relayed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       Body
}

// Body is the payload of a ProxyResponse. It is either a StreamedBody or a
// BufferedBody; the variant is chosen once when the response is received.
type Body interface {
	io.Closer
	body()
}

// StreamedBody is a payload read incrementally from the upstream connection.
type StreamedBody struct {
	io.ReadCloser
}

func (StreamedBody) body() {}

// BufferedBody is a payload that is already fully in memory.
type BufferedBody struct {
	Data []byte
}

func (BufferedBody) body() {}

// Close is a no-op.
func (BufferedBody) Close() error { return nil }

// NewBody wraps an upstream response body. Nil and http.NoBody become an
// empty BufferedBody; anything else is streamed.
func NewBody(rc io.ReadCloser) Body {
	if rc == nil || rc == http.NoBody {
		return BufferedBody{}
	}
	return StreamedBody{ReadCloser: rc}
}
