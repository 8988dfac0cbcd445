// Package mock provides test doubles for groq interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/groq"
)

// Interface compliance checks.
var (
	_ groq.Transport = (*Transport)(nil)
	_ groq.Stream    = (*Stream)(nil)
)

// Transport is a test double for groq.Transport.
// Set SendFn or OpenFn before calling the matching method.
type Transport struct {
	SendFn func(ctx context.Context, req *groq.Request) (*groq.Response, error)
	OpenFn func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error)
}

// Send delegates to SendFn.
func (t *Transport) Send(ctx context.Context, req *groq.Request) (*groq.Response, error) {
	return t.SendFn(ctx, req)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
	return t.OpenFn(ctx, req)
}
