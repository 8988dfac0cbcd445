package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultStreamRetries is the number of extra connection attempts made by
// ChatCompletionStream.
const DefaultStreamRetries = 3

// Client issues API operations over a Transport. Retry and decode state is
// local to each call, so a Client is safe for concurrent use when its
// Transport is.
type Client struct {
	transport      Transport
	backoff        *Backoff
	retryTransport bool
	streamRetries  int
	strictDecoding bool
	logger         *zap.Logger
	sleeper        func(time.Duration)
	newRequestID   func() string
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger used for retry and decode diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackoff sets the backoff prototype. Each call works on a fresh copy.
func WithBackoff(b *Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithRetryTransportErrors makes connectivity failures transient for
// non-streaming calls. They are permanent by default.
func WithRetryTransportErrors(retry bool) Option {
	return func(c *Client) { c.retryTransport = retry }
}

// WithStreamRetries sets the number of extra connection attempts used by
// ChatCompletionStream.
func WithStreamRetries(n int) Option {
	return func(c *Client) { c.streamRetries = n }
}

// WithStrictDecoding makes streams fail on undecodable records instead of
// dropping them.
func WithStrictDecoding(strict bool) Option {
	return func(c *Client) { c.strictDecoding = strict }
}

// WithSleeper overrides how retry waits are performed (useful for tests).
// The sleeper does not move the backoff clock: a sleeper that returns
// immediately should be paired with a Backoff whose Now it advances,
// otherwise the elapsed budget is measured in real time.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

// WithRequestIDFunc overrides request id generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) { c.newRequestID = fn }
}

// NewClient creates a [Client] over transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:     transport,
		backoff:       DefaultBackoff(),
		streamRetries: DefaultStreamRetries,
		logger:        zap.NewNop(),
		newRequestID:  uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do runs req until it succeeds, fails permanently, or the backoff budget
// is spent. Only rate limiting, and transport failures when enabled, are
// retried.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	if req.RequestID == "" {
		req.RequestID = c.newRequestID()
	}
	b := c.backoff.Clone()
	for attempt := 1; ; attempt++ {
		resp, err := c.transport.Send(ctx, req)

		var failure *Error
		switch {
		case err != nil:
			if local := localFailure(err); local != nil {
				return nil, local
			}
			failure = &Error{Kind: KindTransport, RequestID: req.RequestID, Err: err}
			if ctx.Err() != nil || !c.retryTransport {
				return nil, failure
			}
		case isSuccess(resp.StatusCode):
			return resp, nil
		default:
			failure = c.classify(resp.StatusCode, resp, req.RequestID)
			if !failure.IsRateLimited() {
				return nil, failure
			}
		}

		delay, ok := b.Next(failure.RetryAfter)
		if !ok {
			return nil, exhausted(failure, attempt)
		}
		c.logger.Debug("retrying request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("request_id", req.RequestID),
			zap.Int("attempt", attempt),
			zap.Int("status", failure.StatusCode),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &Error{Kind: failure.Kind, StatusCode: failure.StatusCode, RequestID: req.RequestID, Err: err}
		}
	}
}

func (c *Client) classify(status int, resp *Response, requestID string) *Error {
	e := ErrorFromResponse(status, resp.Header, resp.Body)
	if e.RequestID == "" {
		e.RequestID = requestID
	}
	return e
}

// localFailure returns err when the transport rejected the request before
// sending it. Such failures are permanent and keep their kind.
func localFailure(err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInvalidRequest {
		return e
	}
	return nil
}

// exhausted converts the last transient failure into a terminal one. The
// fields of last are carried over and only its cause is wrapped, so the
// message and request id appear once.
func exhausted(last *Error, attempts int) *Error {
	cause := fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempts)
	if last.Err != nil {
		cause = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, last.Err)
	}
	return &Error{
		Kind:       last.Kind,
		StatusCode: last.StatusCode,
		Type:       last.Type,
		Code:       last.Code,
		Param:      last.Param,
		Message:    last.Message,
		RetryAfter: last.RetryAfter,
		RequestID:  last.RequestID,
		Raw:        last.Raw,
		Err:        cause,
	}
}

// doJSON runs req and decodes a successful body into out.
func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("groq: decode %s response: %w", req.Path, err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
