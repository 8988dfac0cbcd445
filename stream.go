package groq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, receiving chunks.
	StreamStateComplete                     // Next() returned io.EOF.
	StreamStateError                        // Next() returned non-EOF error.
	StreamStateClosed                       // Close() called before terminal state.
)

func (s StreamState) String() string {
	switch s {
	case StreamStateNew:
		return "new"
	case StreamStateStreaming:
		return "streaming"
	case StreamStateComplete:
		return "complete"
	case StreamStateError:
		return "error"
	case StreamStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// Stream is a pull-based iterator over the chunks of one streamed chat
// completion. Cancellation flows through the context passed when the stream
// was opened; abandoning a stream requires Close.
//
// Next returns io.EOF after the terminal sentinel or a clean close of the
// connection. A read failure ends the stream with an *Error of kind
// KindStreamDecode; chunks returned before it remain valid.
//
// Response returns the completion assembled from the chunks seen so far.
// It is complete after io.EOF and partial in every other state except
// StreamStateNew, where it returns ErrStreamNotReady.
type Stream interface {
	Next() (ChatCompletionChunk, error)
	State() StreamState
	Response() (ChatCompletionResponse, error)
	Close() error
}

const streamReadSize = 4096

// Base wait between streaming connection attempts.
const streamRetryBase = 100 * time.Millisecond

// streamRetryDelay returns the wait after the given failed attempt (1-based).
func streamRetryDelay(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return streamRetryBase << attempt
}

// ChatCompletionStream opens a streamed chat completion, retrying the
// connection up to the configured number of times.
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest) (Stream, error) {
	return c.ChatCompletionStreamWithRetry(ctx, req, c.streamRetries)
}

// ChatCompletionStreamWithRetry opens a streamed chat completion with up to
// maxRetries+1 connection attempts, waiting 100ms*2^n after failed attempt
// n. Once connected no further retries happen. Authentication failures and
// context cancellation are not retried, nor are requests the transport
// could not build.
func (c *Client) ChatCompletionStreamWithRetry(ctx context.Context, req ChatCompletionRequest, maxRetries int) (Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	req.Stream = true
	r := &Request{
		Method:    http.MethodPost,
		Path:      chatCompletionsPath,
		Body:      req,
		RequestID: c.newRequestID(),
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var last *Error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		s, err := c.openStream(ctx, r)
		if err == nil {
			return s, nil
		}
		last = err
		if ctx.Err() != nil || err.IsAuthError() || err.Kind == KindInvalidRequest || attempt > maxRetries {
			break
		}
		delay := streamRetryDelay(attempt)
		c.logger.Debug("retrying stream connection",
			zap.String("request_id", r.RequestID),
			zap.Int("attempt", attempt),
			zap.Int("status", err.StatusCode),
			zap.Duration("delay", delay),
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, &Error{Kind: KindTransport, RequestID: r.RequestID, Err: serr}
		}
	}
	return nil, last
}

// maxErrorBody bounds how much of a failed streaming response is read.
const maxErrorBody = 64 << 10

func (c *Client) openStream(ctx context.Context, r *Request) (*stream, *Error) {
	resp, err := c.transport.Open(ctx, r)
	if err != nil {
		if local := localFailure(err); local != nil {
			return nil, local
		}
		return nil, &Error{Kind: KindTransport, RequestID: r.RequestID, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := ErrorFromResponse(resp.StatusCode, resp.Header, body)
		if e.RequestID == "" {
			e.RequestID = r.RequestID
		}
		return nil, e
	}

	dec := NewDecoder()
	dec.Strict = c.strictDecoding
	dec.Logger = c.logger.With(zap.String("request_id", r.RequestID))
	return newStream(ctx, resp.Body, dec), nil
}

// stream implements [Stream] by feeding an HTTP response body through a
// Decoder.
type stream struct {
	ctx     context.Context
	body    io.ReadCloser
	dec     *Decoder
	readBuf []byte
	pending []ChatCompletionChunk
	eof     bool
	closed  bool
	state   StreamState
	err     error
	failure error // delivered after pending chunks
	acc     accumulator
}

// Interface compliance check.
var _ Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser, dec *Decoder) *stream {
	return &stream{
		ctx:     ctx,
		body:    body,
		dec:     dec,
		readBuf: make([]byte, streamReadSize),
		state:   StreamStateNew,
	}
}

// NewStream returns a Stream decoding body with dec, for callers that open
// the response themselves. The Stream owns body and closes it.
func NewStream(ctx context.Context, body io.ReadCloser, dec *Decoder) Stream {
	return newStream(ctx, body, dec)
}

// Next returns the next decoded chunk.
func (s *stream) Next() (ChatCompletionChunk, error) {
	switch s.state {
	case StreamStateComplete:
		return ChatCompletionChunk{}, io.EOF
	case StreamStateError:
		return ChatCompletionChunk{}, s.err
	case StreamStateClosed:
		return ChatCompletionChunk{}, ErrStreamClosed
	}

	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			s.state = StreamStateStreaming
			s.acc.add(chunk)
			return chunk, nil
		}
		if s.failure != nil {
			s.terminate(s.failure)
			return ChatCompletionChunk{}, s.err
		}
		if s.dec.Done() || s.eof {
			s.complete()
			return ChatCompletionChunk{}, io.EOF
		}
		s.failure = s.fill()
	}
}

// fill reads from the body until at least one chunk is pending, the
// sentinel is seen, or the body ends.
func (s *stream) fill() error {
	n, err := s.body.Read(s.readBuf)
	if n > 0 {
		s.dec.Feed(s.readBuf[:n])
		chunks, derr := s.dec.Drain()
		s.pending = append(s.pending, chunks...)
		if derr != nil {
			return derr
		}
	}
	switch {
	case err == io.EOF:
		s.eof = true
		chunks, derr := s.dec.Flush()
		s.pending = append(s.pending, chunks...)
		return derr
	case err != nil:
		if s.ctx.Err() != nil {
			return &Error{Kind: KindTransport, Message: "stream aborted", Err: s.ctx.Err()}
		}
		return &Error{Kind: KindStreamDecode, Message: "read stream", Err: err}
	}
	return nil
}

func (s *stream) complete() {
	s.state = StreamStateComplete
	s.release()
}

// terminate records a terminal error.
func (s *stream) terminate(err error) {
	s.state = StreamStateError
	s.err = err
	s.release()
}

func (s *stream) release() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.body.Close()
}

// State returns the current stream state.
func (s *stream) State() StreamState {
	return s.state
}

// Response returns the completion assembled so far.
func (s *stream) Response() (ChatCompletionResponse, error) {
	if s.state == StreamStateNew {
		return ChatCompletionResponse{}, ErrStreamNotReady
	}
	return s.acc.response(), nil
}

// Close releases the underlying connection.
func (s *stream) Close() error {
	if s.state != StreamStateComplete && s.state != StreamStateError {
		s.state = StreamStateClosed
	}
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// accumulator assembles streamed deltas into a response.
type accumulator struct {
	resp    ChatCompletionResponse
	choices map[int]*choiceState
}

type choiceState struct {
	role      Role
	content   strings.Builder
	reasoning strings.Builder
	finish    string
	calls     []ToolCall
}

func (a *accumulator) add(chunk ChatCompletionChunk) {
	if a.resp.ID == "" {
		a.resp.ID = chunk.ID
		a.resp.Object = "chat.completion"
		a.resp.Created = chunk.Created
		a.resp.Model = chunk.Model
	}
	if chunk.SystemFingerprint != "" {
		a.resp.SystemFingerprint = chunk.SystemFingerprint
	}
	if chunk.XGroq != nil {
		a.resp.XGroq = &XGroq{ID: chunk.XGroq.ID}
		if chunk.XGroq.Usage != nil {
			a.resp.Usage = *chunk.XGroq.Usage
		}
	}
	if chunk.Usage != nil {
		a.resp.Usage = *chunk.Usage
	}
	if a.choices == nil {
		a.choices = make(map[int]*choiceState)
	}
	for _, ch := range chunk.Choices {
		cs := a.choices[ch.Index]
		if cs == nil {
			cs = &choiceState{role: RoleAssistant}
			a.choices[ch.Index] = cs
		}
		if ch.Delta.Role != "" {
			cs.role = ch.Delta.Role
		}
		cs.content.WriteString(ch.Delta.Content)
		cs.reasoning.WriteString(ch.Delta.Reasoning)
		for i, tc := range ch.Delta.ToolCalls {
			cs.mergeToolCall(i, tc)
		}
		if ch.FinishReason != nil {
			cs.finish = *ch.FinishReason
		}
	}
}

func (cs *choiceState) mergeToolCall(pos int, tc ToolCall) {
	idx := pos
	if tc.Index != nil {
		idx = *tc.Index
	}
	for len(cs.calls) <= idx {
		cs.calls = append(cs.calls, ToolCall{})
	}
	call := &cs.calls[idx]
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Type != "" {
		call.Type = tc.Type
	}
	if tc.Function.Name != "" {
		call.Function.Name = tc.Function.Name
	}
	call.Function.Arguments += tc.Function.Arguments
}

func (a *accumulator) response() ChatCompletionResponse {
	resp := a.resp
	idx := make([]int, 0, len(a.choices))
	for i := range a.choices {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	resp.Choices = make([]Choice, 0, len(idx))
	for _, i := range idx {
		cs := a.choices[i]
		resp.Choices = append(resp.Choices, Choice{
			Index: i,
			Message: ChatMessage{
				Role:      cs.role,
				Content:   Text(cs.content.String()),
				Reasoning: cs.reasoning.String(),
				ToolCalls: append([]ToolCall(nil), cs.calls...),
			},
			FinishReason: cs.finish,
		})
	}
	return resp
}
