package mock

import "github.com/fwojciec/groq"

// Stream is a test double for groq.Stream.
// Set the function fields for the methods you need. NextFn and ResponseFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because test code commonly calls defer stream.Close()
// and these methods rarely need custom behavior.
type Stream struct {
	NextFn     func() (groq.ChatCompletionChunk, error)
	StateFn    func() groq.StreamState
	ResponseFn func() (groq.ChatCompletionResponse, error)
	CloseFn    func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (groq.ChatCompletionChunk, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() groq.StreamState {
	if s.StateFn == nil {
		return groq.StreamStateNew
	}
	return s.StateFn()
}

// Response delegates to ResponseFn.
func (s *Stream) Response() (groq.ChatCompletionResponse, error) {
	return s.ResponseFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
