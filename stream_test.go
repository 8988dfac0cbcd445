package groq_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingBody records whether Close was called.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func streamOK(body io.Reader) *groq.StreamResponse {
	return &groq.StreamResponse{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(body)}
}

func collect(t *testing.T, s groq.Stream) ([]groq.ChatCompletionChunk, error) {
	t.Helper()
	var chunks []groq.ChatCompletionChunk
	for {
		c, err := s.Next()
		if err != nil {
			if err == io.EOF {
				return chunks, nil
			}
			return chunks, err
		}
		chunks = append(chunks, c)
	}
}

const toolCallStream = "data: {\"id\":\"c1\",\"model\":\"llama\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"weather\",\"arguments\":\"{\\\"city\\\":\"}}]}}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"Paris\\\"}\"}}]}}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"tool_calls\"}],\"x_groq\":{\"id\":\"req_1\",\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":7,\"total_tokens\":12}}}\n\n" +
	"data: [DONE]\n\n"

func TestChatCompletionStream(t *testing.T) {
	t.Parallel()

	t.Run("decodes fragmented body and assembles response", func(t *testing.T) {
		t.Parallel()
		var sent *groq.Request
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			sent = req
			return streamOK(iotest.OneByteReader(strings.NewReader(wellFormed))), nil
		}}
		c := newTestClient(tr, &recorder{})

		s, err := c.ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Response()
		assert.ErrorIs(t, err, groq.ErrStreamNotReady)

		chunks, err := collect(t, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"Hel", "lo ✓", ""}, contents(chunks))
		assert.Equal(t, groq.StreamStateComplete, s.State())

		resp, err := s.Response()
		require.NoError(t, err)
		assert.Equal(t, "Hello ✓", resp.Content())
		assert.Equal(t, "stop", resp.Choices[0].FinishReason)

		body, ok := sent.Body.(groq.ChatCompletionRequest)
		require.True(t, ok)
		assert.True(t, body.Stream)
		assert.Equal(t, "chat/completions", sent.Path)
	})

	t.Run("assembles tool calls and usage", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return streamOK(strings.NewReader(toolCallStream)), nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		defer s.Close()

		_, err = collect(t, s)
		require.NoError(t, err)
		resp, err := s.Response()
		require.NoError(t, err)
		require.Len(t, resp.Choices, 1)
		calls := resp.Choices[0].Message.ToolCalls
		require.Len(t, calls, 1)
		assert.Equal(t, "call_1", calls[0].ID)
		assert.Equal(t, "weather", calls[0].Function.Name)
		assert.JSONEq(t, `{"city":"Paris"}`, calls[0].Function.Arguments)
		assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
		assert.Equal(t, 12, resp.Usage.TotalTokens)
		assert.Equal(t, "llama", resp.Model)
	})

	t.Run("clean close without sentinel ends normally", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return streamOK(strings.NewReader("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}")), nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		chunks, err := collect(t, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, contents(chunks))
	})

	t.Run("malformed records do not end the stream", func(t *testing.T) {
		t.Parallel()
		body := "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n" +
			"data: {broken\n" +
			"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"b\"}}]}\n" +
			"data: [DONE]\n"
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return streamOK(strings.NewReader(body)), nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		chunks, err := collect(t, s)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, contents(chunks))
	})

	t.Run("read error ends stream after partial results", func(t *testing.T) {
		t.Parallel()
		readErr := errors.New("connection reset by peer")
		body := io.MultiReader(
			strings.NewReader("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}\n\n"),
			iotest.ErrReader(readErr),
		)
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return streamOK(body), nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)

		chunks, err := collect(t, s)
		assert.Equal(t, []string{"partial"}, contents(chunks))
		assert.ErrorIs(t, err, groq.ErrStreamDecode)
		assert.ErrorIs(t, err, readErr)
		assert.Equal(t, groq.StreamStateError, s.State())

		_, again := s.Next()
		assert.Equal(t, err, again)

		resp, rerr := s.Response()
		require.NoError(t, rerr)
		assert.Equal(t, "partial", resp.Content())
	})

	t.Run("strict decoding surfaces malformed records", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return streamOK(strings.NewReader("data: nope\n")), nil
		}}
		c := newTestClient(tr, &recorder{}, groq.WithStrictDecoding(true))
		s, err := c.ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		_, err = collect(t, s)
		assert.ErrorIs(t, err, groq.ErrStreamDecode)
	})
}

func TestChatCompletionStream_Close(t *testing.T) {
	t.Parallel()

	t.Run("abandoning closes the body", func(t *testing.T) {
		t.Parallel()
		body := &trackingBody{Reader: strings.NewReader(wellFormed)}
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return &groq.StreamResponse{StatusCode: http.StatusOK, Body: body}, nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)

		_, err = s.Next()
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.True(t, body.closed)
		assert.Equal(t, groq.StreamStateClosed, s.State())

		_, err = s.Next()
		assert.ErrorIs(t, err, groq.ErrStreamClosed)
	})

	t.Run("completion releases the body", func(t *testing.T) {
		t.Parallel()
		body := &trackingBody{Reader: strings.NewReader(wellFormed)}
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return &groq.StreamResponse{StatusCode: http.StatusOK, Body: body}, nil
		}}
		s, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), chatRequest())
		require.NoError(t, err)
		_, err = collect(t, s)
		require.NoError(t, err)
		assert.True(t, body.closed)
		assert.NoError(t, s.Close())
		assert.Equal(t, groq.StreamStateComplete, s.State())
	})
}

func TestChatCompletionStreamWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("retries failed connections", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return streamOK(strings.NewReader(wellFormed)), nil
		}}
		rec := &recorder{}
		s, err := newTestClient(tr, rec).ChatCompletionStreamWithRetry(context.Background(), chatRequest(), 3)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, rec.waits)
	})

	t.Run("does not retry requests that could not be built", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			attempts++
			return nil, &groq.Error{Kind: groq.KindInvalidRequest, Message: "http: encode request", Err: errors.New("unsupported value")}
		}}
		rec := &recorder{}
		_, err := newTestClient(tr, rec).ChatCompletionStreamWithRetry(context.Background(), chatRequest(), 3)
		assert.ErrorIs(t, err, groq.ErrInvalidRequest)
		assert.NotErrorIs(t, err, groq.ErrTransport)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, rec.waits)
	})

	t.Run("returns last error when attempts run out", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			attempts++
			return &groq.StreamResponse{
				StatusCode: http.StatusServiceUnavailable,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"over capacity"}}`)),
			}, nil
		}}
		rec := &recorder{}
		_, err := newTestClient(tr, rec).ChatCompletionStreamWithRetry(context.Background(), chatRequest(), 2)
		var gerr *groq.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, http.StatusServiceUnavailable, gerr.StatusCode)
		assert.Equal(t, "over capacity", gerr.Message)
		assert.Equal(t, 3, attempts)
		assert.Len(t, rec.waits, 2)
	})

	t.Run("does not retry auth failures", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			attempts++
			return &groq.StreamResponse{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"Invalid API Key"}}`)),
			}, nil
		}}
		_, err := newTestClient(tr, &recorder{}).ChatCompletionStreamWithRetry(context.Background(), chatRequest(), 3)
		assert.True(t, groq.IsAuthError(err))
		assert.Equal(t, 1, attempts)
	})

	t.Run("zero retries makes one attempt", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		tr := &mock.Transport{OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			attempts++
			return nil, errors.New("connection refused")
		}}
		rec := &recorder{}
		_, err := newTestClient(tr, rec).ChatCompletionStreamWithRetry(context.Background(), chatRequest(), 0)
		assert.ErrorIs(t, err, groq.ErrTransport)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, rec.waits)
	})

	t.Run("rejects invalid request before connecting", func(t *testing.T) {
		t.Parallel()
		tr := &mock.Transport{}
		req := chatRequest()
		temp := 3.0
		req.Temperature = &temp
		_, err := newTestClient(tr, &recorder{}).ChatCompletionStream(context.Background(), req)
		assert.ErrorIs(t, err, groq.ErrValidation)
		assert.ErrorIs(t, err, groq.ErrInvalidRequest)
	})
}

func TestNewStream(t *testing.T) {
	t.Parallel()
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hi\"}}]}\n\n" +
			"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" there\"},\"finish_reason\":\"stop\"}]}\n\n" +
			"data: [DONE]\n\n")}

	s := groq.NewStream(context.Background(), body, groq.NewDecoder())
	_, err := s.Response()
	assert.ErrorIs(t, err, groq.ErrStreamNotReady)

	chunks, err := collect(t, s)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, groq.StreamStateComplete, s.State())

	resp, err := s.Response()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content())
	require.NoError(t, s.Close())
	assert.True(t, body.closed)
}
