package mock_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Send(t *testing.T) {
	t.Parallel()
	t.Run("delegates to SendFn", func(t *testing.T) {
		t.Parallel()
		want := &groq.Response{StatusCode: 200, Body: []byte(`{}`)}
		tr := mock.Transport{
			SendFn: func(ctx context.Context, req *groq.Request) (*groq.Response, error) {
				assert.Equal(t, "models", req.Path)
				return want, nil
			},
		}
		got, err := tr.Send(context.Background(), &groq.Request{Path: "models"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("panics when SendFn not set", func(t *testing.T) {
		t.Parallel()
		tr := mock.Transport{}
		assert.Panics(t, func() {
			_, _ = tr.Send(context.Background(), &groq.Request{})
		})
	})
}

func TestTransport_Open(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("connection refused")
	tr := mock.Transport{
		OpenFn: func(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
			return nil, wantErr
		},
	}
	_, err := tr.Open(context.Background(), &groq.Request{})
	assert.ErrorIs(t, err, wantErr)
}

func TestStream(t *testing.T) {
	t.Parallel()
	t.Run("delegates to NextFn", func(t *testing.T) {
		t.Parallel()
		want := groq.ChatCompletionChunk{ID: "chunk-1"}
		s := mock.Stream{
			NextFn: func() (groq.ChatCompletionChunk, error) { return want, nil },
		}
		got, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("returns EOF", func(t *testing.T) {
		t.Parallel()
		s := mock.Stream{
			NextFn: func() (groq.ChatCompletionChunk, error) { return groq.ChatCompletionChunk{}, io.EOF },
		}
		_, err := s.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("state defaults to new", func(t *testing.T) {
		t.Parallel()
		var s mock.Stream
		assert.Equal(t, groq.StreamStateNew, s.State())
	})

	t.Run("delegates to StateFn", func(t *testing.T) {
		t.Parallel()
		s := mock.Stream{StateFn: func() groq.StreamState { return groq.StreamStateComplete }}
		assert.Equal(t, groq.StreamStateComplete, s.State())
	})

	t.Run("delegates to ResponseFn", func(t *testing.T) {
		t.Parallel()
		want := groq.ChatCompletionResponse{ID: "resp-1"}
		s := mock.Stream{
			ResponseFn: func() (groq.ChatCompletionResponse, error) { return want, nil },
		}
		got, err := s.Response()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("close is nil-safe", func(t *testing.T) {
		t.Parallel()
		var s mock.Stream
		assert.NoError(t, s.Close())
	})

	t.Run("delegates to CloseFn", func(t *testing.T) {
		t.Parallel()
		called := false
		s := mock.Stream{CloseFn: func() error {
			called = true
			return nil
		}}
		require.NoError(t, s.Close())
		assert.True(t, called)
	})
}
