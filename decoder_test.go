package groq_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/fwojciec/groq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const wellFormed = "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo ✓\"}}]}\n\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: [DONE]\n\n"

func drainAll(t *testing.T, d *groq.Decoder) []groq.ChatCompletionChunk {
	t.Helper()
	chunks, err := d.Drain()
	require.NoError(t, err)
	return chunks
}

func contents(chunks []groq.ChatCompletionChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content()
	}
	return out
}

func TestDecoder_Fragmentation(t *testing.T) {
	t.Parallel()

	whole := groq.NewDecoder()
	whole.Feed([]byte(wellFormed))
	want := drainAll(t, whole)
	require.Len(t, want, 3)
	assert.Equal(t, []string{"Hel", "lo ✓", ""}, contents(want))
	assert.True(t, whole.Done())

	t.Run("every two-way split", func(t *testing.T) {
		t.Parallel()
		for i := 0; i <= len(wellFormed); i++ {
			d := groq.NewDecoder()
			var got []groq.ChatCompletionChunk
			d.Feed([]byte(wellFormed[:i]))
			got = append(got, drainAll(t, d)...)
			d.Feed([]byte(wellFormed[i:]))
			got = append(got, drainAll(t, d)...)
			require.Equal(t, want, got, "split at %d", i)
		}
	})

	t.Run("one byte at a time", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		var got []groq.ChatCompletionChunk
		for i := 0; i < len(wellFormed); i++ {
			d.Feed([]byte{wellFormed[i]})
			got = append(got, drainAll(t, d)...)
		}
		assert.Equal(t, want, got)
	})
}

func TestDecoder_PartialRecordRetention(t *testing.T) {
	t.Parallel()
	d := groq.NewDecoder()
	partial := `data: {"id":"c1","choices":[{"index":0,"delta":{"content":"hi"}}]}`

	d.Feed([]byte(partial))
	assert.Empty(t, drainAll(t, d))
	assert.Equal(t, len(partial), d.Buffered())

	d.Feed([]byte("\n"))
	got := drainAll(t, d)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content())
	assert.Zero(t, d.Buffered())
}

func TestDecoder_MalformedRecords(t *testing.T) {
	t.Parallel()

	t.Run("repairs truncated string and object", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\n" +
			"data: {\"id\":\"c2\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n"))
		got, err := d.Drain()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c1", got[0].ID)
		assert.Equal(t, "chat.completion.chunk", got[0].Object)
		assert.Equal(t, "ok", got[1].Content())
	})

	t.Run("drops unrepairable record silently", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: not json\n" +
			"data: {\"id\":\n" +
			"data: {\"id\":\"c3\"}\n"))
		got, err := d.Drain()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c3", got[0].ID)
		assert.Equal(t, 2, d.Dropped())
		assert.Zero(t, d.Failures())
	})

	t.Run("strict mode surfaces unrepairable record", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Strict = true
		d.Feed([]byte("data: {\"id\":\"c1\"}\ndata: not json\n"))
		got, err := d.Drain()
		require.Len(t, got, 1)
		assert.ErrorIs(t, err, groq.ErrStreamDecode)
	})

	t.Run("threshold is logged without stopping", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zapcore.WarnLevel)
		d := groq.NewDecoder()
		d.Logger = zap.New(core)
		d.Feed([]byte(strings.Repeat("data: garbage\n", groq.DefaultFailureThreshold+1)))
		d.Feed([]byte("data: {\"id\":\"after\"}\n"))
		got, err := d.Drain()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "after", got[0].ID)
		assert.Equal(t, 1, logs.FilterMessageSnippet("consecutive stream parse failures").Len())
	})
}

func TestDecoder_Framing(t *testing.T) {
	t.Parallel()

	t.Run("done sentinel yields nothing", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: [DONE]\n"))
		assert.Empty(t, drainAll(t, d))
		assert.True(t, d.Done())

		d.Feed([]byte("data: {\"id\":\"late\"}\n"))
		assert.Empty(t, drainAll(t, d))
	})

	t.Run("skips blank and non-data lines", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte(": keep-alive\n\nevent: message\ndata: \ndata:{\"id\":\"c1\"}\r\n\r\n"))
		got := drainAll(t, d)
		require.Len(t, got, 1)
		assert.Equal(t, "c1", got[0].ID)
	})

	t.Run("multi-byte character split across feeds", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		rec := []byte("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"é\"}}]}\n")
		cut := strings.Index(string(rec), "é") + 1
		d.Feed(rec[:cut])
		assert.Empty(t, drainAll(t, d))
		d.Feed(rec[cut:])
		got := drainAll(t, d)
		require.Len(t, got, 1)
		assert.Equal(t, "é", got[0].Content())
	})

	t.Run("invalid utf-8 is replaced", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: {\"id\":\"c\xff1\"}\n"))
		got := drainAll(t, d)
		require.Len(t, got, 1)
		assert.Equal(t, "c\uFFFD1", got[0].ID)
	})

	t.Run("flush decodes unterminated remainder", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: {\"id\":\"tail\"}"))
		assert.Empty(t, drainAll(t, d))
		got, err := d.Flush()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "tail", got[0].ID)
	})

	t.Run("error record is reported", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.Feed([]byte("data: {\"error\":{\"message\":\"overloaded\",\"type\":\"server_error\"}}\n"))
		_, err := d.Drain()
		var gerr *groq.Error
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, groq.KindAPI, gerr.Kind)
		assert.Equal(t, "overloaded", gerr.Message)
	})

	t.Run("oversized record is rejected", func(t *testing.T) {
		t.Parallel()
		d := groq.NewDecoder()
		d.MaxRecordSize = 16
		d.Feed([]byte("data: {\"id\":\"0123456789\""))
		_, err := d.Drain()
		assert.ErrorIs(t, err, groq.ErrStreamDecode)
	})
}
