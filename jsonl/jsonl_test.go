package jsonl_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fwojciec/groq"
	"github.com/fwojciec/groq/jsonl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chat(prompt string) groq.ChatCompletionRequest {
	return groq.ChatCompletionRequest{
		Model:    "llama-3.1-8b-instant",
		Messages: []groq.ChatMessage{groq.UserMessage(prompt)},
	}
}

func TestWriter(t *testing.T) {
	t.Parallel()

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := jsonl.NewWriter(&buf)
		require.NoError(t, w.Write(jsonl.Request{CustomID: "req-1", Body: chat("a < b?")}))
		require.NoError(t, w.Write(jsonl.Request{CustomID: "req-2", Body: chat("second")}))
		assert.Equal(t, 2, w.Count())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.JSONEq(t, `{
			"custom_id": "req-1",
			"method": "POST",
			"url": "/v1/chat/completions",
			"body": {"model": "llama-3.1-8b-instant", "messages": [{"role": "user", "content": "a < b?"}]}
		}`, lines[0])
		assert.NoError(t, groq.ValidateJSONL(&buf))
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		t.Parallel()
		w := jsonl.NewWriter(&bytes.Buffer{})
		require.NoError(t, w.Write(jsonl.Request{CustomID: "x", Body: chat("one")}))
		err := w.Write(jsonl.Request{CustomID: "x", Body: chat("two")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
		assert.Equal(t, 1, w.Count())
	})

	t.Run("validates the body", func(t *testing.T) {
		t.Parallel()
		w := jsonl.NewWriter(&bytes.Buffer{})
		err := w.Write(jsonl.Request{CustomID: "x", Body: groq.ChatCompletionRequest{Model: "m"}})
		assert.ErrorIs(t, err, groq.ErrValidation)
		assert.Error(t, w.Write(jsonl.Request{Body: chat("no id")}))
	})
}

func TestWriteFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "batch.jsonl")
	require.NoError(t, jsonl.WriteFile(path, []jsonl.Request{
		{CustomID: "1", Body: chat("hi")},
		{CustomID: "2", Body: chat("there")},
	}))

	req, err := groq.NewFileCreateRequest(path, groq.PurposeBatch)
	require.NoError(t, err, "written files pass upload validation")
	assert.Equal(t, path, req.Path)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadResults(t *testing.T) {
	t.Parallel()
	input := `{"id":"batch_req_1","custom_id":"1","response":{"status_code":200,"request_id":"req_a","body":{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}]}}}

{"id":"batch_req_2","custom_id":"2","response":{"status_code":429,"request_id":"req_b","body":{"error":{"message":"Rate limit reached","type":"rate_limit_exceeded"}}}}
{"id":"batch_req_3","custom_id":"3","error":{"code":"batch_expired","message":"not processed in time"}}
`
	results, err := jsonl.ReadResults(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 3)

	resp, err := results[0].Completion()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content())

	_, err = results[1].Completion()
	require.Error(t, err)
	assert.True(t, groq.IsRateLimited(err))
	var gerr *groq.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "req_b", gerr.RequestID)

	_, err = results[2].Completion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_expired")
}

func TestReadResults_ReportsLine(t *testing.T) {
	t.Parallel()
	_, err := jsonl.ReadResults(strings.NewReader("{\"id\":\"a\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	var syntax *json.SyntaxError
	assert.ErrorAs(t, err, &syntax)
}
