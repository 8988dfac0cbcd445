// Package jsonl reads and writes the line-delimited JSON files used by
// batch jobs.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fwojciec/groq"
)

// ChatCompletionsURL is the endpoint batch lines target by default.
const ChatCompletionsURL = "/v1/chat/completions"

// maxLine bounds one line of a results file.
const maxLine = 16 << 20

// Request is one line of a batch input file.
type Request struct {
	CustomID string                     `json:"custom_id"`
	Method   string                     `json:"method"`
	URL      string                     `json:"url"`
	Body     groq.ChatCompletionRequest `json:"body"`
}

// Result is one line of a batch output or error file.
type Result struct {
	ID       string    `json:"id"`
	CustomID string    `json:"custom_id"`
	Response *Response `json:"response,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}

// Response is the API response recorded for one batch line.
type Response struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id"`
	Body       json.RawMessage `json:"body"`
}

// Error is a per-line failure that produced no response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Completion decodes the chat completion held by r. A failed line returns
// an error carrying the recorded status or message.
func (r Result) Completion() (*groq.ChatCompletionResponse, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("%s: %s: %s", r.CustomID, r.Error.Code, r.Error.Message)
	}
	if r.Response == nil {
		return nil, fmt.Errorf("%s: no response", r.CustomID)
	}
	if r.Response.StatusCode < 200 || r.Response.StatusCode >= 300 {
		e := groq.ErrorFromResponse(r.Response.StatusCode, nil, r.Response.Body)
		e.RequestID = r.Response.RequestID
		return nil, fmt.Errorf("%s: %w", r.CustomID, e)
	}
	var resp groq.ChatCompletionResponse
	if err := json.Unmarshal(r.Response.Body, &resp); err != nil {
		return nil, fmt.Errorf("%s: unmarshal body: %w", r.CustomID, err)
	}
	return &resp, nil
}

// Writer encodes batch input lines. Custom ids must be unique within one
// file.
type Writer struct {
	enc  *json.Encoder
	seen map[string]struct{}
	n    int
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w), seen: make(map[string]struct{})}
}

// Write validates req and appends it as one line. Method and URL default to
// a chat completion call.
func (w *Writer) Write(req Request) error {
	w.n++
	if req.CustomID == "" {
		return fmt.Errorf("line %d: custom_id is required", w.n)
	}
	if _, ok := w.seen[req.CustomID]; ok {
		return fmt.Errorf("line %d: duplicate custom_id %q", w.n, req.CustomID)
	}
	if err := req.Body.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", w.n, err)
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	if req.URL == "" {
		req.URL = ChatCompletionsURL
	}
	req.Body.Stream = false
	if err := w.enc.Encode(req); err != nil {
		return fmt.Errorf("line %d: %w", w.n, err)
	}
	w.seen[req.CustomID] = struct{}{}
	return nil
}

// Count returns the number of lines written.
func (w *Writer) Count() int { return len(w.seen) }

// WriteFile writes reqs to path through a temporary file so a failed run
// never leaves a truncated input behind.
func WriteFile(path string, reqs []Request) error {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, req := range reqs {
		if err := w.Write(req); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ReadResults decodes every non-blank line of a batch output or error file.
func ReadResults(r io.Reader) ([]Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	var results []Result
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var res Result
		if err := json.Unmarshal(b, &res); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		results = append(results, res)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return results, nil
}
