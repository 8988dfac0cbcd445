package groq

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Transport issues requests against the API. Implementations attach the
// credential to every request and must be safe for concurrent use.
// Transport errors are connectivity failures; any HTTP status, including
// errors, is returned as a response.
type Transport interface {
	// Send issues req and buffers the whole response body.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Open issues req and returns the live response body. The caller must
	// close it. Cancelling ctx aborts the read.
	Open(ctx context.Context, req *Request) (*StreamResponse, error)
}

// Request describes one API call relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is encoded as JSON. Ignored when Form is set.
	Body any

	// Form is sent as multipart/form-data.
	Form *Form

	// RequestID correlates every attempt of one logical operation.
	RequestID string
}

// Form is a multipart form. Field order is preserved.
type Form struct {
	Fields []FormField
	Files  []FormFile
}

// FormField is a plain form value.
type FormField struct {
	Name  string
	Value string
}

// FormFile is a file part. Content is used when set; otherwise the file at
// Path is read on every attempt.
type FormFile struct {
	Field    string
	Filename string
	Path     string
	Content  []byte
}

// Add appends a field when value is non-empty.
func (f *Form) Add(name, value string) {
	if value == "" {
		return
	}
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
}

// Response is a buffered response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StreamResponse is a response whose body is read incrementally.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
