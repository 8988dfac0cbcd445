// Package http implements groq.Transport over net/http.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fwojciec/groq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Interface compliance check.
var _ groq.Transport = (*Client)(nil)

const (
	userAgent = "groq-go"

	// maxResponseBody bounds buffered responses.
	maxResponseBody = 10 << 20
)

// Client implements [groq.Transport]. Buffered requests use a client with a
// per-attempt timeout; streams use a client without one and are bounded by
// their context only.
type Client struct {
	apiKey       string
	baseURL      string
	timeout      time.Duration
	proxy        *url.URL
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client. Streams use a copy of it
// without a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each buffered attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithProxy routes all requests through proxy.
func WithProxy(proxy *url.URL) Option {
	return func(c *Client) { c.proxy = proxy }
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. Waiting for a token honours the request context.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger for request and response diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] that authenticates with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: groq.DefaultBaseURL,
		timeout: groq.DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: newRoundTripper(c.proxy)}
	}
	hc := *c.httpClient
	hc.Timeout = c.timeout
	sc := *c.httpClient
	sc.Timeout = 0
	c.httpClient, c.streamClient = &hc, &sc
	return c
}

func newRoundTripper(proxy *url.URL) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

// Send issues req and buffers the response body.
func (c *Client) Send(ctx context.Context, req *groq.Request) (*groq.Response, error) {
	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logFailure(req, start, err)
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		c.logFailure(req, start, err)
		return nil, fmt.Errorf("http: read response: %w", err)
	}
	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("http: response body exceeds %d bytes", maxResponseBody)
	}
	c.logResponse(req, resp, start)
	return &groq.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Open issues req and returns the live response body.
func (c *Client) Open(ctx context.Context, req *groq.Request) (*groq.StreamResponse, error) {
	httpReq, err := c.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		c.logFailure(req, start, err)
		return nil, fmt.Errorf("http: %w", err)
	}
	c.logResponse(req, resp, start)
	return &groq.StreamResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

func (c *Client) newRequest(ctx context.Context, req *groq.Request, stream bool) (*http.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("http: rate limit: %w", err)
		}
	}

	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	var contentType string
	switch {
	case req.Form != nil:
		buf, ct, err := encodeForm(req.Form)
		if err != nil {
			return nil, localFailure(req, "encode form", err)
		}
		body, contentType = buf, ct
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, localFailure(req, "encode request", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, localFailure(req, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-Id", req.RequestID)
	}
	return httpReq, nil
}

// localFailure reports a request that could not be built. Nothing was sent,
// so the failure is an invalid request rather than a transport error.
func localFailure(req *groq.Request, msg string, err error) *groq.Error {
	return &groq.Error{Kind: groq.KindInvalidRequest, Message: "http: " + msg, RequestID: req.RequestID, Err: err}
}

// encodeForm renders f as multipart/form-data. Files are read from disk on
// every call so a retried request carries the full content again.
func encodeForm(f *groq.Form) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.Name, err)
		}
	}
	for _, file := range f.Files {
		part, err := w.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", file.Field, err)
		}
		if file.Content != nil {
			if _, err := part.Write(file.Content); err != nil {
				return nil, "", fmt.Errorf("write form file %s: %w", file.Field, err)
			}
			continue
		}
		if err := copyFile(part, file.Path); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (c *Client) logResponse(req *groq.Request, resp *http.Response, start time.Time) {
	c.logger.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", req.RequestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
}

func (c *Client) logFailure(req *groq.Request, start time.Time, err error) {
	c.logger.Debug("api request failed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", req.RequestID),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
}
