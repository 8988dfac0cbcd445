package groq

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed local validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrStreamNotReady indicates Response() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrRetriesExhausted indicates the retry budget ran out before success.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// Kind sentinels, matched by errors.Is against an *Error of that kind.
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRateLimited       = errors.New("rate limited")
	ErrAPI               = errors.New("api error")
	ErrTransport         = errors.New("transport error")
	ErrStreamDecode      = errors.New("stream decode error")
)

// ErrorKind classifies an Error.
type ErrorKind string

const (
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAPI               ErrorKind = "api_error"
	KindTransport         ErrorKind = "transport_error"
	KindStreamDecode      ErrorKind = "stream_decode_error"
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidCredential: ErrInvalidCredential,
	KindInvalidRequest:    ErrInvalidRequest,
	KindRateLimited:       ErrRateLimited,
	KindAPI:               ErrAPI,
	KindTransport:         ErrTransport,
	KindStreamDecode:      ErrStreamDecode,
}

// Error is a classified failure. Fields are populated at construction and
// never changed afterwards, so the predicates are pure functions of them.
type Error struct {
	Kind       ErrorKind
	StatusCode int    // HTTP status, zero when no response was received
	Type       string // machine-readable type reported by the server
	Code       string
	Param      string
	Message    string
	RetryAfter time.Duration // server-provided wait hint, zero when absent
	RequestID  string
	Raw        []byte // raw response body
	Err        error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("groq: ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Type != "" && e.Type != string(e.Kind) {
		fmt.Fprintf(&b, " [%s]", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request id %s)", e.RequestID)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// IsRateLimited reports whether the server asked the caller to slow down.
func (e *Error) IsRateLimited() bool {
	return e.Kind == KindRateLimited ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.Type == "rate_limit_exceeded"
}

// IsAuthError reports whether the credential was rejected.
func (e *Error) IsAuthError() bool {
	return e.Kind == KindInvalidCredential ||
		e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden
}

// IsRetryable reports whether repeating the call may succeed. Only rate
// limiting is transient; transport retries are a client option.
func (e *Error) IsRetryable() bool {
	return e.IsRateLimited() && !errors.Is(e.Err, ErrRetriesExhausted)
}

// IsRateLimited reports whether err is a rate-limited *Error.
func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsRateLimited()
}

// IsAuthError reports whether err is an authentication *Error.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsAuthError()
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsRetryable()
}

// errorBody is the error envelope returned by the API.
type errorBody struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
		Param   string          `json:"param"`
	} `json:"error"`
}

// ErrorFromResponse classifies a non-2xx response. The body is parsed as the
// API error envelope when possible and kept verbatim otherwise.
func ErrorFromResponse(status int, header http.Header, body []byte) *Error {
	e := &Error{
		Kind:       kindForStatus(status),
		StatusCode: status,
		Raw:        body,
		RetryAfter: ParseRetryAfter(header.Get("Retry-After"), time.Now()),
		RequestID:  requestID(header),
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		e.Message = eb.Error.Message
		e.Type = eb.Error.Type
		e.Param = eb.Error.Param
		e.Code = rawString(eb.Error.Code)
	} else {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	if e.Type == "rate_limit_exceeded" {
		e.Kind = KindRateLimited
	}
	return e
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindInvalidCredential
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindAPI
	}
}

func requestID(header http.Header) string {
	for _, k := range []string{"X-Request-Id", "X-Groq-Request-Id"} {
		if v := header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// rawString renders a JSON scalar that may be either a string or a number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ParseRetryAfter parses a Retry-After header value given either as delta
// seconds or as an HTTP date. It returns zero when the value is absent,
// malformed, or in the past.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrValidation,
	}
}

func validationError(err error) *Error {
	return &Error{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
}
