package groq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Decoder limits.
const (
	// DefaultFailureThreshold is the number of consecutive undecodable
	// records after which the decoder logs a warning. Decoding continues.
	DefaultFailureThreshold = 5

	// DefaultMaxRecordSize bounds the unterminated remainder kept between
	// reads.
	DefaultMaxRecordSize = 1 << 20
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns arbitrarily fragmented reads of a chat completion event
// stream into chunks. Only newline-terminated records are decoded; the
// unterminated remainder is kept for the next Feed. A Decoder belongs to a
// single stream and is not safe for concurrent use.
//
// Undecodable records are repaired when possible and dropped otherwise,
// unless Strict is set, in which case Drain reports them as errors of kind
// KindStreamDecode.
type Decoder struct {
	Strict           bool
	FailureThreshold int
	MaxRecordSize    int
	Logger           *zap.Logger

	buf      []byte
	failures int
	dropped  int
	done     bool
}

// NewDecoder returns a Decoder with default limits and a no-op logger.
func NewDecoder() *Decoder {
	return &Decoder{
		FailureThreshold: DefaultFailureThreshold,
		MaxRecordSize:    DefaultMaxRecordSize,
		Logger:           zap.NewNop(),
	}
}

// Feed appends raw bytes to the buffer. Invalid UTF-8 is replaced when the
// record is decoded, so multi-byte characters split across reads survive.
func (d *Decoder) Feed(p []byte) {
	if d.done {
		return
	}
	d.buf = append(d.buf, p...)
}

// Drain decodes every complete record in the buffer and keeps only the
// bytes after the last newline.
func (d *Decoder) Drain() ([]ChatCompletionChunk, error) {
	i := bytes.LastIndexByte(d.buf, '\n')
	if i < 0 {
		if d.MaxRecordSize > 0 && len(d.buf) > d.MaxRecordSize {
			return nil, &Error{
				Kind:    KindStreamDecode,
				Message: fmt.Sprintf("record exceeds %d bytes without a line terminator", d.MaxRecordSize),
			}
		}
		return nil, nil
	}
	complete := d.buf[:i]
	rest := d.buf[i+1:]
	chunks, err := d.decodeLines(complete)
	d.buf = append(d.buf[:0], rest...)
	return chunks, err
}

// Flush decodes whatever remains in the buffer as a final record. It is
// called when the connection closes without a trailing newline.
func (d *Decoder) Flush() ([]ChatCompletionChunk, error) {
	if len(d.buf) == 0 {
		return nil, nil
	}
	rest := d.buf
	d.buf = nil
	return d.decodeLines(rest)
}

// Done reports whether the terminal sentinel was seen.
func (d *Decoder) Done() bool { return d.done }

// Buffered returns the number of bytes awaiting a line terminator.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Failures returns the current count of consecutive undecodable records.
func (d *Decoder) Failures() int { return d.failures }

// Dropped returns the total number of records that could not be decoded
// or repaired.
func (d *Decoder) Dropped() int { return d.dropped }

func (d *Decoder) decodeLines(data []byte) ([]ChatCompletionChunk, error) {
	var chunks []ChatCompletionChunk
	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		if d.done {
			break
		}
		payload, ok := recordPayload(raw)
		if !ok {
			continue
		}
		if strings.TrimSpace(payload) == doneSentinel {
			d.done = true
			break
		}
		chunk, err := d.decodeRecord(payload)
		if err != nil {
			return chunks, err
		}
		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}
	return chunks, nil
}

// recordPayload strips framing from one line. It reports false for blank
// lines, comments, and fields other than data.
func recordPayload(raw []byte) (string, bool) {
	line := strings.TrimRight(string(bytes.ToValidUTF8(raw, []byte("\uFFFD"))), "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
	if strings.TrimSpace(payload) == "" {
		return "", false
	}
	return payload, true
}

// streamRecord detects error objects sent in place of a chunk.
type streamRecord struct {
	ChatCompletionChunk
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error,omitempty"`
}

func (d *Decoder) decodeRecord(payload string) (*ChatCompletionChunk, error) {
	rec, err := parseRecord(payload)
	if err == nil {
		d.failures = 0
		return d.checkRecord(rec)
	}

	d.failures++
	d.Logger.Debug("failed to parse stream record",
		zap.Int("consecutive_failures", d.failures),
		zap.Error(err),
	)
	if d.FailureThreshold > 0 && d.failures == d.FailureThreshold {
		d.Logger.Warn("too many consecutive stream parse failures, continuing",
			zap.Int("threshold", d.FailureThreshold),
		)
	}

	if rec, rerr := parseRecord(repairJSON(payload)); rerr == nil {
		d.Logger.Debug("recovered partial stream record")
		return d.checkRecord(rec)
	}

	d.dropped++
	if d.Strict {
		return nil, &Error{
			Kind:    KindStreamDecode,
			Message: "undecodable stream record",
			Raw:     []byte(payload),
			Err:     err,
		}
	}
	return nil, nil
}

func (d *Decoder) checkRecord(rec *streamRecord) (*ChatCompletionChunk, error) {
	if rec.Error != nil {
		e := &Error{
			Kind:    KindAPI,
			Type:    rec.Error.Type,
			Code:    rawString(rec.Error.Code),
			Message: rec.Error.Message,
		}
		if e.Type == "rate_limit_exceeded" {
			e.Kind = KindRateLimited
		}
		return nil, e
	}
	return &rec.ChatCompletionChunk, nil
}

func parseRecord(payload string) (*streamRecord, error) {
	var rec streamRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// repairJSON closes a truncated string and any unbalanced objects. It only
// appends; it never rewrites existing content.
func repairJSON(s string) string {
	if strings.Count(s, `"`)%2 == 1 {
		s += `"`
	}
	if open, closed := strings.Count(s, "{"), strings.Count(s, "}"); open > closed {
		s += strings.Repeat("}", open-closed)
	}
	return s
}
