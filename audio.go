package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	transcriptionsPath = "audio/transcriptions"
	translationsPath   = "audio/translations"
)

// SupportedAudioExtensions lists the file extensions accepted for audio
// uploads.
var SupportedAudioExtensions = []string{"flac", "mp3", "mp4", "mpeg", "mpga", "m4a", "ogg", "opus", "wav", "webm"}

// AudioRequest describes a transcription or translation. Exactly one of
// File and URL must be set. Language and TimestampGranularities apply to
// transcriptions only.
type AudioRequest struct {
	File                   string
	URL                    string
	Model                  string
	Language               string
	Prompt                 string
	ResponseFormat         string // json, text, srt, verbose_json or vtt
	Temperature            *float64
	TimestampGranularities []string
}

// Validate checks local constraints before the upload.
func (r AudioRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required: %w", ErrValidation)
	}
	if (r.File == "") == (r.URL == "") {
		return fmt.Errorf("exactly one of file or url is required: %w", ErrValidation)
	}
	if r.File != "" && !supportedAudio(r.File) {
		return fmt.Errorf("unsupported audio format %q, expected one of %s: %w",
			filepath.Ext(r.File), strings.Join(SupportedAudioExtensions, ", "), ErrValidation)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 1) {
		return fmt.Errorf("temperature must be in [0, 1], got %g: %w", *r.Temperature, ErrValidation)
	}
	return nil
}

func supportedAudio(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, e := range SupportedAudioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (r AudioRequest) form(translation bool) *Form {
	f := &Form{}
	f.Add("model", r.Model)
	f.Add("url", r.URL)
	if !translation {
		f.Add("language", r.Language)
		for _, g := range r.TimestampGranularities {
			f.Fields = append(f.Fields, FormField{Name: "timestamp_granularities[]", Value: g})
		}
	}
	f.Add("prompt", r.Prompt)
	f.Add("response_format", r.ResponseFormat)
	if r.Temperature != nil {
		f.Add("temperature", strconv.FormatFloat(*r.Temperature, 'f', -1, 64))
	}
	if r.File != "" {
		f.Files = append(f.Files, FormFile{Field: "file", Filename: filepath.Base(r.File), Path: r.File})
	}
	return f
}

// Transcription is the text recognised in an audio file. For text, srt and
// vtt response formats Text holds the raw body.
type Transcription struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Segments json.RawMessage `json:"segments,omitempty"`
	Words    json.RawMessage `json:"words,omitempty"`
	XGroq    *XGroq          `json:"x_groq,omitempty"`
}

// Transcribe converts speech to text in the spoken language.
func (c *Client) Transcribe(ctx context.Context, req AudioRequest) (*Transcription, error) {
	return c.audio(ctx, transcriptionsPath, req, false)
}

// Translate converts speech to English text.
func (c *Client) Translate(ctx context.Context, req AudioRequest) (*Transcription, error) {
	return c.audio(ctx, translationsPath, req, true)
}

func (c *Client) audio(ctx context.Context, path string, req AudioRequest, translation bool) (*Transcription, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	resp, err := c.do(ctx, &Request{Method: http.MethodPost, Path: path, Form: req.form(translation)})
	if err != nil {
		return nil, err
	}
	switch req.ResponseFormat {
	case "text", "srt", "vtt":
		return &Transcription{Text: string(resp.Body)}, nil
	}
	var t Transcription
	if err := json.Unmarshal(resp.Body, &t); err != nil {
		return nil, fmt.Errorf("groq: decode %s response: %w", path, err)
	}
	return &t, nil
}
