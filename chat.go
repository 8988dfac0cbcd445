package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart returns a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart returns an image ContentPart.
func ImagePart(url, detail string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url, Detail: detail}}
}

// MessageContent is either plain text or a list of parts. It marshals as a
// JSON string when Parts is empty.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// Text returns MessageContent holding s.
func Text(s string) MessageContent { return MessageContent{Text: s} }

// Parts returns MessageContent holding parts.
func Parts(parts ...ContentPart) MessageContent { return MessageContent{Parts: parts} }

// String concatenates the text of c.
func (c MessageContent) String() string {
	if len(c.Parts) == 0 {
		return c.Text
	}
	var s string
	for _, p := range c.Parts {
		s += p.Text
	}
	return s
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = MessageContent{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		c.Text = ""
		return json.Unmarshal(data, &c.Parts)
	}
	c.Parts = nil
	return json.Unmarshal(data, &c.Text)
}

// ChatMessage is one message of a conversation.
type ChatMessage struct {
	Role       Role           `json:"role"`
	Content    MessageContent `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// SystemMessage returns a system ChatMessage.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: Text(text)}
}

// UserMessage returns a user ChatMessage.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: Text(text)}
}

// AssistantMessage returns an assistant ChatMessage.
func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: Text(text)}
}

// ToolMessage returns the result of a tool call.
func ToolMessage(toolCallID, text string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: Text(text), ToolCallID: toolCallID}
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the schema of a callable function.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// FunctionTool returns a function Tool.
func FunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{Type: "function", Function: FunctionSpec{Name: name, Description: description, Parameters: parameters}}
}

// ToolCall is a call requested by the model. In stream deltas Index
// identifies the call being extended and Arguments arrives in fragments.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolChoice is either a mode ("none", "auto", "required") or a named
// function.
type ToolChoice struct {
	Mode     string
	Function string
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Function != "" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.Function},
		})
	}
	return json.Marshal(t.Mode)
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		*t = ToolChoice{}
		return json.Unmarshal(data, &t.Mode)
	}
	var v struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = ToolChoice{Function: v.Function.Name}
	return nil
}

// ResponseFormat constrains the response shape.
type ResponseFormat struct {
	Type       string          `json:"type"` // "text", "json_object" or "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// StreamOptions configures streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// SearchSettings configures built-in web search on compound models.
type SearchSettings struct {
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	IncludeImages  *bool    `json:"include_images,omitempty"`
}

// ChatCompletionRequest is the body of a chat completion call. Extra is
// merged into the top-level JSON object for parameters without a field.
type ChatCompletionRequest struct {
	Model               string             `json:"model"`
	Messages            []ChatMessage      `json:"messages"`
	Temperature         *float64           `json:"temperature,omitempty"`
	MaxCompletionTokens *int               `json:"max_completion_tokens,omitempty"`
	TopP                *float64           `json:"top_p,omitempty"`
	N                   *int               `json:"n,omitempty"`
	Seed                *int64             `json:"seed,omitempty"`
	Stop                []string           `json:"stop,omitempty"`
	Stream              bool               `json:"stream,omitempty"`
	StreamOptions       *StreamOptions     `json:"stream_options,omitempty"`
	FrequencyPenalty    *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64           `json:"presence_penalty,omitempty"`
	Logprobs            *bool              `json:"logprobs,omitempty"`
	TopLogprobs         *int               `json:"top_logprobs,omitempty"`
	LogitBias           map[string]float64 `json:"logit_bias,omitempty"`
	Tools               []Tool             `json:"tools,omitempty"`
	ToolChoice          *ToolChoice        `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool              `json:"parallel_tool_calls,omitempty"`
	ResponseFormat      *ResponseFormat    `json:"response_format,omitempty"`
	ReasoningEffort     string             `json:"reasoning_effort,omitempty"`
	ReasoningFormat     string             `json:"reasoning_format,omitempty"`
	SearchSettings      *SearchSettings    `json:"search_settings,omitempty"`
	ServiceTier         string             `json:"service_tier,omitempty"`
	User                string             `json:"user,omitempty"`
	Extra               map[string]any     `json:"-"`
}

func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	type plain ChatCompletionRequest
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Validate checks local constraints before the request is sent.
func (r ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required: %w", ErrValidation)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("at least one message is required: %w", ErrValidation)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return fmt.Errorf("top_p must be in [0, 1], got %g: %w", *r.TopP, ErrValidation)
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2 || *r.FrequencyPenalty > 2) {
		return fmt.Errorf("frequency_penalty must be in [-2, 2], got %g: %w", *r.FrequencyPenalty, ErrValidation)
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2 || *r.PresencePenalty > 2) {
		return fmt.Errorf("presence_penalty must be in [-2, 2], got %g: %w", *r.PresencePenalty, ErrValidation)
	}
	if r.MaxCompletionTokens != nil && *r.MaxCompletionTokens < 0 {
		return fmt.Errorf("max_completion_tokens must be non-negative, got %d: %w", *r.MaxCompletionTokens, ErrValidation)
	}
	if len(r.Stop) > 4 {
		return fmt.Errorf("at most 4 stop sequences are allowed, got %d: %w", len(r.Stop), ErrValidation)
	}
	return nil
}

// Usage reports token consumption and server-side timings.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	QueueTime        float64 `json:"queue_time,omitempty"`
	PromptTime       float64 `json:"prompt_time,omitempty"`
	CompletionTime   float64 `json:"completion_time,omitempty"`
	TotalTime        float64 `json:"total_time,omitempty"`
}

// XGroq carries provider metadata attached to responses.
type XGroq struct {
	ID    string `json:"id,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ChatMessage     `json:"message"`
	FinishReason string          `json:"finish_reason"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// ChatCompletionResponse is a non-streamed completion.
type ChatCompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	XGroq             *XGroq   `json:"x_groq,omitempty"`
}

// Content returns the text of the first choice.
func (r ChatCompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content.String()
}

// ChunkDelta is the incremental content of a streamed choice.
type ChunkDelta struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChunkChoice is one streamed choice.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one decoded stream record.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	Choices           []ChunkChoice `json:"choices"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	XGroq             *XGroq        `json:"x_groq,omitempty"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// Content returns the text delta of the first choice.
func (c ChatCompletionChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

const chatCompletionsPath = "chat/completions"

// ChatCompletion creates a non-streamed chat completion. Rate-limited
// attempts are retried according to the client's backoff.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	req.Stream = false
	req.StreamOptions = nil
	var resp ChatCompletionResponse
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: chatCompletionsPath, Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
