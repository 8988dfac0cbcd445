package groq

import (
	"context"
	"net/http"
	"net/url"
)

const modelsPath = "models"

// Model describes a model served by the API.
type Model struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Created       int64  `json:"created"`
	OwnedBy       string `json:"owned_by"`
	Active        bool   `json:"active"`
	ContextWindow int    `json:"context_window"`
	PublicApps    any    `json:"public_apps"`
	MaxTokens     int    `json:"max_completion_tokens,omitempty"`
}

// ModelList is the result of ListModels.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ListModels lists available models.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	var l ModelList
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: modelsPath}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// RetrieveModel returns one model.
func (c *Client) RetrieveModel(ctx context.Context, id string) (*Model, error) {
	if id == "" {
		return nil, invalidRequest("model id is required")
	}
	var m Model
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: modelsPath + "/" + url.PathEscape(id)}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
