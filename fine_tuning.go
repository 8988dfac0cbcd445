package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

const fineTuningPath = "fine_tuning/jobs"

// FineTuningCreateRequest starts a fine-tuning job.
type FineTuningCreateRequest struct {
	BaseModel   string `json:"base_model"`
	InputFileID string `json:"input_file_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
}

// FineTuning is a fine-tuning job.
type FineTuning struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	BaseModel        string          `json:"base_model"`
	Type             string          `json:"type"`
	InputFileID      string          `json:"input_file_id"`
	CreatedAt        int64           `json:"created_at"`
	Status           string          `json:"status"`
	FineTunedModel   string          `json:"fine_tuned_model,omitempty"`
	TrainingProgress json.RawMessage `json:"training_progress,omitempty"`
	Error            json.RawMessage `json:"error,omitempty"`
}

// FineTuningList is one page of fine-tuning jobs.
type FineTuningList struct {
	Object  string       `json:"object"`
	Data    []FineTuning `json:"data"`
	HasMore bool         `json:"has_more"`
}

// CreateFineTuning starts a fine-tuning job.
func (c *Client) CreateFineTuning(ctx context.Context, req FineTuningCreateRequest) (*FineTuning, error) {
	if req.BaseModel == "" || req.InputFileID == "" {
		return nil, invalidRequest("base model and input file id are required")
	}
	var ft FineTuning
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: fineTuningPath, Body: req}, &ft); err != nil {
		return nil, err
	}
	return &ft, nil
}

// RetrieveFineTuning returns one fine-tuning job.
func (c *Client) RetrieveFineTuning(ctx context.Context, id string) (*FineTuning, error) {
	if id == "" {
		return nil, invalidRequest("fine-tuning id is required")
	}
	var ft FineTuning
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: fineTuningPath + "/" + url.PathEscape(id)}, &ft); err != nil {
		return nil, err
	}
	return &ft, nil
}

// ListFineTunings returns one page of fine-tuning jobs.
func (c *Client) ListFineTunings(ctx context.Context, p ListParams) (*FineTuningList, error) {
	var l FineTuningList
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: fineTuningPath, Query: p.query()}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CancelFineTuning requests cancellation of a fine-tuning job.
func (c *Client) CancelFineTuning(ctx context.Context, id string) (*FineTuning, error) {
	if id == "" {
		return nil, invalidRequest("fine-tuning id is required")
	}
	var ft FineTuning
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: fineTuningPath + "/" + url.PathEscape(id) + "/cancel"}, &ft); err != nil {
		return nil, err
	}
	return &ft, nil
}
