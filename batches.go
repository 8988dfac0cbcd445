package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const batchesPath = "batches"

// Batch statuses.
const (
	BatchValidating = "validating"
	BatchFailed     = "failed"
	BatchInProgress = "in_progress"
	BatchFinalizing = "finalizing"
	BatchCompleted  = "completed"
	BatchExpired    = "expired"
	BatchCancelling = "cancelling"
	BatchCancelled  = "cancelled"
)

// BatchCreateRequest starts a batch job over an uploaded JSONL file.
type BatchCreateRequest struct {
	InputFileID      string         `json:"input_file_id"`
	Endpoint         string         `json:"endpoint"`
	CompletionWindow string         `json:"completion_window"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// BatchRequestCounts tallies requests in a batch.
type BatchRequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Batch is a batch job.
type Batch struct {
	ID               string             `json:"id"`
	Object           string             `json:"object"`
	Endpoint         string             `json:"endpoint"`
	Errors           json.RawMessage    `json:"errors,omitempty"`
	InputFileID      string             `json:"input_file_id"`
	CompletionWindow string             `json:"completion_window"`
	Status           string             `json:"status"`
	OutputFileID     string             `json:"output_file_id,omitempty"`
	ErrorFileID      string             `json:"error_file_id,omitempty"`
	CreatedAt        int64              `json:"created_at"`
	InProgressAt     int64              `json:"in_progress_at,omitempty"`
	ExpiresAt        int64              `json:"expires_at,omitempty"`
	FinalizingAt     int64              `json:"finalizing_at,omitempty"`
	CompletedAt      int64              `json:"completed_at,omitempty"`
	FailedAt         int64              `json:"failed_at,omitempty"`
	ExpiredAt        int64              `json:"expired_at,omitempty"`
	CancellingAt     int64              `json:"cancelling_at,omitempty"`
	CancelledAt      int64              `json:"cancelled_at,omitempty"`
	RequestCounts    BatchRequestCounts `json:"request_counts"`
	Metadata         map[string]any     `json:"metadata,omitempty"`
}

// Done reports whether the batch reached a terminal status.
func (b Batch) Done() bool {
	switch b.Status {
	case BatchCompleted, BatchFailed, BatchExpired, BatchCancelled:
		return true
	}
	return false
}

// BatchList is one page of batches.
type BatchList struct {
	Object  string  `json:"object"`
	Data    []Batch `json:"data"`
	FirstID string  `json:"first_id,omitempty"`
	LastID  string  `json:"last_id,omitempty"`
	HasMore bool    `json:"has_more"`
}

// ListParams paginates list calls. Zero values are omitted.
type ListParams struct {
	After string
	Limit int
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.After != "" {
		q.Set("after", p.After)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// CreateBatch starts a batch job. Endpoint defaults to chat completions
// and CompletionWindow to 24h.
func (c *Client) CreateBatch(ctx context.Context, req BatchCreateRequest) (*Batch, error) {
	if req.InputFileID == "" {
		return nil, invalidRequest("input file id is required")
	}
	if req.Endpoint == "" {
		req.Endpoint = "/v1/" + chatCompletionsPath
	}
	if req.CompletionWindow == "" {
		req.CompletionWindow = "24h"
	}
	var b Batch
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: batchesPath, Body: req}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// RetrieveBatch returns one batch.
func (c *Client) RetrieveBatch(ctx context.Context, id string) (*Batch, error) {
	if id == "" {
		return nil, invalidRequest("batch id is required")
	}
	var b Batch
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: batchesPath + "/" + url.PathEscape(id)}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns one page of batches.
func (c *Client) ListBatches(ctx context.Context, p ListParams) (*BatchList, error) {
	var l BatchList
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: batchesPath, Query: p.query()}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CancelBatch requests cancellation of a batch.
func (c *Client) CancelBatch(ctx context.Context, id string) (*Batch, error) {
	if id == "" {
		return nil, invalidRequest("batch id is required")
	}
	var b Batch
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: batchesPath + "/" + url.PathEscape(id) + "/cancel"}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// WaitBatch polls a batch every interval until it reaches a terminal status
// or ctx is done. onPoll, when non-nil, sees every intermediate state.
func (c *Client) WaitBatch(ctx context.Context, id string, interval time.Duration, onPoll func(*Batch)) (*Batch, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		b, err := c.RetrieveBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(b)
		}
		if b.Done() {
			return b, nil
		}
		c.logger.Debug("batch pending",
			zap.String("batch_id", id),
			zap.String("status", b.Status),
			zap.Int("completed", b.RequestCounts.Completed),
			zap.Int("total", b.RequestCounts.Total),
		)
		if err := c.sleep(ctx, interval); err != nil {
			return b, err
		}
	}
}
