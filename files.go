package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

const filesPath = "files"

// File purposes.
const (
	PurposeBatch    = "batch"
	PurposeFineTune = "fine-tune"
)

// maxJSONLLine bounds a single line read while validating an upload.
const maxJSONLLine = 4 << 20

// File is an uploaded file.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

// FileList is the result of ListFiles.
type FileList struct {
	Object string `json:"object"`
	Data   []File `json:"data"`
}

// FileDeletion reports the outcome of DeleteFile.
type FileDeletion struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// FileCreateRequest is a validated upload. Build it with
// NewFileCreateRequest.
type FileCreateRequest struct {
	Path    string
	Purpose string
}

// NewFileCreateRequest checks that path names a .jsonl file whose
// non-blank lines are all valid JSON.
func NewFileCreateRequest(path, purpose string) (FileCreateRequest, error) {
	if filepath.Ext(path) != ".jsonl" {
		return FileCreateRequest{}, invalidRequest("file %s must have .jsonl extension", path)
	}
	if purpose == "" {
		purpose = PurposeBatch
	}
	f, err := os.Open(path)
	if err != nil {
		return FileCreateRequest{}, &Error{Kind: KindInvalidRequest, Message: "open file", Err: err}
	}
	defer f.Close()
	if err := ValidateJSONL(f); err != nil {
		return FileCreateRequest{}, err
	}
	return FileCreateRequest{Path: path, Purpose: purpose}, nil
}

// ValidateJSONL checks that every non-blank line of r is valid JSON.
func ValidateJSONL(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxJSONLLine)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if !json.Valid(b) {
			return invalidRequest("invalid JSONL at line %d", line)
		}
	}
	if err := sc.Err(); err != nil {
		return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("read line %d", line+1), Err: err}
	}
	return nil
}

// CreateFile uploads a file.
func (c *Client) CreateFile(ctx context.Context, req FileCreateRequest) (*File, error) {
	form := &Form{}
	form.Add("purpose", req.Purpose)
	form.Files = append(form.Files, FormFile{Field: "file", Filename: filepath.Base(req.Path), Path: req.Path})
	var f File
	if err := c.doJSON(ctx, &Request{Method: http.MethodPost, Path: filesPath, Form: form}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles lists uploaded files.
func (c *Client) ListFiles(ctx context.Context) (*FileList, error) {
	var l FileList
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: filesPath}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// RetrieveFile returns metadata for one file.
func (c *Client) RetrieveFile(ctx context.Context, id string) (*File, error) {
	if id == "" {
		return nil, invalidRequest("file id is required")
	}
	var f File
	if err := c.doJSON(ctx, &Request{Method: http.MethodGet, Path: filesPath + "/" + url.PathEscape(id)}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFile deletes one file.
func (c *Client) DeleteFile(ctx context.Context, id string) (*FileDeletion, error) {
	if id == "" {
		return nil, invalidRequest("file id is required")
	}
	var d FileDeletion
	if err := c.doJSON(ctx, &Request{Method: http.MethodDelete, Path: filesPath + "/" + url.PathEscape(id)}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// FileContent downloads the content of a file, such as batch output.
func (c *Client) FileContent(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, invalidRequest("file id is required")
	}
	resp, err := c.do(ctx, &Request{Method: http.MethodGet, Path: filesPath + "/" + url.PathEscape(id) + "/content"})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
