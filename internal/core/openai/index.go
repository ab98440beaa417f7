package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/markdave123-py/spacechat/internal/core"
)

var _ core.IndexProvider = (*Client)(nil)

type vectorStore struct {
	ID string `json:"id"`
}

type vectorStoreFile struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // in_progress, completed, cancelled, failed
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

// CreateIndex creates a vector store and returns its id.
func (c *Client) CreateIndex(ctx context.Context, name string) (string, error) {
	var vs vectorStore
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]string{"name": name}, &vs); err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	if vs.ID == "" {
		return "", fmt.Errorf("create vector store: empty id in response")
	}
	return vs.ID, nil
}

func (c *Client) DeleteIndex(ctx context.Context, handle string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(handle), nil, nil); err != nil {
		return fmt.Errorf("delete vector store: %w", err)
	}
	return nil
}

// UploadFile uploads content as a retrieval file and returns the file id.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("write purpose: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	var f struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if f.ID == "" {
		return "", fmt.Errorf("upload file: empty id in response")
	}
	return f.ID, nil
}

// AttachFile adds an uploaded file to a vector store and waits until the
// store has finished indexing it.
func (c *Client) AttachFile(ctx context.Context, handle, fileID string) error {
	path := "/vector_stores/" + url.PathEscape(handle) + "/files"

	var vf vectorStoreFile
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"file_id": fileID}, &vf); err != nil {
		return fmt.Errorf("attach file: %w", err)
	}

	for vf.Status == "in_progress" {
		select {
		case <-ctx.Done():
			return fmt.Errorf("attach file %s: %w", fileID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
		if err := c.doJSON(ctx, http.MethodGet, path+"/"+url.PathEscape(fileID), nil, &vf); err != nil {
			return fmt.Errorf("poll attached file: %w", err)
		}
	}

	switch vf.Status {
	case "completed", "":
		return nil
	default:
		msg := vf.Status
		if vf.LastError != nil && vf.LastError.Message != "" {
			msg = vf.LastError.Message
		}
		return fmt.Errorf("attach file %s: indexing %s", fileID, msg)
	}
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
