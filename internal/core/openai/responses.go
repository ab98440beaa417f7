package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

var _ core.RetrievalGenerator = (*Client)(nil)

type responsesRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions,omitempty"`
	Input        []responseInput `json:"input"`
	Tools        []responseTool  `json:"tools,omitempty"`
	Stream       bool            `json:"stream"`
}

type responseInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseTool struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids"`
}

// StreamResponse starts a streamed /responses call with file_search bound to
// the request's index. The caller owns the returned event stream body.
func (c *Client) StreamResponse(ctx context.Context, r core.RetrievalRequest) (io.ReadCloser, error) {
	body := responsesRequest{
		Model:        c.model,
		Instructions: r.Instructions,
		Stream:       true,
	}
	for _, t := range r.Turns {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "assistant"
		}
		body.Input = append(body.Input, responseInput{Role: role, Content: t.Content})
	}
	if r.IndexHandle != "" {
		body.Tools = []responseTool{{Type: "file_search", VectorStoreIDs: []string{r.IndexHandle}}}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/responses", bytes.NewReader(b), "application/json")
	if err != nil {
		return nil, classify(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(req)
	if err != nil {
		return nil, classify(err)
	}
	return resp.Body, nil
}
