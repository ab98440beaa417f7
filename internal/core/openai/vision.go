package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/markdave123-py/spacechat/internal/core"
)

var _ core.VisionProvider = (*Client)(nil)

// base64Window is a multiple of 3 bytes, so every window encodes without
// padding and the windows concatenate into one valid encoding.
const base64Window = 3 * 16 * 1024

// encodeBase64 encodes data window by window into a pre-sized builder instead
// of one EncodeToString call over the whole buffer.
func encodeBase64(data []byte) string {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))

	buf := make([]byte, base64.StdEncoding.EncodedLen(base64Window))
	for off := 0; off < len(data); off += base64Window {
		end := off + base64Window
		if end > len(data) {
			end = len(data)
		}
		n := base64.StdEncoding.EncodedLen(end - off)
		base64.StdEncoding.Encode(buf[:n], data[off:end])
		b.Write(buf[:n])
	}
	return b.String()
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + encodeBase64(data)
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string       `json:"role"`
	Content []visionPart `json:"content"`
}

type visionPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
	File     *visionFile     `json:"file,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionFile struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error) {
	return c.vision(ctx, instruction, visionPart{
		Type:     "image_url",
		ImageURL: &visionImageURL{URL: dataURL(mimeType, data)},
	})
}

// ExtractPDF sends the original PDF bytes as a file part.
func (c *Client) ExtractPDF(ctx context.Context, filename string, data []byte, instruction string) (string, error) {
	return c.vision(ctx, instruction, visionPart{
		Type: "file",
		File: &visionFile{Filename: filename, FileData: dataURL("application/pdf", data)},
	})
}

func (c *Client) vision(ctx context.Context, instruction string, attachment visionPart) (string, error) {
	body := visionRequest{
		Model: c.visionModel,
		Messages: []visionMessage{{
			Role:    "user",
			Content: []visionPart{{Type: "text", Text: instruction}, attachment},
		}},
	}

	var out visionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", body, &out); err != nil {
		return "", fmt.Errorf("vision: %w", classify(err))
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("vision: no response choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
