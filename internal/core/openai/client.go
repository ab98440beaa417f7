// Package openai talks to an OpenAI-compatible REST API. It provides the
// per-space retrieval index (vector stores + files), the streaming retrieval
// generation endpoint and vision extraction.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/spacechat/internal/apperr"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = time.Second
)

// Config holds configuration for the client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // retrieval generation
	VisionModel string
	// RPS caps outgoing requests per second; <= 0 disables shaping.
	RPS float64
	// Timeout bounds every non-streaming call.
	Timeout time.Duration
	// PollInterval is how often an attached file is checked until indexed.
	PollInterval time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	http         *http.Client
	baseURL      string
	apiKey       string
	model        string
	visionModel  string
	timeout      time.Duration
	pollInterval time.Duration
	limiter      *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPClient == nil {
		// No client-wide timeout: it would cut off streamed answers.
		cfg.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &Client{
		http:         cfg.HTTPClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		visionModel:  cfg.VisionModel,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		limiter:      rate.NewLimiter(limit, 1),
	}, nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("openai error (status %d): %s", e.Status, e.Message)
}

type errorEnvelope struct {
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		// code is a string on most errors and null or a number on a few
		var code string
		if json.Unmarshal(env.Error.Code, &code) == nil {
			apiErr.Code = code
		}
	}
	return apiErr
}

// classify maps an upstream failure onto the chat taxonomy using the HTTP
// status and the structured error code.
func classify(err error) *apperr.AppError {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return apperr.NewChatFailed(err)
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests &&
		(apiErr.Code == "insufficient_quota" || apiErr.Type == "insufficient_quota"):
		return apperr.NewServiceUnavailable(err)
	case apiErr.Status == http.StatusTooManyRequests:
		return apperr.NewRateLimited(err)
	case apiErr.Status == http.StatusUnauthorized,
		apiErr.Status == http.StatusPaymentRequired,
		apiErr.Status == http.StatusForbidden:
		return apperr.NewServiceUnavailable(err)
	default:
		return apperr.NewChatFailed(err)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// send waits for the rate limiter and performs req. Non-2xx answers are
// returned as *APIError with the body consumed.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return resp, nil
}

// doJSON sends a JSON body (nil for none) and decodes the JSON answer into out
// (nil to discard it).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
