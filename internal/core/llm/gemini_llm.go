package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

var (
	_ core.LLMProvider    = (*GeminiLLM)(nil)
	_ core.VisionProvider = (*GeminiLLM)(nil)
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// DescribeImage sends the image inline with the instruction and returns the
// model's text.
func (g *GeminiLLM) DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" || format == mimeType {
		format = "png"
	}
	return g.generate(ctx, genai.ImageData(format, data), genai.Text(instruction))
}

// ExtractPDF forwards the PDF bytes untouched; Gemini reads PDFs natively.
func (g *GeminiLLM) ExtractPDF(ctx context.Context, _ string, data []byte, instruction string) (string, error) {
	return g.generate(ctx, genai.Blob{MIMEType: "application/pdf", Data: data}, genai.Text(instruction))
}

func (g *GeminiLLM) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	m := g.client.GenerativeModel(g.modelName)

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", apperr.ClassifyMessage(err))
	}
	return strings.TrimSpace(responseText(resp)), nil
}

// GenerateStream answers the last turn with the earlier turns as chat history.
func (g *GeminiLLM) GenerateStream(ctx context.Context, systemPrompt string, turns []models.ChatTurn) (core.TextStream, error) {
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		return nil, apperr.NewInvalidRequest("last turn must be a user message")
	}

	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	cs := m.StartChat()
	cs.History = toGeminiHistory(turns[:len(turns)-1])

	ctx, cancel := context.WithCancel(ctx)
	iter := cs.SendMessageStream(ctx, genai.Text(turns[len(turns)-1].Content))
	return &geminiStream{iter: iter, cancel: cancel}, nil
}

// toGeminiHistory maps turns onto Gemini's user/model roles. Gemini wants the
// history to open with a user turn and alternate, so leading model turns are
// dropped and consecutive turns of one role are merged.
func toGeminiHistory(turns []models.ChatTurn) []*genai.Content {
	var out []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		if len(out) == 0 && role == "model" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(t.Content))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	// The new message is sent as a user turn, so the history must end on the model.
	if n := len(out); n > 0 && out[n-1].Role == "user" {
		out = out[:n-1]
	}
	return out
}

type geminiStream struct {
	iter   *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
}

func (s *geminiStream) Next() (string, error) {
	for {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", apperr.ClassifyMessage(err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
