package core

import (
	"context"
	"io"

	"github.com/markdave123-py/spacechat/internal/models"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TextStream yields incremental answer text until io.EOF.
type TextStream interface {
	Next() (string, error)
	Close() error
}

// LLMProvider generates answers without a remote retrieval index. Used by the
// chunk fallback path.
type LLMProvider interface {
	GenerateStream(ctx context.Context, systemPrompt string, turns []models.ChatTurn) (TextStream, error)
}

// VisionProvider turns image or PDF bytes into text following an instruction.
type VisionProvider interface {
	DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error)
	ExtractPDF(ctx context.Context, filename string, data []byte, instruction string) (string, error)
}

// IndexProvider owns the remote per-space retrieval index.
type IndexProvider interface {
	CreateIndex(ctx context.Context, name string) (handle string, err error)
	DeleteIndex(ctx context.Context, handle string) error
	UploadFile(ctx context.Context, filename string, content []byte) (fileID string, err error)
	AttachFile(ctx context.Context, handle, fileID string) error
	DeleteFile(ctx context.Context, fileID string) error
}

// RetrievalRequest is a generation call grounded on one index.
type RetrievalRequest struct {
	Instructions string
	Turns        []models.ChatTurn // oldest first, last one is the new visitor message
	IndexHandle  string
}

// RetrievalGenerator streams a retrieval-augmented answer. The returned body is
// the provider's raw event stream; errors before the first byte are classified
// with apperr codes.
type RetrievalGenerator interface {
	StreamResponse(ctx context.Context, req RetrievalRequest) (io.ReadCloser, error)
}
