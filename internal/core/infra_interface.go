package core

import (
	"context"
	"io"

	"github.com/markdave123-py/spacechat/internal/models"
)

// DbClient defines all persistence operations your services will need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Every write is a single-row (or single-batch) statement; nothing spans a transaction
// with the remote index provider.
type DbClient interface {
	CreateSpace(ctx context.Context, space *models.Space) error
	GetSpace(ctx context.Context, id string) (*models.Space, error)
	// ClaimSpaceIndexHandle stores handle only if the space has none yet and
	// returns whichever handle the space ends up with.
	ClaimSpaceIndexHandle(ctx context.Context, spaceID, handle string) (string, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsBySpace(ctx context.Context, spaceID string) ([]models.Document, error)
	// ListPendingDocuments returns documents still uploading or indexing,
	// oldest first.
	ListPendingDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, upd models.StatusUpdate) error
	DeleteDocument(ctx context.Context, id string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountSpaceChunks(ctx context.Context, spaceID string) (int, error)
	// SearchSpaceChunks ranks by queryVec when given, otherwise by text match on query.
	SearchSpaceChunks(ctx context.Context, spaceID, query string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	CreateShareLink(ctx context.Context, link *models.ShareLink) error
	GetShareLink(ctx context.Context, id string) (*models.ShareLink, error)
	GetActiveShareLinkByToken(ctx context.Context, token string) (*models.ShareLink, error)
	RecordShareLinkUse(ctx context.Context, id string) error
	SetShareLinkRevoked(ctx context.Context, id string, revoked bool) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
