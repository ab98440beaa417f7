package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/core/ingestion_engine"
	"github.com/markdave123-py/spacechat/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	bucket   string
	ingestor ingestion_engine.Ingestor
	index    *ingestion_engine.IndexManager // nil without a remote index
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string, ing ingestion_engine.Ingestor, index *ingestion_engine.IndexManager) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket, ingestor: ing, index: index}
}

// KindOf maps an upload content type to a document kind.
func KindOf(contentType string) (models.DocumentKind, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return models.KindImage, nil
	case mediaType == "application/pdf":
		return models.KindPDF, nil
	case strings.HasPrefix(mediaType, "text/"):
		return models.KindText, nil
	default:
		return "", apperr.NewUnsupportedKind(contentType)
	}
}

// Upload stores the raw bytes, records the document as uploading and queues
// it for ingestion.
func (s *DocumentService) Upload(ctx context.Context, ownerID, spaceID, filename, contentType string, data io.Reader) (*models.Document, error) {
	if _, err := ownedSpace(ctx, s.db, ownerID, spaceID); err != nil {
		return nil, err
	}
	kind, err := KindOf(contentType)
	if err != nil {
		return nil, err
	}
	filename = cleanFilename(filename)
	if filename == "" {
		return nil, apperr.NewInvalidRequest("file name is required")
	}

	docID := uuid.NewString()
	key := objectKey(spaceID, docID, filename)
	if _, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	doc := &models.Document{
		ID:          docID,
		SpaceID:     spaceID,
		OwnerID:     ownerID,
		FileName:    filename,
		Kind:        kind,
		StoragePath: models.StringPtr(key),
		ContentType: contentType,
		Status:      models.StatusUploading,
	}
	return s.create(ctx, doc)
}

// AddNote records pasted text as a document.
func (s *DocumentService) AddNote(ctx context.Context, ownerID, spaceID, title, content string) (*models.Document, error) {
	if _, err := ownedSpace(ctx, s.db, ownerID, spaceID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.NewInvalidRequest("note is empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Note"
	}
	doc := &models.Document{
		ID:          uuid.NewString(),
		SpaceID:     spaceID,
		OwnerID:     ownerID,
		FileName:    title,
		Kind:        models.KindNote,
		Content:     models.StringPtr(content),
		ContentType: "text/plain",
		Status:      models.StatusUploading,
	}
	return s.create(ctx, doc)
}

// AddURL records a page to be scraped during ingestion.
func (s *DocumentService) AddURL(ctx context.Context, ownerID, spaceID, rawURL string) (*models.Document, error) {
	if _, err := ownedSpace(ctx, s.db, ownerID, spaceID); err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.NewInvalidRequest("url must be an absolute http or https address")
	}
	doc := &models.Document{
		ID:          uuid.NewString(),
		SpaceID:     spaceID,
		OwnerID:     ownerID,
		FileName:    u.Host + u.Path,
		Kind:        models.KindURL,
		SourceURL:   models.StringPtr(rawURL),
		ContentType: "text/html",
		Status:      models.StatusUploading,
	}
	return s.create(ctx, doc)
}

func (s *DocumentService) create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		log.Printf("DocumentService: insert failed for doc %s: %v", doc.ID, err)
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{DocumentID: doc.ID}); err != nil {
		log.Printf("DocumentService: failed to enqueue doc %s: %v", doc.ID, err)
	}
	return s.db.GetDocumentByID(ctx, doc.ID)
}

// Reprocess re-runs ingestion for a document regardless of its status.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.owned(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{DocumentID: doc.ID, Force: true}); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", doc.ID, err)
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, ownerID, spaceID string) ([]models.Document, error) {
	if _, err := ownedSpace(ctx, s.db, ownerID, spaceID); err != nil {
		return nil, err
	}
	return s.db.ListDocumentsBySpace(ctx, spaceID)
}

// Delete removes the document, its chunks, its index file and its raw bytes.
// Only the chunk and row deletes are required to succeed.
func (s *DocumentService) Delete(ctx context.Context, ownerID, docID string) error {
	doc, err := s.owned(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", doc.ID, err)
	}
	if s.index != nil && doc.IndexFileID != nil {
		if err := s.index.RemoveFile(ctx, *doc.IndexFileID); err != nil {
			log.Printf("DocumentService: failed to remove index file %s of doc %s: %v", *doc.IndexFileID, doc.ID, err)
		}
	}
	if doc.StoragePath != nil && *doc.StoragePath != "" {
		if err := s.storage.DeleteFile(ctx, s.bucket, *doc.StoragePath); err != nil {
			log.Printf("DocumentService: failed to delete object %s of doc %s: %v", *doc.StoragePath, doc.ID, err)
		}
	}
	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *DocumentService) owned(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, apperr.NewNotFound("document")
	}
	return doc, nil
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}

// objectKey keeps one prefix per space and document.
func objectKey(spaceID, docID, filename string) string {
	return path.Join(spaceID, docID, filename)
}
