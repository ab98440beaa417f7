package ingestion_engine

import (
	"context"
	"fmt"
	"sync"

	db "github.com/markdave123-py/spacechat/internal/core/database"
	"github.com/markdave123-py/spacechat/internal/models"
)

type fakeIndex struct {
	mu        sync.Mutex
	created   int
	deleted   []string
	uploads   map[string]string // file id -> filename
	contents  map[string][]byte
	attached  map[string][]string // handle -> file ids
	removed   []string
	attachErr error
	createErr error
	uploadErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		uploads:  make(map[string]string),
		contents: make(map[string][]byte),
		attached: make(map[string][]string),
	}
}

func (f *fakeIndex) CreateIndex(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("vs_%d", f.created), nil
}

func (f *fakeIndex) DeleteIndex(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeIndex) UploadFile(_ context.Context, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	id := fmt.Sprintf("file_%d", len(f.uploads)+1)
	f.uploads[id] = filename
	f.contents[id] = content
	return id, nil
}

func (f *fakeIndex) AttachFile(_ context.Context, handle, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[handle] = append(f.attached[handle], fileID)
	return nil
}

func (f *fakeIndex) DeleteFile(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, fileID)
	return nil
}

type fakeVision struct {
	imageText string
	pdfText   string
	err       error
	calls     int
}

func (f *fakeVision) DescribeImage(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.calls++
	return f.imageText, f.err
}

func (f *fakeVision) ExtractPDF(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.calls++
	return f.pdfText, f.err
}

type fakeLocal struct {
	text string
	err  error
}

func (f *fakeLocal) ExtractText(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// statusRecorder records every status written to a document.
type statusRecorder struct {
	*db.MemoryClient
	mu       sync.Mutex
	statuses map[string][]models.DocumentStatus
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{MemoryClient: db.NewMemoryClient(), statuses: make(map[string][]models.DocumentStatus)}
}

func (r *statusRecorder) CreateDocument(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	r.statuses[doc.ID] = append(r.statuses[doc.ID], doc.Status)
	r.mu.Unlock()
	return r.MemoryClient.CreateDocument(ctx, doc)
}

func (r *statusRecorder) UpdateDocumentStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	r.mu.Lock()
	r.statuses[id] = append(r.statuses[id], upd.Status)
	r.mu.Unlock()
	return r.MemoryClient.UpdateDocumentStatus(ctx, id, upd)
}

func (r *statusRecorder) history(id string) []models.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DocumentStatus(nil), r.statuses[id]...)
}
