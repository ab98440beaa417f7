package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/spacechat/internal/apperr"
	db "github.com/markdave123-py/spacechat/internal/core/database"
	"github.com/markdave123-py/spacechat/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/spacechat/internal/core/object-client"
	"github.com/markdave123-py/spacechat/internal/models"
)

type recordingIngestor struct {
	mu   sync.Mutex
	jobs []ingestion_engine.Job
	err  error
}

func (r *recordingIngestor) Start(context.Context, int) {}
func (r *recordingIngestor) Wait() {}

func (r *recordingIngestor) Enqueue(_ context.Context, job ingestion_engine.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return r.err
}

func (r *recordingIngestor) ProcessOne(context.Context, string, bool) error { return nil }

type stubIndex struct {
	removed   []string
	removeErr error
}

func (s *stubIndex) CreateIndex(context.Context, string) (string, error) { return "vs_1", nil }
func (s *stubIndex) DeleteIndex(context.Context, string) error { return nil }
func (s *stubIndex) UploadFile(context.Context, string, []byte) (string, error) { return "file_1", nil }
func (s *stubIndex) AttachFile(context.Context, string, string) error { return nil }

func (s *stubIndex) DeleteFile(_ context.Context, fileID string) error {
	s.removed = append(s.removed, fileID)
	return s.removeErr
}

type fixture struct {
	db    *db.MemoryClient
	obj   *objectclient.MemoryClient
	ing   *recordingIngestor
	index *stubIndex
	docs  *DocumentService
	space *models.Space
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    db.NewMemoryClient(),
		obj:   objectclient.NewMemoryClient(),
		ing:   &recordingIngestor{},
		index: &stubIndex{},
	}
	f.docs = NewDocumentService(f.db, f.obj, "bucket", f.ing, ingestion_engine.NewIndexManager(f.db, f.index))

	space, err := NewSpaceService(f.db).Create(context.Background(), "owner-1", CreateSpaceInput{Name: " Acme ", Description: "Support bot"})
	require.NoError(t, err)
	f.space = space
	return f
}

func TestSpaceService_Create(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Acme", f.space.Name)
	assert.Equal(t, "owner-1", f.space.OwnerID)
	assert.False(t, f.space.HasIndex())

	blank := " "
	space, err := NewSpaceService(f.db).Create(context.Background(), "owner-1", CreateSpaceInput{Name: "B", Tone: &blank})
	require.NoError(t, err)
	assert.Nil(t, space.Tone)

	_, err = NewSpaceService(f.db).Create(context.Background(), "owner-1", CreateSpaceInput{Name: "  "})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidRequest))
}

func TestSpaceService_OwnedHidesOtherOwners(t *testing.T) {
	f := newFixture(t)
	svc := NewSpaceService(f.db)

	got, err := svc.Owned(context.Background(), "owner-1", f.space.ID)
	require.NoError(t, err)
	assert.Equal(t, f.space.ID, got.ID)

	_, err = svc.Owned(context.Background(), "owner-2", f.space.ID)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		contentType string
		want        models.DocumentKind
	}{
		{"image/png", models.KindImage},
		{"application/pdf", models.KindPDF},
		{"text/plain; charset=utf-8", models.KindText},
		{"text/markdown", models.KindText},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, err := KindOf(tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := KindOf("application/zip")
	assert.True(t, apperr.Is(err, apperr.ErrUnsupportedKind))
}

func TestDocumentService_Upload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.docs.Upload(ctx, "owner-1", f.space.ID, "my notes.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusUploading, doc.Status)
	assert.Equal(t, models.KindText, doc.Kind)
	assert.Equal(t, "my_notes.txt", doc.FileName)
	require.NotNil(t, doc.StoragePath)
	assert.Equal(t, f.space.ID+"/"+doc.ID+"/my_notes.txt", *doc.StoragePath)

	data, err := f.obj.GetFile(ctx, "bucket", *doc.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.Len(t, f.ing.jobs, 1)
	assert.Equal(t, ingestion_engine.Job{DocumentID: doc.ID}, f.ing.jobs[0])
}

func TestDocumentService_UploadRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.docs.Upload(ctx, "owner-1", f.space.ID, "a.zip", "application/zip", strings.NewReader("x"))
	assert.True(t, apperr.Is(err, apperr.ErrUnsupportedKind))

	_, err = f.docs.Upload(ctx, "owner-2", f.space.ID, "a.txt", "text/plain", strings.NewReader("x"))
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	assert.Empty(t, f.ing.jobs)
}

func TestDocumentService_NoteAndURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	note, err := f.docs.AddNote(ctx, "owner-1", f.space.ID, "", "Opening hours are 9 to 5.")
	require.NoError(t, err)
	assert.Equal(t, models.KindNote, note.Kind)
	assert.Equal(t, "Note", note.FileName)
	assert.Equal(t, "Opening hours are 9 to 5.", *note.Content)

	_, err = f.docs.AddNote(ctx, "owner-1", f.space.ID, "x", "   ")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidRequest))

	page, err := f.docs.AddURL(ctx, "owner-1", f.space.ID, " https://example.com/about ")
	require.NoError(t, err)
	assert.Equal(t, models.KindURL, page.Kind)
	assert.Equal(t, "https://example.com/about", *page.SourceURL)
	assert.Equal(t, "example.com/about", page.FileName)

	_, err = f.docs.AddURL(ctx, "owner-1", f.space.ID, "ftp://example.com")
	assert.True(t, apperr.Is(err, apperr.ErrInvalidRequest))

	assert.Len(t, f.ing.jobs, 2)
	docs, err := f.docs.List(ctx, "owner-1", f.space.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDocumentService_EnqueueFailureKeepsDocument(t *testing.T) {
	f := newFixture(t)
	f.ing.err = errors.New("queue closed")

	doc, err := f.docs.AddNote(context.Background(), "owner-1", f.space.ID, "n", "text")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, doc.Status)
}

func TestDocumentService_Reprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.docs.AddNote(ctx, "owner-1", f.space.ID, "n", "text")
	require.NoError(t, err)

	_, err = f.docs.Reprocess(ctx, "owner-1", doc.ID)
	require.NoError(t, err)
	require.Len(t, f.ing.jobs, 2)
	assert.True(t, f.ing.jobs[1].Force)

	_, err = f.docs.Reprocess(ctx, "owner-2", doc.ID)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestDocumentService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.docs.Upload(ctx, "owner-1", f.space.ID, "a.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, f.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusUpdate{
		Status:      models.StatusReady,
		IndexFileID: models.StringPtr("file_9"),
	}))
	require.NoError(t, f.db.InsertDocumentChunks(ctx, []models.DocumentChunk{
		{ID: "c0", DocumentID: doc.ID, SpaceID: f.space.ID, Position: 0, Text: "hello"},
	}))
	f.index.removeErr = errors.New("provider down")

	assert.True(t, apperr.Is(f.docs.Delete(ctx, "owner-2", doc.ID), apperr.ErrNotFound))
	require.NoError(t, f.docs.Delete(ctx, "owner-1", doc.ID))

	assert.Equal(t, []string{"file_9"}, f.index.removed)
	got, err := f.db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	n, _ := f.db.CountSpaceChunks(ctx, f.space.ID)
	assert.Zero(t, n)
	_, err = f.obj.GetFile(ctx, "bucket", *doc.StoragePath)
	assert.Error(t, err)
}

func TestLinkService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewLinkService(f.db)

	link, err := svc.Create(ctx, "owner-1", f.space.ID, " Website ")
	require.NoError(t, err)
	assert.Equal(t, "Website", link.Label)
	assert.Len(t, link.Token, 32)
	assert.False(t, link.Revoked)

	other, err := svc.Create(ctx, "owner-1", f.space.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, link.Token, other.Token)

	revoked, err := svc.Revoke(ctx, "owner-1", link.ID)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	active, _ := f.db.GetActiveShareLinkByToken(ctx, link.Token)
	assert.Nil(t, active)

	restored, err := svc.Restore(ctx, "owner-1", link.ID)
	require.NoError(t, err)
	assert.False(t, restored.Revoked)

	_, err = svc.Revoke(ctx, "owner-2", link.ID)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	_, err = svc.Revoke(ctx, "owner-1", "missing")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	_, err = svc.Create(ctx, "owner-2", f.space.ID, "")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}
