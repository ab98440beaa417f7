package ingestion_engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/spacechat/internal/apperr"
	objectclient "github.com/markdave123-py/spacechat/internal/core/object-client"
	"github.com/markdave123-py/spacechat/internal/models"
)

const testBucket = "docs"

func storedDoc(t *testing.T, obj *objectclient.MemoryClient, kind models.DocumentKind, name, contentType string, data []byte) *models.Document {
	t.Helper()
	key := "s1/d1/" + name
	_, err := obj.UploadFile(context.Background(), testBucket, key, strings.NewReader(string(data)), contentType)
	require.NoError(t, err)
	return &models.Document{
		ID: "d1", SpaceID: "s1", Kind: kind, FileName: name, ContentType: contentType,
		StoragePath: models.StringPtr(key),
	}
}

func TestExtract_Note(t *testing.T) {
	e := NewExtractor(objectclient.NewMemoryClient(), testBucket, nil, nil, nil, time.Second)

	out, err := e.Extract(context.Background(), &models.Document{
		Kind: models.KindNote, FileName: "About us", Content: models.StringPtr("  Founded 2024.  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "  Founded 2024.  ", out.Text)
	assert.Equal(t, "About us.txt", out.ArtifactName)
	assert.Equal(t, []byte(out.Text), out.Artifact)

	_, err = e.Extract(context.Background(), &models.Document{Kind: models.KindNote, Content: models.StringPtr(" \n ")})
	require.Error(t, err)
	assert.Equal(t, "note is empty", apperr.MessageOf(err))
}

func TestExtract_TextFile(t *testing.T) {
	obj := objectclient.NewMemoryClient()
	e := NewExtractor(obj, testBucket, nil, nil, nil, time.Second)

	doc := storedDoc(t, obj, models.KindText, "faq.md", "text/markdown", []byte("\xef\xbb\xbfQ: hours?\nA: 9-5 \xff"))
	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Q: hours?\nA: 9-5 \uFFFD", out.Text)
	assert.Equal(t, "faq.txt", out.ArtifactName)
}

func TestExtract_Image(t *testing.T) {
	obj := objectclient.NewMemoryClient()
	vision := &fakeVision{imageText: "OPEN DAILY 9-5"}
	e := NewExtractor(obj, testBucket, vision, nil, nil, time.Second)

	doc := storedDoc(t, obj, models.KindImage, "sign.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "OPEN DAILY 9-5", out.Text)
	assert.Equal(t, "sign.txt", out.ArtifactName)

	vision.err = errors.New("status 500")
	_, err = e.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrExtractionFailed))
}

func TestExtract_PDFPreview(t *testing.T) {
	obj := objectclient.NewMemoryClient()
	e := NewExtractor(obj, testBucket, &fakeVision{pdfText: "Jane Doe - Engineer"}, &fakeLocal{text: "unused"}, nil, time.Second)

	doc := storedDoc(t, obj, models.KindPDF, "cv.pdf", "application/pdf", []byte("%PDF-1.7"))
	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe - Engineer", out.Text)
	assert.Equal(t, "cv.txt", out.ArtifactName)
}

func TestExtract_PDFPreviewFailureIsNotFatal(t *testing.T) {
	obj := objectclient.NewMemoryClient()
	pdf := []byte("%PDF-1.7 original bytes")
	e := NewExtractor(obj, testBucket, &fakeVision{err: errors.New("status 400")}, &fakeLocal{text: "local text"}, nil, time.Second)

	doc := storedDoc(t, obj, models.KindPDF, "cv.pdf", "application/pdf", pdf)
	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, pdf, out.Artifact)
	assert.Equal(t, "cv.pdf", out.ArtifactName)
	assert.Equal(t, "local text", out.Text)
}

func TestExtract_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	e := NewExtractor(objectclient.NewMemoryClient(), testBucket, nil, nil, NewScraper(srv.Client(), 0), time.Second)
	out, err := e.Extract(context.Background(), &models.Document{
		Kind: models.KindURL, FileName: srv.URL, SourceURL: models.StringPtr(srv.URL),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme & Co | About.txt", out.ArtifactName)
	assert.Contains(t, out.Text, "pastries")
}

func TestExtract_URLWithoutTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>We bake bread and pastries every morning.</p></body></html>"))
	}))
	defer srv.Close()

	e := NewExtractor(objectclient.NewMemoryClient(), testBucket, nil, nil, NewScraper(srv.Client(), 10), time.Second)
	out, err := e.Extract(context.Background(), &models.Document{
		Kind: models.KindURL, FileName: "acme-about", SourceURL: models.StringPtr(srv.URL),
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-about.txt", out.ArtifactName)
}

func TestExtract_UnsupportedKind(t *testing.T) {
	e := NewExtractor(objectclient.NewMemoryClient(), testBucket, nil, nil, nil, time.Second)
	_, err := e.Extract(context.Background(), &models.Document{Kind: "spreadsheet"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrUnsupportedKind))
}

func TestArtifactNames(t *testing.T) {
	assert.Equal(t, "report.txt", textName("report.docx"))
	assert.Equal(t, "document.txt", textName(""))
	assert.Equal(t, "scan.pdf", pdfName("scan"))
	assert.Equal(t, "Scan.PDF", pdfName(`C:\uploads\Scan.PDF`))
}
