package ingestion_engine

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// Instructions sent with images and PDFs to the vision provider.
const (
	imageInstruction = "Transcribe all visible text in this image verbatim, preserving reading order. " +
		"If the image contains no text, describe it in detail instead: subjects, setting, colours, and any notable objects. " +
		"Reply with the transcription or description only."
	pdfInstruction = "Extract the key text content of this PDF as plain text: headings, names, dates, figures, " +
		"contact details and the substance of every section. Keep the original wording where possible. " +
		"Reply with the extracted text only."
)

// Extraction is the result of turning one document into indexable text.
type Extraction struct {
	// Text is the plain text for chunks and the stored preview. It may be
	// empty only for a PDF whose preview failed.
	Text string
	// Artifact is what gets uploaded to the remote index, ArtifactName its file name.
	Artifact     []byte
	ArtifactName string
}

// Extractor selects an extraction strategy by document kind.
type Extractor struct {
	obj     core.ObjectClient
	bucket  string
	vision  core.VisionProvider // nil disables image/pdf preview
	local   core.DocumentExtractor
	scraper *Scraper
	timeout time.Duration
}

func NewExtractor(obj core.ObjectClient, bucket string, vision core.VisionProvider, local core.DocumentExtractor, scraper *Scraper, timeout time.Duration) *Extractor {
	if scraper == nil {
		scraper = NewScraper(nil, 0)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Extractor{obj: obj, bucket: bucket, vision: vision, local: local, scraper: scraper, timeout: timeout}
}

// Extract returns the text of doc. Every failure is an *apperr.AppError whose
// message can be shown on the document row.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch doc.Kind {
	case models.KindNote:
		return e.extractNote(doc)
	case models.KindText:
		return e.extractText(ctx, doc)
	case models.KindImage:
		return e.extractImage(ctx, doc)
	case models.KindPDF:
		return e.extractPDF(ctx, doc)
	case models.KindURL:
		return e.extractURL(ctx, doc)
	default:
		return nil, apperr.NewUnsupportedKind(string(doc.Kind))
	}
}

func (e *Extractor) extractNote(doc *models.Document) (*Extraction, error) {
	if doc.Content == nil || strings.TrimSpace(*doc.Content) == "" {
		return nil, apperr.NewExtractionFailed("note is empty", nil)
	}
	return textExtraction(*doc.Content, doc.FileName), nil
}

func (e *Extractor) extractText(ctx context.Context, doc *models.Document) (*Extraction, error) {
	data, err := e.download(ctx, doc)
	if err != nil {
		return nil, err
	}
	text := decodeUTF8(data)
	if strings.TrimSpace(text) == "" {
		return nil, apperr.NewExtractionFailed("document is empty", nil)
	}
	return textExtraction(text, doc.FileName), nil
}

func (e *Extractor) extractImage(ctx context.Context, doc *models.Document) (*Extraction, error) {
	if e.vision == nil {
		return nil, apperr.NewExtractionFailed("image extraction is not configured", nil)
	}
	data, err := e.download(ctx, doc)
	if err != nil {
		return nil, err
	}

	text, err := e.vision.DescribeImage(ctx, doc.ContentType, data, imageInstruction)
	if err != nil {
		return nil, apperr.NewExtractionFailed("failed to extract text from image", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.NewExtractionFailed(apperr.MsgNoMeaningfulText, nil)
	}
	return textExtraction(text, doc.FileName), nil
}

// extractPDF asks the vision provider for a text preview. A failed preview is
// not fatal: the original PDF is indexed as-is and the chunk text comes from
// local conversion, which may be empty.
func (e *Extractor) extractPDF(ctx context.Context, doc *models.Document) (*Extraction, error) {
	data, err := e.download(ctx, doc)
	if err != nil {
		return nil, err
	}

	if e.vision != nil {
		text, err := e.vision.ExtractPDF(ctx, doc.FileName, data, pdfInstruction)
		if err == nil && strings.TrimSpace(text) != "" {
			return textExtraction(text, doc.FileName), nil
		}
		log.Printf("Extractor: pdf preview failed for document %s, indexing original file: %v", doc.ID, err)
	}

	out := &Extraction{Artifact: data, ArtifactName: pdfName(doc.FileName)}
	if e.local != nil {
		text, err := e.local.ExtractText(ctx, data, "application/pdf")
		if err != nil {
			log.Printf("Extractor: local pdf extraction failed for document %s: %v", doc.ID, err)
		} else {
			out.Text = text
		}
	}
	return out, nil
}

func (e *Extractor) extractURL(ctx context.Context, doc *models.Document) (*Extraction, error) {
	if doc.SourceURL == nil || *doc.SourceURL == "" {
		return nil, apperr.NewExtractionFailed("invalid URL", nil)
	}
	page, err := e.scraper.Scrape(ctx, *doc.SourceURL)
	if err != nil {
		return nil, err
	}

	// the page title names the indexed file; the document row keeps the URL
	name := doc.FileName
	if page.Title != "" {
		name = page.Title
	}
	return textExtraction(page.Text, name), nil
}

func (e *Extractor) download(ctx context.Context, doc *models.Document) ([]byte, error) {
	if doc.StoragePath == nil || *doc.StoragePath == "" {
		return nil, apperr.NewExtractionFailed("document has no stored file", nil)
	}
	data, err := e.obj.GetFile(ctx, e.bucket, *doc.StoragePath)
	if err != nil {
		return nil, apperr.NewExtractionFailed("failed to download file", err)
	}
	if len(data) == 0 {
		return nil, apperr.NewExtractionFailed("document is empty", nil)
	}
	return data, nil
}

func textExtraction(text, name string) *Extraction {
	return &Extraction{
		Text:         text,
		Artifact:     []byte(text),
		ArtifactName: textName(name),
	}
}

// decodeUTF8 treats data as UTF-8, dropping a byte order mark and any invalid
// sequences.
func decodeUTF8(data []byte) string {
	s := strings.TrimPrefix(string(data), "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}

// textName is the index file name for extracted text: the original base name
// with a .txt extension.
func textName(name string) string {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return fmt.Sprintf("%s.txt", base)
}

func pdfName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	if !strings.EqualFold(path.Ext(base), ".pdf") {
		base += ".pdf"
	}
	return base
}
