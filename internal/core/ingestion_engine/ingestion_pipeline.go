package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// ErrIngestorStopped is returned by Enqueue once the workers are shutting down.
var ErrIngestorStopped = errors.New("ingestor stopped")

// NewDocumentIngestor constructs the ingestor with a bounded job queue. A nil
// index manager selects fallback mode, where chunks are the only index.
func NewDocumentIngestor(db core.DbClient, extractor *Extractor, index *IndexManager, emb core.EmbeddingProvider, cfg *IngestConfig) *DocumentIngestor {
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db: db, extractor: extractor, index: index, embedder: emb, cfg: cfg,
		jobs:     make(chan Job, cfg.QueueSize),
		stopping: make(chan struct{}),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel. When ctx is
// done the queue is sealed and the workers finish every job already queued
// before returning, so no accepted document is left uploading.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	// A job taken off the queue always runs to completion.
	work := context.WithoutCancel(ctx)
	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func(w int) {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					i.seal()
					i.drain(work, w)
					log.Printf("DocumentIngestor: worker %d shutting down.", w)
					return
				case job := <-i.jobs:
					i.run(work, job, w)
				}
			}
		}(w)
	}
}

func (i *DocumentIngestor) run(ctx context.Context, job Job, w int) {
	log.Printf("DocumentIngestor: Processing document %s by worker with ID %d", job.DocumentID, w)
	if err := i.ProcessOne(ctx, job.DocumentID, job.Force); err != nil {
		log.Printf("DocumentIngestor: Error processing document %s: %v", job.DocumentID, err)
	}
}

// seal stops new jobs from entering the queue. Once it returns no Enqueue is
// mid-send, so the queue only shrinks.
func (i *DocumentIngestor) seal() {
	i.sealOnce.Do(func() {
		close(i.stopping)
		i.mu.Lock()
		i.stopped = true
		i.mu.Unlock()
	})
}

func (i *DocumentIngestor) drain(ctx context.Context, w int) {
	for {
		select {
		case job := <-i.jobs:
			i.run(ctx, job, w)
		default:
			return
		}
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// Enqueue schedules a document for ingestion. If the queue is full it blocks
// until space frees up, ctx is done, or the workers shut down.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		return fmt.Errorf("enqueue document %s: %w", job.DocumentID, ErrIngestorStopped)
	}
	select {
	case i.jobs <- job:
		return nil
	case <-i.stopping:
		return fmt.Errorf("enqueue document %s: %w", job.DocumentID, ErrIngestorStopped)
	case <-ctx.Done():
		return fmt.Errorf("enqueue document %s: %w", job.DocumentID, ctx.Err())
	}
}

// Resume queues every document a previous run left uploading or indexing,
// such as ones accepted while the process was going down.
func (i *DocumentIngestor) Resume(ctx context.Context) error {
	docs, err := i.db.ListPendingDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list pending documents: %w", err)
	}
	for _, d := range docs {
		if err := i.Enqueue(ctx, Job{DocumentID: d.ID}); err != nil {
			return err
		}
	}
	if len(docs) > 0 {
		log.Printf("DocumentIngestor: resumed %d pending documents", len(docs))
	}
	return nil
}

// ProcessOne drives one document through indexing -> ready | failed. Documents
// already ready or failed are left alone unless force is set. Pipeline failures
// are persisted on the document and not returned; the returned error is only
// for failures to read or write the document itself.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string, force bool) error {
	doc, err := i.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}
	if doc.Status.Terminal() && !force {
		log.Printf("DocumentIngestor: document %s already %s, skipping", docID, doc.Status)
		return nil
	}

	if err := i.db.UpdateDocumentStatus(ctx, docID, models.StatusUpdate{Status: models.StatusIndexing}); err != nil {
		return fmt.Errorf("mark document %s indexing: %w", docID, err)
	}

	// In-flight documents finish even when the worker context is cancelled.
	proctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.ProcessTimeout)
	defer cancel()

	space, err := i.db.GetSpace(proctx, doc.SpaceID)
	if err != nil {
		return i.fail(proctx, doc, fmt.Errorf("load space: %w", err))
	}
	if space == nil {
		return i.fail(proctx, doc, apperr.NewNotFound("space"))
	}

	ext, err := i.extractor.Extract(proctx, doc)
	if err != nil {
		return i.fail(proctx, doc, err)
	}
	if ext.Text == "" && i.index == nil {
		return i.fail(proctx, doc, apperr.NewExtractionFailed(apperr.MsgNoMeaningfulText, nil))
	}

	var fileID string
	g, gctx := errgroup.WithContext(proctx)

	g.Go(func() error {
		err := i.storeChunks(gctx, doc, ext.Text)
		if err == nil {
			return nil
		}
		if i.index != nil {
			log.Printf("DocumentIngestor: storing chunks for document %s failed, index unaffected: %v", docID, err)
			return nil
		}
		return apperr.NewChunkStoreFailed(err)
	})

	if i.index != nil {
		g.Go(func() error {
			handle, err := i.index.EnsureIndex(gctx, space)
			if err != nil {
				return err
			}
			fileID, err = i.index.IndexFile(gctx, handle, ext.ArtifactName, ext.Artifact)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if delErr := i.db.DeleteChunksByDocument(proctx, docID); delErr != nil {
			log.Printf("DocumentIngestor: cleanup of chunks for failed document %s: %v", docID, delErr)
		}
		return i.fail(proctx, doc, err)
	}

	upd := models.StatusUpdate{Status: models.StatusReady}
	if ext.Text != "" {
		upd.ExtractedText = models.StringPtr(truncateRunes(ext.Text, i.cfg.PreviewRunes))
	}
	if fileID != "" {
		upd.IndexFileID = models.StringPtr(fileID)
	}
	if err := i.db.UpdateDocumentStatus(proctx, docID, upd); err != nil {
		return fmt.Errorf("mark document %s ready: %w", docID, err)
	}

	// A forced re-run replaces the previously indexed file.
	if doc.IndexFileID != nil && *doc.IndexFileID != fileID && i.index != nil {
		if err := i.index.RemoveFile(proctx, *doc.IndexFileID); err != nil {
			log.Printf("DocumentIngestor: failed to remove superseded file %s: %v", *doc.IndexFileID, err)
		}
	}

	log.Printf("DocumentIngestor: document %s ready", docID)
	return nil
}

// fail records cause on the document. Only a failure to persist is returned.
func (i *DocumentIngestor) fail(ctx context.Context, doc *models.Document, cause error) error {
	msg := failureMessage(cause)
	log.Printf("DocumentIngestor: document %s failed: %s (%v)", doc.ID, msg, cause)

	err := i.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusUpdate{
		Status:       models.StatusFailed,
		ErrorMessage: models.StringPtr(msg),
	})
	if err != nil {
		return fmt.Errorf("mark document %s failed: %w", doc.ID, err)
	}

	// The failed row no longer references its earlier file, so drop it from the index.
	if doc.IndexFileID != nil && i.index != nil {
		if err := i.index.RemoveFile(ctx, *doc.IndexFileID); err != nil {
			log.Printf("DocumentIngestor: failed to remove file %s of failed document %s: %v", *doc.IndexFileID, doc.ID, err)
		}
	}
	return nil
}

func failureMessage(err error) string {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "processing timed out"
	}
	return "processing failed"
}

// storeChunks replaces the document's chunks with a fresh batch, embedded
// when an embedder is configured.
func (i *DocumentIngestor) storeChunks(ctx context.Context, doc *models.Document, text string) error {
	if err := i.db.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	pieces := Chunk(text, i.cfg.ChunkSize)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]models.DocumentChunk, len(pieces))
	for pos, p := range pieces {
		chunks[pos] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			SpaceID:    doc.SpaceID,
			Text:       p,
			Position:   pos,
			TokenCount: approxTokens(p),
		}
	}

	if i.embedder != nil {
		if err := i.embedChunks(ctx, chunks); err != nil {
			// Keyword search still works without vectors.
			log.Printf("DocumentIngestor: embedding chunks of document %s failed, storing text only: %v", doc.ID, err)
			for k := range chunks {
				chunks[k].Embedding = nil
			}
		}
	}

	if err := i.db.InsertDocumentChunks(ctx, chunks); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// embedChunks embeds chunks in batches, a few batches at a time.
func (i *DocumentIngestor) embedChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += i.cfg.EmbedBatchSize {
		end := start + i.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for k := range batch {
				texts[k] = batch[k].Text
			}
			vecs, err := i.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(batch))
			}
			for k := range batch {
				batch[k].Embedding = vecs[k]
			}
			return nil
		})
	}
	return g.Wait()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
