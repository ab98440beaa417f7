package ingestion_engine

import (
	"sync"
	"time"

	"github.com/markdave123-py/spacechat/internal/core"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:      code points per stored chunk (default 1000).
// EmbedBatchSize: chunks per embedding request.
// PreviewRunes:   length of the extracted-text preview kept on the document row.
// ProcessTimeout: upper bound for one document, extraction and indexing included.
// QueueSize:      pending jobs before Enqueue blocks.
type IngestConfig struct {
	ChunkSize      int
	EmbedBatchSize int
	PreviewRunes   int
	ProcessTimeout time.Duration
	QueueSize      int
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := IngestConfig{}
	if c != nil {
		out = *c
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.EmbedBatchSize <= 0 {
		out.EmbedBatchSize = 32
	}
	if out.PreviewRunes <= 0 {
		out.PreviewRunes = 5000
	}
	if out.ProcessTimeout <= 0 {
		out.ProcessTimeout = 5 * time.Minute
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	return &out
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for documents and chunks.
// extractor: per-kind text extraction.
// index:     remote index manager; nil runs the local chunk fallback.
// embedder:  optional chunk embeddings for the fallback search.
// cfg:       runtime tuning knobs for the pipeline.
// jobs:      in-memory queue of documents to process.
// stopping:  closed when workers begin shutting down; wakes blocked Enqueue calls.
// mu:        Enqueue holds it shared while sending, seal exclusively to set stopped.
type DocumentIngestor struct {
	db        core.DbClient
	extractor *Extractor
	index     *IndexManager
	embedder  core.EmbeddingProvider
	cfg       *IngestConfig
	jobs      chan Job
	wg        sync.WaitGroup

	stopping chan struct{}
	sealOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

var _ Ingestor = (*DocumentIngestor)(nil)
