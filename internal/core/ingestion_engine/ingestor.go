package ingestion_engine

import "context"

// Job asks for one document to be processed. Force re-runs documents that
// already reached ready or failed.
type Job struct {
	DocumentID string
	Force      bool
}

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job Job) error
	ProcessOne(ctx context.Context, docID string, force bool) error
	Wait()
}
