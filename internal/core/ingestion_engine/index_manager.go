package ingestion_engine

import (
	"context"
	"fmt"
	"log"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// IndexManager owns the lifecycle of each space's remote retrieval index.
type IndexManager struct {
	db    core.DbClient
	index core.IndexProvider
}

func NewIndexManager(db core.DbClient, index core.IndexProvider) *IndexManager {
	return &IndexManager{db: db, index: index}
}

// EnsureIndex returns the space's index handle, creating the index on first
// use. Concurrent callers may each create an index; the handle is persisted
// with a conditional update, so exactly one wins and the others adopt it and
// delete their own.
func (m *IndexManager) EnsureIndex(ctx context.Context, space *models.Space) (string, error) {
	if space.HasIndex() {
		return *space.IndexHandle, nil
	}

	handle, err := m.index.CreateIndex(ctx, "space-"+space.ID)
	if err != nil {
		return "", apperr.NewIndexCreateFailed(err)
	}

	winner, err := m.db.ClaimSpaceIndexHandle(ctx, space.ID, handle)
	if err != nil {
		m.deleteIndex(ctx, handle)
		return "", fmt.Errorf("persist index handle for space %s: %w", space.ID, err)
	}
	if winner != handle {
		log.Printf("IndexManager: space %s already has index %s, dropping duplicate %s", space.ID, winner, handle)
		m.deleteIndex(ctx, handle)
	}

	space.IndexHandle = models.StringPtr(winner)
	return winner, nil
}

// IndexFile uploads content as filename and attaches it to the index. When the
// attach fails the uploaded file is removed again.
func (m *IndexManager) IndexFile(ctx context.Context, handle, filename string, content []byte) (string, error) {
	fileID, err := m.index.UploadFile(ctx, filename, content)
	if err != nil {
		return "", apperr.NewIndexUploadFailed(err)
	}

	if err := m.index.AttachFile(ctx, handle, fileID); err != nil {
		if delErr := m.index.DeleteFile(ctx, fileID); delErr != nil {
			log.Printf("IndexManager: failed to remove unattached file %s: %v", fileID, delErr)
		}
		return "", apperr.NewIndexFailed(err)
	}
	return fileID, nil
}

// RemoveFile deletes a previously indexed file.
func (m *IndexManager) RemoveFile(ctx context.Context, fileID string) error {
	if fileID == "" {
		return nil
	}
	return m.index.DeleteFile(ctx, fileID)
}

func (m *IndexManager) deleteIndex(ctx context.Context, handle string) {
	if err := m.index.DeleteIndex(ctx, handle); err != nil {
		log.Printf("IndexManager: failed to delete orphan index %s: %v", handle, err)
	}
}
