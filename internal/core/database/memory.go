package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

// Ensure MemoryClient implements the interface.
var _ core.DbClient = (*MemoryClient)(nil)

// MemoryClient is an in-memory core.DbClient. It backs local runs without
// DATABASE_URL and the package tests of every consumer.
type MemoryClient struct {
	mu        sync.RWMutex
	spaces    map[string]models.Space
	documents map[string]models.Document
	chunks    map[string][]models.DocumentChunk // by document id
	links     map[string]models.ShareLink
	now       func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		spaces:    make(map[string]models.Space),
		documents: make(map[string]models.Document),
		chunks:    make(map[string][]models.DocumentChunk),
		links:     make(map[string]models.ShareLink),
		now:       time.Now,
	}
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) CreateSpace(_ context.Context, space *models.Space) error {
	if space == nil {
		return errors.New("nil space")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spaces[space.ID]; ok {
		return fmt.Errorf("space already exists: %s", space.ID)
	}
	s := *space
	s.CreatedAt, s.UpdatedAt = m.now(), m.now()
	m.spaces[s.ID] = s
	return nil
}

func (m *MemoryClient) GetSpace(_ context.Context, id string) (*models.Space, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryClient) ClaimSpaceIndexHandle(_ context.Context, spaceID, handle string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[spaceID]
	if !ok {
		return "", fmt.Errorf("space not found: %s", spaceID)
	}
	if s.HasIndex() {
		return *s.IndexHandle, nil
	}
	s.IndexHandle = models.StringPtr(handle)
	s.UpdatedAt = m.now()
	m.spaces[spaceID] = s
	return handle, nil
}

func (m *MemoryClient) CreateDocument(_ context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; ok {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}
	d := *doc
	d.CreatedAt, d.UpdatedAt = m.now(), m.now()
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryClient) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryClient) ListDocumentsBySpace(_ context.Context, spaceID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if d.SpaceID == spaceID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryClient) ListPendingDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryClient) UpdateDocumentStatus(_ context.Context, id string, upd models.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	// Same row constraints as the Postgres schema.
	if upd.Status == models.StatusReady && upd.ErrorMessage != nil {
		return fmt.Errorf("document %s: ready with error message", id)
	}
	if upd.Status == models.StatusFailed && upd.IndexFileID != nil {
		return fmt.Errorf("document %s: failed with index file", id)
	}
	d.Status = upd.Status
	d.ErrorMessage = upd.ErrorMessage
	if upd.ExtractedText != nil {
		d.ExtractedText = upd.ExtractedText
	}
	d.IndexFileID = upd.IndexFileID
	d.UpdatedAt = m.now()
	m.documents[id] = d
	return nil
}

func (m *MemoryClient) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	delete(m.chunks, id)
	return nil
}

func (m *MemoryClient) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chunks {
		for _, existing := range m.chunks[ch.DocumentID] {
			if existing.Position == ch.Position {
				return fmt.Errorf("duplicate chunk position %d for document %s", ch.Position, ch.DocumentID)
			}
		}
		ch.CreatedAt = m.now()
		m.chunks[ch.DocumentID] = append(m.chunks[ch.DocumentID], ch)
	}
	return nil
}

// GetChunksByDocument returns a document's chunks in order. Nothing in the
// service path reads chunks per document; tests use it to inspect the store.
func (m *MemoryClient) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.DocumentChunk(nil), m.chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryClient) DeleteChunksByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	return nil
}

func (m *MemoryClient) CountSpaceChunks(_ context.Context, spaceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, chunks := range m.chunks {
		for _, ch := range chunks {
			if ch.SpaceID == spaceID {
				n++
			}
		}
	}
	return n, nil
}

// SearchSpaceChunks scores every chunk of the space by cosine similarity when
// queryVec is set, otherwise by how many query words it contains. Ties keep
// document position order.
func (m *MemoryClient) SearchSpaceChunks(_ context.Context, spaceID, query string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		chunk models.DocumentChunk
		score float64
	}
	var all []scored
	words := queryWords(query)
	for _, chunks := range m.chunks {
		for _, ch := range chunks {
			if ch.SpaceID != spaceID {
				continue
			}
			var s float64
			if len(queryVec) > 0 && len(ch.Embedding) > 0 {
				s = cosine(queryVec, ch.Embedding)
			} else {
				lower := strings.ToLower(ch.Text)
				for _, w := range words {
					if strings.Contains(lower, w) {
						s++
					}
				}
			}
			all = append(all, scored{chunk: ch, score: s})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		if all[i].chunk.DocumentID != all[j].chunk.DocumentID {
			return all[i].chunk.DocumentID < all[j].chunk.DocumentID
		}
		return all[i].chunk.Position < all[j].chunk.Position
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]models.DocumentChunk, 0, len(all))
	for _, s := range all {
		out = append(out, s.chunk)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemoryClient) CreateShareLink(_ context.Context, link *models.ShareLink) error {
	if link == nil {
		return errors.New("nil share link")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Token == link.Token {
			return errors.New("share link token already exists")
		}
	}
	l := *link
	l.ViewCount = 0
	l.CreatedAt = m.now()
	m.links[l.ID] = l
	return nil
}

func (m *MemoryClient) GetShareLink(_ context.Context, id string) (*models.ShareLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryClient) GetActiveShareLinkByToken(_ context.Context, token string) (*models.ShareLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.links {
		if l.Token == token && !l.Revoked {
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryClient) RecordShareLinkUse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return fmt.Errorf("share link not found: %s", id)
	}
	now := m.now()
	l.ViewCount++
	l.LastUsedAt = &now
	m.links[id] = l
	return nil
}

func (m *MemoryClient) SetShareLinkRevoked(_ context.Context, id string, revoked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return fmt.Errorf("share link not found: %s", id)
	}
	l.Revoked = revoked
	m.links[id] = l
	return nil
}
