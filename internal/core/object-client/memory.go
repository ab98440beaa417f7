package objectclient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/markdave123-py/spacechat/internal/core"
)

var _ core.ObjectClient = (*MemoryClient)(nil)

// MemoryClient keeps objects in process memory. Used when AWS credentials are
// not configured and in tests.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (m *MemoryClient) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = b
	return fmt.Sprintf("memory://%s/%s", bucket, key), nil
}

func (m *MemoryClient) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *MemoryClient) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return append([]byte(nil), b...), nil
}
