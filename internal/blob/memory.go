package blob

import (
	"context"
	"io"
	"sync"
)

// MemoryStorage keeps objects in process memory. It serves development runs
// without storage credentials and tests.
type MemoryStorage struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Upload(_ context.Context, name string, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return m.baseURL + "/" + name, nil
}

func (m *MemoryStorage) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return ErrUpstream
	}
	delete(m.objects, name)
	return nil
}

func (m *MemoryStorage) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[name]
	return ok
}

func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
