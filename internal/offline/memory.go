package offline

import (
	"context"
	"sort"
	"sync"

	"github.com/rpggio/biodata/internal/repository"
)

// MemoryCacheStorage keeps buckets in process memory.
type MemoryCacheStorage struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*StoredResponse
}

// NewMemoryCacheStorage creates an empty in-memory cache storage.
func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{buckets: map[string]map[string]*StoredResponse{}}
}

func (m *MemoryCacheStorage) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryCacheStorage) Has(_ context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryCacheStorage) Delete(_ context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[bucket]
	delete(m.buckets, bucket)
	return ok, nil
}

func (m *MemoryCacheStorage) Match(_ context.Context, bucket, key string) (*StoredResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.buckets[bucket][key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyEntry(entry), nil
}

func (m *MemoryCacheStorage) Put(_ context.Context, bucket, key string, entry *StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string]*StoredResponse{}
	}
	m.buckets[bucket][key] = copyEntry(entry)
	return nil
}

func (m *MemoryCacheStorage) PutAll(_ context.Context, bucket string, entries map[string]*StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string]*StoredResponse{}
	}
	for key, entry := range entries {
		m.buckets[bucket][key] = copyEntry(entry)
	}
	return nil
}

func copyEntry(e *StoredResponse) *StoredResponse {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}
