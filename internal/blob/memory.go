package blob

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, obj Object) (Ref, error) {
	data, contentType, err := readObject(obj)
	if err != nil {
		return Ref{}, err
	}

	key := uuid.NewString() + extensionFor(contentType)

	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()

	return Ref{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return nopCloser(data), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
