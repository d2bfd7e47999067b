package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Used by tests and the
// development profile.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memoryObject{}}
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", k, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[k] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[k]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, k)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) URL(key string) string {
	k, _ := CleanKey(key)
	return "mem://" + k
}

// ContentType returns the stored content type, for assertions.
func (s *MemoryStore) ContentType(key string) string {
	k, _ := CleanKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[k].contentType
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
