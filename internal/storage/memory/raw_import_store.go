package memory

import (
	"context"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// RawImportStore is an in-memory implementation of storage.RawImportStore.
type RawImportStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.RawImport // keyed by dedup_key
	order []string
}

// NewRawImportStore creates a new in-memory raw import store.
func NewRawImportStore() *RawImportStore {
	return &RawImportStore{
		data: make(map[string]*domain.RawImport),
	}
}

// Insert adds a new raw import. Returns ErrDuplicateKey if dedup_key exists.
func (s *RawImportStore) Insert(_ context.Context, r *domain.RawImport) error {
	if r == nil || r.DedupKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.DedupKey]; exists {
		return storage.ErrDuplicateKey
	}

	rawCopy := *r
	rawCopy.Payload = append([]byte(nil), r.Payload...)
	s.data[r.DedupKey] = &rawCopy
	s.order = append(s.order, r.DedupKey)
	return nil
}

// GetByDedupKey retrieves a raw import by dedup key. Returns ErrNotFound if not exists.
func (s *RawImportStore) GetByDedupKey(_ context.Context, dedupKey string) (*domain.RawImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[dedupKey]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rawCopy := *r
	rawCopy.Payload = append([]byte(nil), r.Payload...)
	return &rawCopy, nil
}

// ListTitles returns up to limit distinct titles from payloads in insertion order.
func (s *RawImportStore) ListTitles(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payloads := make([][]byte, 0, len(s.order))
	for _, k := range s.order {
		payloads = append(payloads, s.data[k].Payload)
	}
	return distinctTitles(payloads, limit), nil
}

// Count returns the number of stored raw imports.
func (s *RawImportStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

var _ storage.RawImportStore = (*RawImportStore)(nil)
