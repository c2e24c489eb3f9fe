package memory

import (
	"context"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

type titleKey struct {
	version int
	hash    string
}

// TitleCacheStore is an in-memory implementation of storage.TitleCacheStore.
type TitleCacheStore struct {
	mu   sync.RWMutex
	data map[titleKey]*domain.TitleParse
}

// NewTitleCacheStore creates a new in-memory title cache store.
func NewTitleCacheStore() *TitleCacheStore {
	return &TitleCacheStore{
		data: make(map[titleKey]*domain.TitleParse),
	}
}

// Get retrieves a cached parse. Returns ErrNotFound if not exists.
func (s *TitleCacheStore) Get(_ context.Context, schemaVersion int, titleHash string) (*domain.TitleParse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[titleKey{schemaVersion, titleHash}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	parseCopy := *p
	return &parseCopy, nil
}

// Upsert inserts a parse or replaces the parsed fields of an existing one.
func (s *TitleCacheStore) Upsert(_ context.Context, p *domain.TitleParse) error {
	if p == nil || p.TitleHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := titleKey{p.SchemaVersion, p.TitleHash}
	parseCopy := *p
	if existing, exists := s.data[k]; exists {
		parseCopy.Hits = existing.Hits
		parseCopy.CreatedAt = existing.CreatedAt
	}
	s.data[k] = &parseCopy
	return nil
}

// IncrementHits bumps the hit counter. Returns ErrNotFound if not exists.
func (s *TitleCacheStore) IncrementHits(_ context.Context, schemaVersion int, titleHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[titleKey{schemaVersion, titleHash}]
	if !exists {
		return storage.ErrNotFound
	}
	p.Hits++
	return nil
}

var _ storage.TitleCacheStore = (*TitleCacheStore)(nil)
