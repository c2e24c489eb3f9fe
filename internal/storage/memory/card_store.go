package memory

import (
	"context"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// CardStore is an in-memory implementation of storage.CardStore.
type CardStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Card         // keyed by card_id
	byKey map[domain.CardKey]*domain.Card // unique identity key
}

// NewCardStore creates a new in-memory card store.
func NewCardStore() *CardStore {
	return &CardStore{
		data:  make(map[string]*domain.Card),
		byKey: make(map[domain.CardKey]*domain.Card),
	}
}

// GetOrCreate returns the card with c's identity key, inserting c when absent.
func (s *CardStore) GetOrCreate(_ context.Context, c *domain.Card) (*domain.Card, bool, error) {
	if c == nil || c.CardID == "" || c.SetCode == "" || c.Number == "" {
		return nil, false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[c.Key()]; ok {
		if existing.DisplayName == "" && c.DisplayName != "" {
			existing.DisplayName = c.DisplayName
			existing.UpdatedAt = c.UpdatedAt
		}
		cardCopy := *existing
		return &cardCopy, false, nil
	}

	if _, exists := s.data[c.CardID]; exists {
		return nil, false, storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	cardCopy := *c
	s.data[c.CardID] = &cardCopy
	s.byKey[c.Key()] = &cardCopy

	out := cardCopy
	return &out, true, nil
}

// GetByID retrieves a card by its ID. Returns ErrNotFound if not exists.
func (s *CardStore) GetByID(_ context.Context, cardID string) (*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[cardID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cardCopy := *c
	return &cardCopy, nil
}

// GetByKey retrieves a card by its identity key. Returns ErrNotFound if not exists.
func (s *CardStore) GetByKey(_ context.Context, key domain.CardKey) (*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.byKey[key]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cardCopy := *c
	return &cardCopy, nil
}

// List returns up to limit cards with card_id > afterID, ordered by card_id.
func (s *CardStore) List(_ context.Context, afterID string, limit int) ([]*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.data, afterID, limit, func(c *domain.Card) *domain.Card {
		cardCopy := *c
		return &cardCopy
	}), nil
}

// Count returns the number of stored cards.
func (s *CardStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Verify interface compliance at compile time.
var _ storage.CardStore = (*CardStore)(nil)
