package memory

import (
	"context"
	"sort"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

type anchorKey struct {
	cardID     string
	source     string
	priceType  domain.PriceType
	observedAt int64
}

// PriceAnchorStore is an in-memory implementation of storage.PriceAnchorStore.
type PriceAnchorStore struct {
	mu   sync.RWMutex
	data map[anchorKey]*domain.PriceAnchor
}

// NewPriceAnchorStore creates a new in-memory price anchor store.
func NewPriceAnchorStore() *PriceAnchorStore {
	return &PriceAnchorStore{
		data: make(map[anchorKey]*domain.PriceAnchor),
	}
}

func keyOf(a *domain.PriceAnchor) anchorKey {
	return anchorKey{a.CardID, a.Source, a.PriceType, a.ObservedAt}
}

// InsertBulk adds multiple anchors atomically. Fails entire batch on any duplicate.
func (s *PriceAnchorStore) InsertBulk(_ context.Context, anchors []*domain.PriceAnchor) error {
	if len(anchors) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates first (atomic: all or nothing)
	seen := make(map[anchorKey]struct{}, len(anchors))
	for _, a := range anchors {
		if a == nil || a.CardID == "" || !a.PriceType.IsValid() {
			return storage.ErrInvalidInput
		}
		k := keyOf(a)
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, a := range anchors {
		anchorCopy := *a
		s.data[keyOf(a)] = &anchorCopy
	}
	return nil
}

// GetByCardID retrieves all anchors for a card, ordered by observed_at ASC.
func (s *PriceAnchorStore) GetByCardID(_ context.Context, cardID string) ([]*domain.PriceAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceAnchor
	for _, a := range s.data {
		if a.CardID == cardID {
			anchorCopy := *a
			result = append(result, &anchorCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ObservedAt != result[j].ObservedAt {
			return result[i].ObservedAt < result[j].ObservedAt
		}
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].PriceType < result[j].PriceType
	})

	return result, nil
}

var _ storage.PriceAnchorStore = (*PriceAnchorStore)(nil)
