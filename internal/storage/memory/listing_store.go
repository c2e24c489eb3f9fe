package memory

import (
	"context"
	"sort"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

type sourceKey struct {
	source string
	value  string
}

// ListingStore is an in-memory implementation of storage.ListingStore.
type ListingStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.Listing    // keyed by listing_id
	bySource map[sourceKey]*domain.Listing // unique (source, source_id)
}

// NewListingStore creates a new in-memory listing store.
func NewListingStore() *ListingStore {
	return &ListingStore{
		data:     make(map[string]*domain.Listing),
		bySource: make(map[sourceKey]*domain.Listing),
	}
}

// Insert adds a new listing. Returns ErrDuplicateKey if listing_id or (source, source_id) exists.
func (s *ListingStore) Insert(_ context.Context, l *domain.Listing) error {
	if l == nil || l.ListingID == "" || l.Source == "" || l.SourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[l.ListingID]; exists {
		return storage.ErrDuplicateKey
	}
	k := sourceKey{l.Source, l.SourceID}
	if _, exists := s.bySource[k]; exists {
		return storage.ErrDuplicateKey
	}

	listingCopy := copyListing(l)
	s.data[l.ListingID] = listingCopy
	s.bySource[k] = listingCopy
	return nil
}

// Update overwrites the mutable fields of an existing listing.
// Identity (listing_id, source, source_id) and first_seen_at are kept.
func (s *ListingStore) Update(_ context.Context, l *domain.Listing) error {
	if l == nil || l.ListingID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[l.ListingID]
	if !exists {
		return storage.ErrNotFound
	}

	existing.CardID = l.CardID
	existing.URL = l.URL
	existing.Title = l.Title
	existing.PriceMinorUnits = l.PriceMinorUnits
	existing.Currency = l.Currency
	existing.Condition = l.Condition
	existing.Grade = copyPtr(l.Grade)
	existing.IsActive = l.IsActive
	existing.IsAuction = l.IsAuction
	existing.AuctionEndsAt = copyPtr(l.AuctionEndsAt)
	existing.BidCount = copyPtr(l.BidCount)
	existing.SeenAt = l.SeenAt
	existing.UpdatedAt = l.UpdatedAt
	return nil
}

// GetBySourceID retrieves a listing by (source, source_id). Returns ErrNotFound if not exists.
func (s *ListingStore) GetBySourceID(_ context.Context, source, sourceID string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.bySource[sourceKey{source, sourceID}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyListing(l), nil
}

// GetByURL retrieves the most recently seen listing by (source, url). Returns ErrNotFound if not exists.
func (s *ListingStore) GetByURL(_ context.Context, source, url string) (*domain.Listing, error) {
	if url == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Listing
	for _, l := range s.data {
		if l.Source != source || l.URL != url {
			continue
		}
		if found == nil || l.SeenAt > found.SeenAt {
			found = l
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return copyListing(found), nil
}

// GetByCardID retrieves all listings for a card, ordered by seen_at DESC.
func (s *ListingStore) GetByCardID(_ context.Context, cardID string) ([]*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Listing
	for _, l := range s.data {
		if l.CardID == cardID {
			result = append(result, copyListing(l))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SeenAt != result[j].SeenAt {
			return result[i].SeenAt > result[j].SeenAt
		}
		return result[i].ListingID < result[j].ListingID
	})

	return result, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// List returns up to limit listings with listing_id > afterID, ordered by listing_id.
func (s *ListingStore) List(_ context.Context, afterID string, limit int) ([]*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.data, afterID, limit, copyListing), nil
}

func copyListing(l *domain.Listing) *domain.Listing {
	c := *l
	c.Grade = copyPtr(l.Grade)
	c.AuctionEndsAt = copyPtr(l.AuctionEndsAt)
	c.BidCount = copyPtr(l.BidCount)
	return &c
}

// page returns up to limit copies of the entries keyed above after, in key
// order. limit <= 0 means no limit.
func page[T any](data map[string]*T, after string, limit int, copyFn func(*T) *T) []*T {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	result := make([]*T, 0, len(keys))
	for _, k := range keys {
		result = append(result, copyFn(data[k]))
	}
	return result
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ storage.ListingStore = (*ListingStore)(nil)
