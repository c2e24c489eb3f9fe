package memory

import (
	"context"
	"sort"
	"sync"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// CompSaleStore is an in-memory implementation of storage.CompSaleStore.
type CompSaleStore struct {
	mu         sync.RWMutex
	data       map[string]*domain.CompSale    // keyed by comp_sale_id
	byExternal map[sourceKey]*domain.CompSale // unique (source, external_id)
	byDedupKey map[string]*domain.CompSale    // unique dedup_key
	order      []string                       // insertion order of comp_sale_id
}

// NewCompSaleStore creates a new in-memory comp sale store.
func NewCompSaleStore() *CompSaleStore {
	return &CompSaleStore{
		data:       make(map[string]*domain.CompSale),
		byExternal: make(map[sourceKey]*domain.CompSale),
		byDedupKey: make(map[string]*domain.CompSale),
	}
}

// Insert adds a new sale. Returns ErrDuplicateKey on any uniqueness violation.
func (s *CompSaleStore) Insert(_ context.Context, c *domain.CompSale) error {
	if c == nil || c.CompSaleID == "" || c.Source == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CompSaleID]; exists {
		return storage.ErrDuplicateKey
	}
	if c.ExternalID != nil {
		if _, exists := s.byExternal[sourceKey{c.Source, *c.ExternalID}]; exists {
			return storage.ErrDuplicateKey
		}
	}
	if c.DedupKey != nil {
		if _, exists := s.byDedupKey[*c.DedupKey]; exists {
			return storage.ErrDuplicateKey
		}
	}

	saleCopy := copyCompSale(c)
	s.data[c.CompSaleID] = saleCopy
	if c.ExternalID != nil {
		s.byExternal[sourceKey{c.Source, *c.ExternalID}] = saleCopy
	}
	if c.DedupKey != nil {
		s.byDedupKey[*c.DedupKey] = saleCopy
	}
	s.order = append(s.order, c.CompSaleID)
	return nil
}

// GetByCardID retrieves all sales for a card, ordered by sold_at ASC.
func (s *CompSaleStore) GetByCardID(_ context.Context, cardID string) ([]*domain.CompSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CompSale
	for _, c := range s.data {
		if c.CardID == cardID {
			result = append(result, copyCompSale(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SoldAt != result[j].SoldAt {
			return result[i].SoldAt < result[j].SoldAt
		}
		return result[i].CompSaleID < result[j].CompSaleID
	})

	return result, nil
}

// ListTitles returns up to limit distinct titles from raw payloads in insertion order.
func (s *CompSaleStore) ListTitles(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payloads := make([][]byte, 0, len(s.order))
	for _, id := range s.order {
		payloads = append(payloads, s.data[id].Raw)
	}
	return distinctTitles(payloads, limit), nil
}

// CountSoldSince counts recent sales and the cards with at least minPerCard of them.
func (s *CompSaleStore) CountSoldSince(_ context.Context, since int64, minPerCard int) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perCard := make(map[string]int)
	sales := 0
	for _, c := range s.data {
		if c.SoldAt >= since {
			sales++
			perCard[c.CardID]++
		}
	}

	cards := 0
	for _, n := range perCard {
		if n >= minPerCard {
			cards++
		}
	}
	return sales, cards, nil
}

// List returns up to limit sales with comp_sale_id > afterID, ordered by comp_sale_id.
func (s *CompSaleStore) List(_ context.Context, afterID string, limit int) ([]*domain.CompSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.data, afterID, limit, copyCompSale), nil
}

// Count returns the number of stored sales.
func (s *CompSaleStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

func copyCompSale(c *domain.CompSale) *domain.CompSale {
	out := *c
	out.ExternalID = copyPtr(c.ExternalID)
	out.DedupKey = copyPtr(c.DedupKey)
	out.Raw = append([]byte(nil), c.Raw...)
	return &out
}

// distinctTitles extracts up to limit distinct payload titles. limit <= 0 means no limit.
func distinctTitles(payloads [][]byte, limit int) []string {
	seen := make(map[string]struct{})
	var titles []string
	for _, p := range payloads {
		title := storage.PayloadTitle(p)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		titles = append(titles, title)
		if limit > 0 && len(titles) >= limit {
			break
		}
	}
	return titles
}

var _ storage.CompSaleStore = (*CompSaleStore)(nil)
