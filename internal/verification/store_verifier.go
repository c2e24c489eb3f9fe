package verification

import (
	"context"
	"fmt"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/storage"
)

// DefaultPageSize is the number of records read per store call.
const DefaultPageSize = 1000

// StoreVerifier implements Verifier over the card, listing and comp stores.
type StoreVerifier struct {
	cards    storage.CardStore
	listings storage.ListingStore
	comps    storage.CompSaleStore
	pageSize int
}

// StoreVerifierOptions contains configuration for creating a StoreVerifier.
type StoreVerifierOptions struct {
	Cards    storage.CardStore
	Listings storage.ListingStore
	Comps    storage.CompSaleStore
	PageSize int // Default: 1000
}

// NewStoreVerifier creates a new StoreVerifier.
func NewStoreVerifier(opts StoreVerifierOptions) *StoreVerifier {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &StoreVerifier{
		cards:    opts.Cards,
		listings: opts.Listings,
		comps:    opts.Comps,
		pageSize: pageSize,
	}
}

// VerifyAll verifies every stored record. Listings and sales must reference
// a stored card, and no two cards may share a normalized key.
func (v *StoreVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	report := &VerificationReport{}

	// Cards first: later passes resolve references against this set
	known := make(map[string]struct{})
	byKey := make(map[domain.CardKey]string)
	err := walk(ctx, v.cards.List, v.pageSize, func(c *domain.Card) string { return c.CardID }, func(c *domain.Card) {
		report.Cards++
		known[c.CardID] = struct{}{}

		divergences := CompareCard(c)
		key := idhash.CardKey(c.SetCode, c.Number, c.VariantKey, c.Language)
		if other, dup := byKey[key]; dup {
			divergences = append(divergences, FieldDivergence{Field: "Duplicate", Expected: other, Actual: c.CardID})
		}
		byKey[key] = c.CardID
		report.add(result(KindCard, c.CardID, divergences))
	})
	if err != nil {
		return nil, fmt.Errorf("verify cards: %w", err)
	}

	err = walk(ctx, v.listings.List, v.pageSize, func(l *domain.Listing) string { return l.ListingID }, func(l *domain.Listing) {
		report.Listings++
		divergences := append(CompareListing(l), orphan(known, l.CardID)...)
		report.add(result(KindListing, l.ListingID, divergences))
	})
	if err != nil {
		return nil, fmt.Errorf("verify listings: %w", err)
	}

	err = walk(ctx, v.comps.List, v.pageSize, func(c *domain.CompSale) string { return c.CompSaleID }, func(c *domain.CompSale) {
		report.CompSales++
		divergences := append(CompareCompSale(c), orphan(known, c.CardID)...)
		report.add(result(KindCompSale, c.CompSaleID, divergences))
	})
	if err != nil {
		return nil, fmt.Errorf("verify comp sales: %w", err)
	}

	return report, nil
}

// walk pages through a keyset-ordered store.
func walk[T any](ctx context.Context, list func(context.Context, string, int) ([]T, error), pageSize int, id func(T) string, visit func(T)) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := list(ctx, after, pageSize)
		if err != nil {
			return err
		}
		for _, rec := range page {
			visit(rec)
		}
		if len(page) < pageSize {
			return nil
		}
		after = id(page[len(page)-1])
	}
}

func orphan(known map[string]struct{}, cardID string) []FieldDivergence {
	if _, ok := known[cardID]; ok {
		return nil
	}
	return []FieldDivergence{{Field: "CardID", Expected: "stored card", Actual: cardID}}
}

func result(kind, id string, divergences []FieldDivergence) VerificationResult {
	return VerificationResult{
		Kind:        kind,
		ID:          id,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}
}

// Verify interface compliance at compile time.
var _ Verifier = (*StoreVerifier)(nil)
