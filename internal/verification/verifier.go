// Package verification checks stored records against the identity rules they
// were written under. Every id is recomputed from the record's own fields and
// every card reference must resolve.
package verification

import (
	"context"
	"fmt"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
)

// Record kinds.
const (
	KindCard     = "card"
	KindListing  = "listing"
	KindCompSale = "comp_sale"
)

// FieldDivergence represents a mismatch between a stored and a recomputed value.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // recomputed or required value
	Actual   any    // stored value
}

// VerificationResult contains the result of verifying a single record.
type VerificationResult struct {
	Kind        string            // KindCard, KindListing or KindCompSale
	ID          string            // stored primary key
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for a full pass over the stores.
type VerificationReport struct {
	Cards     int // cards verified
	Listings  int // listings verified
	CompSales int // sales verified

	Matched   int                  // records that matched exactly
	Divergent int                  // records with divergences
	Results   []VerificationResult // divergent records only
}

// OK reports whether no record diverged.
func (r *VerificationReport) OK() bool {
	return r.Divergent == 0
}

// String returns the one-line summary printed by the verify command.
func (r *VerificationReport) String() string {
	return fmt.Sprintf("[verify] cards=%d listings=%d comps=%d matched=%d divergent=%d",
		r.Cards, r.Listings, r.CompSales, r.Matched, r.Divergent)
}

func (r *VerificationReport) add(res VerificationResult) {
	if res.Match {
		r.Matched++
		return
	}
	r.Divergent++
	r.Results = append(r.Results, res)
}

// Verifier checks stored records.
type Verifier interface {
	// VerifyAll walks every card, listing and comp sale.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// CompareCard checks that the card's key is normalized and its id derives from it.
func CompareCard(c *domain.Card) []FieldDivergence {
	var divergences []FieldDivergence

	key := idhash.CardKey(c.SetCode, c.Number, c.VariantKey, c.Language)
	if stored := c.Key(); stored != key {
		divergences = append(divergences, FieldDivergence{
			Field:    "Key",
			Expected: key,
			Actual:   stored,
		})
	}

	if want := idhash.ComputeCardID(key); c.CardID != want {
		divergences = append(divergences, FieldDivergence{
			Field:    "CardID",
			Expected: want,
			Actual:   c.CardID,
		})
	}

	return divergences
}

// CompareListing checks that the listing id derives from (source, source_id).
func CompareListing(l *domain.Listing) []FieldDivergence {
	var divergences []FieldDivergence

	if l.Source == "" || l.SourceID == "" {
		divergences = append(divergences, FieldDivergence{
			Field:    "SourceID",
			Expected: "non-empty source and source_id",
			Actual:   l.Source + "|" + l.SourceID,
		})
	}

	if want := idhash.ComputeListingID(l.Source, l.SourceID); l.ListingID != want {
		divergences = append(divergences, FieldDivergence{
			Field:    "ListingID",
			Expected: want,
			Actual:   l.ListingID,
		})
	}

	return divergences
}

// CompareCompSale checks that the sale carries a dedup identity and its id derives from it.
func CompareCompSale(c *domain.CompSale) []FieldDivergence {
	var divergences []FieldDivergence

	if c.ExternalID == nil && c.DedupKey == nil {
		divergences = append(divergences, FieldDivergence{
			Field:    "DedupKey",
			Expected: "external id or dedup key",
			Actual:   nil,
		})
	}

	if want := idhash.ComputeCompSaleID(c.Source, c.ExternalID, c.DedupKey); c.CompSaleID != want {
		divergences = append(divergences, FieldDivergence{
			Field:    "CompSaleID",
			Expected: want,
			Actual:   c.CompSaleID,
		})
	}

	return divergences
}
