package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/storage/memory"
)

func ptrString(s string) *string { return &s }

func normalizedCard(setCode, number string) *domain.Card {
	key := idhash.CardKey(setCode, number, "", "en")
	return &domain.Card{
		CardID:     idhash.ComputeCardID(key),
		SetCode:    key.SetCode,
		Number:     key.Number,
		VariantKey: key.VariantKey,
		Language:   key.Language,
	}
}

func fieldNames(divergences []FieldDivergence) string {
	names := make([]string, 0, len(divergences))
	for _, d := range divergences {
		names = append(names, d.Field)
	}
	return strings.Join(names, ",")
}

func TestCompareCard_Match(t *testing.T) {
	if d := CompareCard(normalizedCard("sv1", "15")); len(d) != 0 {
		t.Errorf("expected no divergences, got %v", d)
	}
}

func TestCompareCard_UnnormalizedKey(t *testing.T) {
	c := normalizedCard("sv1", "15")
	c.SetCode = "SV1"

	d := CompareCard(c)
	if got := fieldNames(d); got != "Key" {
		t.Fatalf("divergent fields = %q, want Key", got)
	}
	if d[0].Expected.(domain.CardKey).SetCode != "sv1" {
		t.Errorf("expected normalized set code, got %v", d[0].Expected)
	}
}

func TestCompareCard_WrongID(t *testing.T) {
	c := normalizedCard("sv1", "15")
	c.CardID = "legacy"

	if got := fieldNames(CompareCard(c)); got != "CardID" {
		t.Errorf("divergent fields = %q, want CardID", got)
	}
}

func TestCompareListing(t *testing.T) {
	l := &domain.Listing{ListingID: idhash.ComputeListingID("Ebay", "123"), Source: "Ebay", SourceID: "123"}
	if d := CompareListing(l); len(d) != 0 {
		t.Errorf("expected no divergences, got %v", d)
	}

	l.SourceID = ""
	if got := fieldNames(CompareListing(l)); got != "SourceID,ListingID" {
		t.Errorf("divergent fields = %q, want SourceID,ListingID", got)
	}
}

func TestCompareCompSale(t *testing.T) {
	c := &domain.CompSale{Source: "EbaySold", ExternalID: ptrString("e1")}
	c.CompSaleID = idhash.ComputeCompSaleID(c.Source, c.ExternalID, nil)
	if d := CompareCompSale(c); len(d) != 0 {
		t.Errorf("expected no divergences, got %v", d)
	}

	c.ExternalID = nil
	if got := fieldNames(CompareCompSale(c)); got != "DedupKey,CompSaleID" {
		t.Errorf("divergent fields = %q, want DedupKey,CompSaleID", got)
	}
}

type testStores struct {
	cards    *memory.CardStore
	listings *memory.ListingStore
	comps    *memory.CompSaleStore
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	ctx := context.Background()
	s := testStores{
		cards:    memory.NewCardStore(),
		listings: memory.NewListingStore(),
		comps:    memory.NewCompSaleStore(),
	}

	good := normalizedCard("sv1", "15")
	other := normalizedCard("sv2", "7")
	for _, c := range []*domain.Card{good, other} {
		if _, _, err := s.cards.GetOrCreate(ctx, c); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}

	if err := s.listings.Insert(ctx, &domain.Listing{
		ListingID: idhash.ComputeListingID("Ebay", "1"), CardID: good.CardID, Source: "Ebay", SourceID: "1",
	}); err != nil {
		t.Fatalf("Insert listing failed: %v", err)
	}

	sale := &domain.CompSale{CardID: other.CardID, Source: "EbaySold", DedupKey: ptrString("nk1")}
	sale.CompSaleID = idhash.ComputeCompSaleID(sale.Source, nil, sale.DedupKey)
	if err := s.comps.Insert(ctx, sale); err != nil {
		t.Fatalf("Insert comp failed: %v", err)
	}
	return s
}

func (s testStores) verifier(pageSize int) *StoreVerifier {
	return NewStoreVerifier(StoreVerifierOptions{Cards: s.cards, Listings: s.listings, Comps: s.comps, PageSize: pageSize})
}

func TestStoreVerifier_AllMatch(t *testing.T) {
	s := newTestStores(t)

	report, err := s.verifier(0).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("expected clean report, got %+v", report.Results)
	}
	if report.Cards != 2 || report.Listings != 1 || report.CompSales != 1 || report.Matched != 4 {
		t.Errorf("unexpected counts: %s", report)
	}
}

func TestStoreVerifier_Divergences(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	// Same card under an unnormalized key and a legacy id
	legacy := &domain.Card{CardID: "legacy-1", SetCode: "SV1", Number: "#15", Language: "en"}
	if _, _, err := s.cards.GetOrCreate(ctx, legacy); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := s.listings.Insert(ctx, &domain.Listing{
		ListingID: idhash.ComputeListingID("Ebay", "2"), CardID: "missing", Source: "Ebay", SourceID: "2",
	}); err != nil {
		t.Fatalf("Insert listing failed: %v", err)
	}

	// Page size 1 walks every page boundary
	report, err := s.verifier(1).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}

	if report.Cards != 3 || report.Listings != 2 || report.CompSales != 1 {
		t.Errorf("unexpected counts: %s", report)
	}
	if report.Divergent != 2 || report.Matched != 4 {
		t.Fatalf("expected 2 divergent and 4 matched, got %s", report)
	}

	byID := make(map[string]VerificationResult)
	for _, r := range report.Results {
		byID[r.ID] = r
	}
	if got := fieldNames(byID["legacy-1"].Divergences); got != "Key,CardID,Duplicate" {
		t.Errorf("legacy card divergences = %q", got)
	}
	orphaned := byID[idhash.ComputeListingID("Ebay", "2")]
	if orphaned.Kind != KindListing || fieldNames(orphaned.Divergences) != "CardID" {
		t.Errorf("orphaned listing result = %+v", orphaned)
	}
	if !strings.Contains(report.String(), "divergent=2") {
		t.Errorf("summary = %q", report.String())
	}
}

func TestStoreVerifier_Cancelled(t *testing.T) {
	s := newTestStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.verifier(0).VerifyAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
