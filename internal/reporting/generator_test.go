package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage/memory"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setupTestData(t *testing.T) GeneratorOptions {
	ctx := context.Background()

	cards := memory.NewCardStore()
	listings := memory.NewListingStore()
	comps := memory.NewCompSaleStore()
	rawImports := memory.NewRawImportStore()

	for _, c := range []*domain.Card{
		{CardID: "card1", SetCode: "sv1", Number: "015", Language: "en", DisplayName: "Pikachu"},
		{CardID: "card2", SetCode: "sv1", Number: "016", Language: "en", DisplayName: "Raichu"},
	} {
		if _, _, err := cards.GetOrCreate(ctx, c); err != nil {
			t.Fatalf("GetOrCreate card failed: %v", err)
		}
	}

	if err := listings.Insert(ctx, &domain.Listing{ListingID: "l1", CardID: "card1", Source: "Ebay", SourceID: "e1"}); err != nil {
		t.Fatalf("Insert listing failed: %v", err)
	}

	recent := testNow.Add(-24 * time.Hour).UnixMilli()
	old := testNow.Add(-200 * 24 * time.Hour).UnixMilli()
	insertComp := func(id, cardID string, soldAt int64) {
		key := id
		if err := comps.Insert(ctx, &domain.CompSale{CompSaleID: id, CardID: cardID, Source: "EbaySold", DedupKey: &key, SoldAt: soldAt}); err != nil {
			t.Fatalf("Insert comp failed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		insertComp(fmt.Sprintf("a%d", i), "card1", recent)
	}
	insertComp("b0", "card2", recent)
	insertComp("b1", "card2", recent)
	insertComp("b2", "card2", old)

	for _, k := range []string{"r1", "r2"} {
		if err := rawImports.Insert(ctx, &domain.RawImport{RawImportID: k, TableName: domain.RawTableCompSale, DedupKey: k}); err != nil {
			t.Fatalf("Insert raw import failed: %v", err)
		}
	}

	return GeneratorOptions{Cards: cards, Listings: listings, Comps: comps, RawImports: rawImports}
}

func TestGenerator_Summary(t *testing.T) {
	gen := NewGenerator(setupTestData(t)).WithClock(func() time.Time { return testNow })

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := Summary{Cards: 2, Listings: 1, Comps: 8, CompsRecent: 7, CardsWithMinComps: 1, RawImports: 2}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if report.WindowDays != 90 {
		t.Errorf("WindowDays = %d, want 90", report.WindowDays)
	}
	if report.MinCompsPerCard != DefaultMinCompsPerCard {
		t.Errorf("MinCompsPerCard = %d, want %d", report.MinCompsPerCard, DefaultMinCompsPerCard)
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, testNow)
	}
	if len(report.Checks) != 0 || !report.AllChecksPassed {
		t.Errorf("expected no checks and a passing report, got %+v", report.Checks)
	}
}

func TestGenerator_WindowAndMinComps(t *testing.T) {
	opts := setupTestData(t)
	opts.Window = 365 * 24 * time.Hour
	opts.MinCompsPerCard = 3
	gen := NewGenerator(opts).WithClock(func() time.Time { return testNow })

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Summary.CompsRecent != 8 {
		t.Errorf("CompsRecent = %d, want 8", report.Summary.CompsRecent)
	}
	if report.Summary.CardsWithMinComps != 2 {
		t.Errorf("CardsWithMinComps = %d, want 2", report.Summary.CardsWithMinComps)
	}
	if report.WindowDays != 365 {
		t.Errorf("WindowDays = %d, want 365", report.WindowDays)
	}
}

func TestGenerator_Checks(t *testing.T) {
	opts := setupTestData(t)
	opts.Thresholds = Thresholds{MinCards: 2, MinRecentComps: 10, MinCardsWithComps: 1}
	gen := NewGenerator(opts).WithClock(func() time.Time { return testNow })

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}

	pass := map[string]bool{}
	for _, c := range report.Checks {
		pass[c.Name] = c.Pass
	}
	if !pass["Cards"] {
		t.Error("Cards check should pass")
	}
	if pass["Comps in last 90d"] {
		t.Error("recent comps check should fail with 7 < 10")
	}
	if !pass["Cards with >= 5 recent comps"] {
		t.Error("well-covered cards check should pass")
	}
	if report.AllChecksPassed {
		t.Error("AllChecksPassed should be false")
	}
}

func TestRenderMarkdown(t *testing.T) {
	opts := setupTestData(t)
	opts.Thresholds = Thresholds{MinRecentComps: 1}
	report, err := NewGenerator(opts).WithClock(func() time.Time { return testNow }).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Data Coverage Report",
		"Generated: 2026-01-01T00:00:00Z",
		"| Comps | 8 |",
		"| Comps (last 90d) | 7 |",
		"| Cards with >= 5 comps (last 90d) | 1 |",
		"| Comps in last 90d | >= 1 | 7 | PASS |",
		"**All checks passed.**",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_NoChecks(t *testing.T) {
	md := RenderMarkdown(&Report{GeneratedAt: testNow, WindowDays: 90, MinCompsPerCard: 5})
	if !strings.Contains(md, "No coverage thresholds configured.") {
		t.Errorf("expected no-threshold note, got:\n%s", md)
	}
}

func TestRenderCSV(t *testing.T) {
	report := &Report{
		WindowDays:      90,
		MinCompsPerCard: 5,
		Summary:         Summary{Cards: 2, Listings: 1, Comps: 8, CompsRecent: 7, CardsWithMinComps: 1, RawImports: 2},
	}

	want := "metric,value\n" +
		"cards,2\n" +
		"listings,1\n" +
		"comps,8\n" +
		"comps_last_90d,7\n" +
		"cards_with_5_comps_90d,1\n" +
		"raw_imports,2\n"
	if got := RenderCSV(report); got != want {
		t.Errorf("RenderCSV =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderJSON(t *testing.T) {
	report := &Report{
		GeneratedAt:     testNow,
		WindowDays:      90,
		MinCompsPerCard: 5,
		Summary:         Summary{Cards: 2, CompsRecent: 7},
		AllChecksPassed: true,
	}

	out, err := RenderJSON(report)
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["generatedAt"] != "2026-01-01T00:00:00Z" {
		t.Errorf("generatedAt = %v", decoded["generatedAt"])
	}
	summary, ok := decoded["summary"].(map[string]any)
	if !ok {
		t.Fatalf("summary missing: %v", decoded)
	}
	if summary["compsRecent"] != float64(7) {
		t.Errorf("compsRecent = %v, want 7", summary["compsRecent"])
	}
	if _, present := decoded["checks"]; present {
		t.Error("empty checks should be omitted")
	}
}
