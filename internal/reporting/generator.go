package reporting

import (
	"context"
	"fmt"
	"time"

	"cardmarket-lab/internal/storage"
)

// Report defaults.
const (
	DefaultWindow          = 90 * 24 * time.Hour
	DefaultMinCompsPerCard = 5
)

// Thresholds are the minimums a coverage check must reach. Zero disables
// the check.
type Thresholds struct {
	MinCards          int
	MinRecentComps    int
	MinCardsWithComps int
}

// Generator produces coverage reports from stored data.
type Generator struct {
	cards      storage.CardStore
	listings   storage.ListingStore
	comps      storage.CompSaleStore
	rawImports storage.RawImportStore
	window     time.Duration
	minComps   int
	thresholds Thresholds
	now        func() time.Time // Injectable clock for deterministic output
}

// GeneratorOptions contains configuration for creating a Generator.
type GeneratorOptions struct {
	Cards           storage.CardStore
	Listings        storage.ListingStore
	Comps           storage.CompSaleStore
	RawImports      storage.RawImportStore
	Window          time.Duration // Default: 90 days
	MinCompsPerCard int           // Default: 5
	Thresholds      Thresholds
}

// NewGenerator creates a new report generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	minComps := opts.MinCompsPerCard
	if minComps <= 0 {
		minComps = DefaultMinCompsPerCard
	}

	return &Generator{
		cards:      opts.Cards,
		listings:   opts.Listings,
		comps:      opts.Comps,
		rawImports: opts.RawImports,
		window:     window,
		minComps:   minComps,
		thresholds: opts.Thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a coverage report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	now := g.now()

	summary, err := g.summarize(ctx, now.Add(-g.window).UnixMilli())
	if err != nil {
		return nil, err
	}

	checks := g.checks(summary)
	allPassed := true
	for _, c := range checks {
		allPassed = allPassed && c.Pass
	}

	return &Report{
		GeneratedAt:     now,
		WindowDays:      int(g.window / (24 * time.Hour)),
		MinCompsPerCard: g.minComps,
		Summary:         summary,
		Checks:          checks,
		AllChecksPassed: allPassed,
	}, nil
}

func (g *Generator) summarize(ctx context.Context, since int64) (Summary, error) {
	var s Summary
	var err error

	if s.Cards, err = g.cards.Count(ctx); err != nil {
		return s, fmt.Errorf("count cards: %w", err)
	}
	if s.Listings, err = g.listings.Count(ctx); err != nil {
		return s, fmt.Errorf("count listings: %w", err)
	}
	if s.Comps, err = g.comps.Count(ctx); err != nil {
		return s, fmt.Errorf("count comps: %w", err)
	}
	if s.CompsRecent, s.CardsWithMinComps, err = g.comps.CountSoldSince(ctx, since, g.minComps); err != nil {
		return s, fmt.Errorf("count recent comps: %w", err)
	}
	if s.RawImports, err = g.rawImports.Count(ctx); err != nil {
		return s, fmt.Errorf("count raw imports: %w", err)
	}
	return s, nil
}

func (g *Generator) checks(s Summary) []CheckRow {
	var rows []CheckRow
	add := func(name string, min, actual int) {
		if min <= 0 {
			return
		}
		rows = append(rows, CheckRow{
			Name:      name,
			Threshold: fmt.Sprintf(">= %d", min),
			Actual:    fmt.Sprintf("%d", actual),
			Pass:      actual >= min,
		})
	}
	add("Cards", g.thresholds.MinCards, s.Cards)
	add(fmt.Sprintf("Comps in last %s", windowLabel(g.window)), g.thresholds.MinRecentComps, s.CompsRecent)
	add(fmt.Sprintf("Cards with >= %d recent comps", g.minComps), g.thresholds.MinCardsWithComps, s.CardsWithMinComps)
	return rows
}

func windowLabel(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	return d.String()
}
