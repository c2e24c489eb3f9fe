package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardmarket-lab/internal/app"
	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/reporting"
)

type options struct {
	format     string
	output     string
	windowDays int
	minComps   int
	thresholds reporting.Thresholds
	strict     bool
}

func main() {
	// Parse flags
	var opts options
	configPath := flag.String("config", "", "Optional TOML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (default $DATABASE_URL)")
	flag.StringVar(&opts.format, "format", "markdown", "Output format: markdown, csv or json")
	flag.StringVar(&opts.output, "output", "", "Output file (default stdout)")
	flag.IntVar(&opts.windowDays, "window-days", 90, "Recent sales window in days")
	flag.IntVar(&opts.minComps, "min-comps", reporting.DefaultMinCompsPerCard, "Recent comps for a card to count as covered")
	flag.IntVar(&opts.thresholds.MinCards, "min-cards", 0, "Fail check below N cards (0 = off)")
	flag.IntVar(&opts.thresholds.MinRecentComps, "min-recent-comps", 0, "Fail check below N recent comps (0 = off)")
	flag.IntVar(&opts.thresholds.MinCardsWithComps, "min-covered-cards", 0, "Fail check below N covered cards (0 = off)")
	flag.BoolVar(&opts.strict, "strict", false, "Exit non-zero when a coverage check fails")
	flag.Parse()

	// Logs go to stderr so stdout carries only the report
	logger := log.New(os.Stderr, "[report] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	if config.Visited(flag.CommandLine)["postgres-dsn"] {
		cfg.Database.PostgresDSN = *postgresDSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{
		UseMemory:   *useMemory,
		PostgresDSN: cfg.Database.PostgresDSN,
	})
	if err != nil {
		logger.Fatalf("Storage: %v", err)
	}
	defer cleanup()

	report, err := generate(ctx, stores, opts)
	if err != nil {
		cleanup()
		logger.Fatalf("Error: %v", err)
	}

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			cleanup()
			logger.Fatalf("Create output: %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := render(out, report, opts.format); err != nil {
		cleanup()
		logger.Fatalf("Render: %v", err)
	}
	if opts.output != "" {
		logger.Printf("Wrote %s", opts.output)
	}

	if opts.strict && !report.AllChecksPassed {
		cleanup()
		logger.Fatalf("Coverage checks failed")
	}
}

func generate(ctx context.Context, stores *app.Stores, opts options) (*reporting.Report, error) {
	gen := reporting.NewGenerator(reporting.GeneratorOptions{
		Cards:           stores.Cards,
		Listings:        stores.Listings,
		Comps:           stores.Comps,
		RawImports:      stores.RawImports,
		Window:          time.Duration(opts.windowDays) * 24 * time.Hour,
		MinCompsPerCard: opts.minComps,
		Thresholds:      opts.thresholds,
	})
	return gen.Generate(ctx)
}

func render(w io.Writer, report *reporting.Report, format string) error {
	var body string
	switch format {
	case "markdown", "md":
		body = reporting.RenderMarkdown(report)
	case "csv":
		body = reporting.RenderCSV(report)
	case "json":
		var err error
		if body, err = reporting.RenderJSON(report); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q (want markdown, csv or json)", format)
	}
	_, err := io.WriteString(w, body)
	return err
}
