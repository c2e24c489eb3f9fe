package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardmarket-lab/internal/app"
	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/ingestion"
	"cardmarket-lab/internal/observability"
	"cardmarket-lab/internal/titleparse"
)

// DefaultSource tags rows when neither -source nor the row names one.
const DefaultSource = "Ebay"

type options struct {
	listings    string
	comps       string
	source      string
	limit       int
	concurrency int
	useMemory   bool
	postgresDSN string
	metricsAddr string
	compMode    string
	migrate     bool
}

func main() {
	// Parse flags
	var opts options
	configPath := flag.String("config", "", "Optional TOML config file")
	flag.StringVar(&opts.listings, "listings", "", "Listings input: file path or s3://bucket/key (.json, .ndjson, .csv)")
	flag.StringVar(&opts.comps, "comps", "", "Sold comps input: file path or s3://bucket/key")
	flag.StringVar(&opts.source, "source", DefaultSource, "Source tag for rows that do not carry one (comps get a Sold suffix)")
	flag.IntVar(&opts.limit, "limit", 0, "Process at most N rows per input (0 = all)")
	flag.IntVar(&opts.concurrency, "concurrency", config.DefaultIngestConcurrency, "Rows processed concurrently")
	flag.BoolVar(&opts.useMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.StringVar(&opts.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (default $DATABASE_URL)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.StringVar(&opts.compMode, "comp-mode", config.DefaultCompMode, "Comp title parsing: deterministic or best-effort")
	flag.BoolVar(&opts.migrate, "migrate", false, "Apply schema migrations before ingesting")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if opts.listings == "" && opts.comps == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of -listings or -comps is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	applyFlags(cfg, &opts, config.Visited(flag.CommandLine))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals: the first cancels, the second exits
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling remaining rows...", sig)
		cancel()
		sig = <-sigCh
		logger.Printf("Received second signal %v, exiting", sig)
		os.Exit(1)
	}()

	if err := run(ctx, logger, cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
}

// applyFlags copies explicitly set flags over the loaded configuration and
// fills flag values the command line left unset from it.
func applyFlags(cfg *config.Config, opts *options, set map[string]bool) {
	if set["postgres-dsn"] {
		cfg.Database.PostgresDSN = opts.postgresDSN
	}
	if set["concurrency"] {
		cfg.Ingest.Concurrency = opts.concurrency
	}
	if set["comp-mode"] {
		cfg.Ingest.CompMode = opts.compMode
	}
	if set["metrics-addr"] {
		cfg.Ingest.MetricsAddr = opts.metricsAddr
	}
	opts.postgresDSN = cfg.Database.PostgresDSN
	opts.concurrency = cfg.Ingest.Concurrency
	opts.compMode = cfg.Ingest.CompMode
	opts.metricsAddr = cfg.Ingest.MetricsAddr
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, opts options) error {
	compMode, err := titleparse.ParseMode(opts.compMode)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics("")
	metrics.Serve(ctx, opts.metricsAddr, logger)

	stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{
		UseMemory:   opts.useMemory,
		PostgresDSN: opts.postgresDSN,
		MaxConns:    int32(max(opts.concurrency, 1) + 2),
		Migrate:     opts.migrate,
	})
	if err != nil {
		return err
	}
	defer cleanup()
	if opts.useMemory {
		logger.Println("Using in-memory storage")
	}

	parser, err := app.NewTitleParser(ctx, cfg, stores.TitleCache, metrics, logger)
	if err != nil {
		return err
	}

	reader, err := app.NewRecordReader(ctx, cfg, opts.listings, opts.comps)
	if err != nil {
		return err
	}

	loader := ingestion.NewLoader(ingestion.LoaderOptions{
		Mapper:      app.NewMapper(cfg, parser, compMode),
		Engine:      stores.Engine(),
		Concurrency: opts.concurrency,
		Logger:      logger,
		Recorder:    metrics,
	})

	start := time.Now()
	if opts.listings != "" {
		records, err := reader.Read(ctx, opts.listings)
		if err != nil {
			return fmt.Errorf("read listings: %w", err)
		}
		records = app.Limit(records, opts.limit)
		logger.Printf("Loaded %d listing rows from %s", len(records), opts.listings)

		counts := loader.LoadListings(ctx, records, opts.source)
		fmt.Println(ingestion.Report("listings", counts))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.comps != "" {
		records, err := reader.Read(ctx, opts.comps)
		if err != nil {
			return fmt.Errorf("read comps: %w", err)
		}
		records = app.Limit(records, opts.limit)
		logger.Printf("Loaded %d comp rows from %s", len(records), opts.comps)

		counts := loader.LoadComps(ctx, records, ingestion.CompSource(opts.source))
		fmt.Println(ingestion.Report("comps", counts))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	metrics.MarkIngestionSuccess(time.Now())
	logger.Printf("Done in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
