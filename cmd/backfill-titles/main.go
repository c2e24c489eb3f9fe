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

	"cardmarket-lab/internal/app"
	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/ingestion"
	"cardmarket-lab/internal/observability"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Optional TOML config file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (default $DATABASE_URL)")
	maxTitles := flag.Int("max", config.DefaultTitleBackfillMax, "Maximum distinct titles to parse (default $TITLE_CACHE_BACKFILL_MAX)")
	concurrency := flag.Int("concurrency", config.DefaultTitleConcurrency, "Concurrent parses (default $TITLE_CACHE_CONCURRENCY)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[title-cache/backfill] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	set := config.Visited(flag.CommandLine)
	if set["postgres-dsn"] {
		cfg.Database.PostgresDSN = *postgresDSN
	}
	if set["max"] {
		cfg.TitleCache.BackfillMax = *maxTitles
	}
	if set["concurrency"] {
		cfg.TitleCache.Concurrency = *concurrency
	}
	if set["metrics-addr"] {
		cfg.Ingest.MetricsAddr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	metrics := observability.NewMetrics("")
	metrics.Serve(ctx, cfg.Ingest.MetricsAddr, logger)

	stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{
		PostgresDSN: cfg.Database.PostgresDSN,
		MaxConns:    int32(cfg.TitleCache.Concurrency + 2),
	})
	if err != nil {
		return err
	}
	defer cleanup()

	parser, err := app.NewTitleParser(ctx, cfg, stores.TitleCache, metrics, logger)
	if err != nil {
		return err
	}

	backfiller := ingestion.NewTitleBackfiller(ingestion.TitleBackfillOptions{
		Resolver:     parser,
		Sources:      []ingestion.TitleSource{stores.Comps, stores.RawImports},
		Max:          cfg.TitleCache.BackfillMax,
		Concurrency:  cfg.TitleCache.Concurrency,
		ParseOptions: app.ParseOptions(cfg),
		Logger:       logger,
		Recorder:     metrics,
	})

	res, err := backfiller.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(res)
	logger.Printf("%d titles in %s", res.Titles, res.Duration)
	return ctx.Err()
}
