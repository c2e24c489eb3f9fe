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
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Optional TOML config file")
	input := flag.String("input", "", "Price anchor rows: file path or s3://bucket/key")
	source := flag.String("source", ingestion.DefaultAnchorSource, "Pricing source for rows that do not carry one")
	limit := flag.Int("limit", 0, "Process at most N rows (0 = all)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL and ClickHouse")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (default $DATABASE_URL)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (default $CLICKHOUSE_DSN)")
	migrate := flag.Bool("migrate", false, "Apply schema migrations before loading")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[anchors] ", log.LstdFlags|log.Lshortfile)

	if *input == "" && flag.NArg() > 0 {
		*input = flag.Arg(0)
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	set := config.Visited(flag.CommandLine)
	if set["postgres-dsn"] {
		cfg.Database.PostgresDSN = *postgresDSN
	}
	if set["clickhouse-dsn"] {
		cfg.Database.ClickHouseDSN = *clickhouseDSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{
		UseMemory:     *useMemory,
		PostgresDSN:   cfg.Database.PostgresDSN,
		ClickHouseDSN: cfg.Database.ClickHouseDSN,
		Migrate:       *migrate,
		WithAnchors:   true,
	})
	if err != nil {
		logger.Fatalf("Storage: %v", err)
	}
	defer cleanup()

	if err := run(ctx, logger, cfg, stores, *input, *source, *limit); err != nil && !errors.Is(err, context.Canceled) {
		cleanup()
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, stores *app.Stores, input, source string, limit int) error {
	reader, err := app.NewRecordReader(ctx, cfg, input)
	if err != nil {
		return err
	}
	records, err := reader.Read(ctx, input)
	if err != nil {
		return fmt.Errorf("read anchors: %w", err)
	}
	records = app.Limit(records, limit)
	logger.Printf("Loaded %d anchor rows from %s", len(records), input)

	loader := ingestion.NewAnchorLoader(ingestion.AnchorLoaderOptions{
		Cards:   stores.Cards,
		Anchors: stores.Anchors,
		Logger:  logger,
	})
	counts, err := loader.Load(ctx, records, source)
	fmt.Println(counts)
	if err != nil {
		return err
	}
	logger.Printf("%d anchors written", counts.Anchors)
	return nil
}
