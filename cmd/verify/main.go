package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cardmarket-lab/internal/app"
	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Optional TOML config file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (default $DATABASE_URL)")
	pageSize := flag.Int("page-size", verification.DefaultPageSize, "Records read per query")
	showMax := flag.Int("show", 20, "Print at most N divergent records (0 = all)")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[verify] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	if config.Visited(flag.CommandLine)["postgres-dsn"] {
		cfg.Database.PostgresDSN = *postgresDSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{PostgresDSN: cfg.Database.PostgresDSN})
	if err != nil {
		logger.Fatalf("Storage: %v", err)
	}
	defer cleanup()

	verifier := verification.NewStoreVerifier(verification.StoreVerifierOptions{
		Cards:    stores.Cards,
		Listings: stores.Listings,
		Comps:    stores.Comps,
		PageSize: *pageSize,
	})
	report, err := verifier.VerifyAll(ctx)
	if err != nil {
		cleanup()
		logger.Fatalf("Verify: %v", err)
	}

	for i, res := range report.Results {
		if *showMax > 0 && i >= *showMax {
			fmt.Printf("... %d more\n", len(report.Results)-i)
			break
		}
		for _, d := range res.Divergences {
			fmt.Printf("%s %s: %s expected=%v actual=%v\n", res.Kind, res.ID, d.Field, d.Expected, d.Actual)
		}
	}
	fmt.Println(report)

	if !report.OK() {
		cleanup()
		os.Exit(1)
	}
}
