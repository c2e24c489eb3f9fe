// Package app wires stores, parsers and mappers for the command-line tools.
package app

import (
	"context"
	"errors"
	"fmt"

	"cardmarket-lab/internal/storage"
	chstore "cardmarket-lab/internal/storage/clickhouse"
	"cardmarket-lab/internal/storage/memory"
	"cardmarket-lab/internal/storage/migrations"
	pgstore "cardmarket-lab/internal/storage/postgres"
	"cardmarket-lab/internal/upsert"
)

// Stores holds every storage implementation a tool may need. Anchors is
// nil unless requested.
type Stores struct {
	Cards      storage.CardStore
	Listings   storage.ListingStore
	Comps      storage.CompSaleStore
	RawImports storage.RawImportStore
	TitleCache storage.TitleCacheStore
	Anchors    storage.PriceAnchorStore
}

// Engine returns an upsert engine over the relational stores.
func (s *Stores) Engine(opts ...upsert.Option) *upsert.Engine {
	return upsert.NewEngine(upsert.Stores{
		Cards:      s.Cards,
		Listings:   s.Listings,
		Comps:      s.Comps,
		RawImports: s.RawImports,
	}, opts...)
}

// StoreOptions selects the storage backends.
type StoreOptions struct {
	UseMemory     bool
	PostgresDSN   string
	ClickHouseDSN string
	MaxConns      int32 // postgres pool ceiling; 0 keeps the pgxpool default
	Migrate       bool  // apply embedded migrations before returning
	WithAnchors   bool  // open the ClickHouse anchor store
}

// ErrMissingDSN is returned when a database backend is requested without
// a connection string.
var ErrMissingDSN = errors.New("missing database connection string")

// OpenStores creates the requested stores. The returned cleanup closes any
// open connections and is never nil.
func OpenStores(ctx context.Context, opts StoreOptions) (*Stores, func(), error) {
	if opts.UseMemory {
		stores := &Stores{
			Cards:      memory.NewCardStore(),
			Listings:   memory.NewListingStore(),
			Comps:      memory.NewCompSaleStore(),
			RawImports: memory.NewRawImportStore(),
			TitleCache: memory.NewTitleCacheStore(),
		}
		if opts.WithAnchors {
			stores.Anchors = memory.NewPriceAnchorStore()
		}
		return stores, func() {}, nil
	}

	if opts.PostgresDSN == "" {
		return nil, func() {}, fmt.Errorf("postgres: %w (set DATABASE_URL or -postgres-dsn)", ErrMissingDSN)
	}
	if opts.WithAnchors && opts.ClickHouseDSN == "" {
		return nil, func() {}, fmt.Errorf("clickhouse: %w (set CLICKHOUSE_DSN or -clickhouse-dsn)", ErrMissingDSN)
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, opts.PostgresDSN, pgstore.WithMaxConns(opts.MaxConns))
	if err != nil {
		return nil, func() {}, err
	}
	if opts.Migrate {
		if _, err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	stores := &Stores{
		Cards:      pgstore.NewCardStore(pool),
		Listings:   pgstore.NewListingStore(pool),
		Comps:      pgstore.NewCompSaleStore(pool),
		RawImports: pgstore.NewRawImportStore(pool),
		TitleCache: pgstore.NewTitleCacheStore(pool),
	}
	if !opts.WithAnchors {
		return stores, pool.Close, nil
	}

	// ClickHouse
	var chConn *chstore.Conn
	if opts.Migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, opts.ClickHouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, opts.ClickHouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.Anchors = chstore.NewPriceAnchorStore(chConn)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}
