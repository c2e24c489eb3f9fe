package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/textnorm"
	"cardmarket-lab/internal/titleparse"
	"cardmarket-lab/internal/workpool"
)

// TitleSource lists stored titles. Implemented by the comp sale and raw
// import stores.
type TitleSource interface {
	ListTitles(ctx context.Context, limit int) ([]string, error)
}

// TitleResolver parses a title and reports cache write failures.
type TitleResolver interface {
	Resolve(ctx context.Context, title string, opts titleparse.Options) (*domain.ParsedTitle, error)
}

// Backfill defaults.
const (
	DefaultBackfillMax         = 50000
	DefaultBackfillConcurrency = 8
)

// TitleBackfiller warms the title parse cache from stored titles.
type TitleBackfiller struct {
	resolver     TitleResolver
	sources      []TitleSource
	max          int
	concurrency  int
	parseOptions titleparse.Options
	logger       *log.Logger
	recorder     Recorder
}

// TitleBackfillOptions contains configuration for creating a TitleBackfiller.
type TitleBackfillOptions struct {
	Resolver     TitleResolver
	Sources      []TitleSource
	Max          int // Default: 50000 distinct titles
	Concurrency  int // Default: 8
	ParseOptions titleparse.Options
	Logger       *log.Logger
	Recorder     Recorder
}

// NewTitleBackfiller creates a new title cache backfiller.
func NewTitleBackfiller(opts TitleBackfillOptions) *TitleBackfiller {
	maxTitles := opts.Max
	if maxTitles <= 0 {
		maxTitles = DefaultBackfillMax
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultBackfillConcurrency
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &TitleBackfiller{
		resolver:     opts.Resolver,
		sources:      opts.Sources,
		max:          maxTitles,
		concurrency:  concurrency,
		parseOptions: opts.ParseOptions,
		logger:       logger,
		recorder:     opts.Recorder,
	}
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	Titles   int
	OK       int64
	Miss     int64
	Err      int64
	Duration time.Duration
}

func (r BackfillResult) String() string {
	return fmt.Sprintf("[title-cache/backfill] ok=%d miss=%d err=%d", r.OK, r.Miss, r.Err)
}

// CollectTitles gathers up to max distinct titles across sources, in
// source order. Titles equal after normalization count once.
func (b *TitleBackfiller) CollectTitles(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var titles []string

	// Each source is asked for the full budget: titles it shares with an
	// earlier source are dropped below and must not shrink the total.
	for _, src := range b.sources {
		if len(titles) >= b.max {
			break
		}
		got, err := src.ListTitles(ctx, b.max)
		if err != nil {
			return nil, fmt.Errorf("list titles: %w", err)
		}
		for _, t := range got {
			norm := textnorm.Fold(t)
			if norm == "" {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			titles = append(titles, t)
			if len(titles) >= b.max {
				break
			}
		}
	}
	return titles, nil
}

// Run collects titles and resolves each through the cache. A title that
// parses counts ok, one that does not counts miss, and a cache write
// failure counts err.
func (b *TitleBackfiller) Run(ctx context.Context) (BackfillResult, error) {
	start := time.Now()

	titles, err := b.CollectTitles(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	b.logger.Printf("backfilling %d titles with concurrency %d", len(titles), b.concurrency)

	var opts []workpool.Option
	if b.recorder != nil {
		opts = append(opts, workpool.WithInFlightObserver(b.recorder.SetInFlight))
	}
	opts = append(opts, workpool.WithErrorHandler(func(err error) {
		b.logger.Printf("title: %v", err)
	}))

	stats := workpool.Run(ctx, titles, b.concurrency, func(ctx context.Context, title string) (bool, error) {
		parsed, err := b.resolver.Resolve(ctx, title, b.parseOptions)
		if err != nil {
			return false, err
		}
		return parsed != nil, nil
	}, opts...)

	return BackfillResult{
		Titles:   len(titles),
		OK:       stats.OK,
		Miss:     stats.Miss,
		Err:      stats.Err,
		Duration: time.Since(start),
	}, nil
}
