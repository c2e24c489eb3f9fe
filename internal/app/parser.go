package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/llm"
	"cardmarket-lab/internal/mapping"
	"cardmarket-lab/internal/observability"
	"cardmarket-lab/internal/storage"
	"cardmarket-lab/internal/titleparse"
)

// NewTitleParser builds the cached title parser described by cfg. A model
// provider of "none" leaves only the deterministic rules. metrics and
// store may be nil.
func NewTitleParser(ctx context.Context, cfg *config.Config, store storage.TitleCacheStore, metrics *observability.Metrics, logger *log.Logger) (*titleparse.CachedParser, error) {
	if logger == nil {
		logger = log.Default()
	}

	completer, err := llm.New(ctx, cfg.LLM())
	switch {
	case errors.Is(err, llm.ErrDisabled):
		logger.Printf("model backend disabled; deterministic title rules only")
		completer = nil
	case err != nil:
		return nil, fmt.Errorf("model backend: %w", err)
	}

	parserOpts := []titleparse.ParserOption{
		titleparse.WithLogger(logger),
		titleparse.WithModelTimeout(cfg.Model.Timeout.Duration),
	}
	cacheOpts := titleparse.CacheOptions{
		SchemaVersion: cfg.TitleCache.SchemaVersion,
		Size:          cfg.TitleCache.Size,
		Logger:        logger,
	}
	if metrics != nil {
		completer = llm.Observed(completer, metrics.ObserveModelCall)
		parserOpts = append(parserOpts, titleparse.WithObserver(metrics))
		cacheOpts.Observer = metrics
	}

	return titleparse.NewCachedParser(titleparse.NewParser(completer, parserOpts...), store, cacheOpts)
}

// ParseOptions returns the title parse options described by cfg.
func ParseOptions(cfg *config.Config) titleparse.Options {
	opts := titleparse.DefaultOptions()
	opts.MinConfidence = cfg.TitleCache.MinConfidence
	return opts
}

// NewMapper builds a row mapper over parser with cfg's thresholds and the
// given comp parse mode.
func NewMapper(cfg *config.Config, parser titleparse.TitleParser, compMode titleparse.Mode) *mapping.Mapper {
	opts := mapping.DefaultOptions(parser)
	opts.MinConfidence = cfg.TitleCache.MinConfidence
	opts.CompMode = compMode
	opts.Policy.AcceptLowConfidenceWhenNoAlternative = cfg.Mapping.AcceptLowConfidenceWhenNoAlternative
	return mapping.NewMapper(opts)
}
