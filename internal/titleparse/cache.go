package titleparse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/storage"
	"cardmarket-lab/internal/textnorm"
)

// Cache defaults.
const (
	DefaultSchemaVersion = 1
	DefaultCacheSize     = 10000
)

// Cache lookup results reported to CacheObserver.
const (
	CacheHitMemory = "memory"
	CacheHitStore  = "store"
	CacheMiss      = "miss"
)

// CacheObserver receives cache lookup results.
type CacheObserver interface {
	ObserveCache(result string)
}

// CacheOptions configure CachedParser.
type CacheOptions struct {
	SchemaVersion int // bump to invalidate every stored parse
	Size          int // in-process LRU entries
	Logger        *log.Logger
	Observer      CacheObserver
	Now           func() time.Time
}

// CachedParser serves parses from an in-process LRU, then from a
// persistent store, and writes fresh parses through to both.
// Cached entries below the requested MinConfidence are re-parsed.
type CachedParser struct {
	parser        TitleParser
	store         storage.TitleCacheStore
	lru           *lru.Cache
	schemaVersion int
	logger        *log.Logger
	observer      CacheObserver
	now           func() time.Time
}

// NewCachedParser wraps parser. store may be nil for an LRU-only cache.
func NewCachedParser(parser TitleParser, store storage.TitleCacheStore, opts CacheOptions) (*CachedParser, error) {
	if opts.SchemaVersion <= 0 {
		opts.SchemaVersion = DefaultSchemaVersion
	}
	if opts.Size <= 0 {
		opts.Size = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.New(opts.Size)
	if err != nil {
		return nil, fmt.Errorf("create title lru: %w", err)
	}

	return &CachedParser{
		parser:        parser,
		store:         store,
		lru:           cache,
		schemaVersion: opts.SchemaVersion,
		logger:        opts.Logger,
		observer:      opts.Observer,
		now:           opts.Now,
	}, nil
}

// Parse implements TitleParser. Cache failures are logged and never turn a
// parse into a miss.
func (c *CachedParser) Parse(ctx context.Context, title string, opts Options) *domain.ParsedTitle {
	p, err := c.Resolve(ctx, title, opts)
	if err != nil {
		c.logger.Printf("title cache: %v", err)
	}
	return p
}

// Resolve is Parse with cache errors surfaced. The returned parse is valid
// even when err is non-nil. ModeDeterministic skips the cache: its result
// depends on the title alone and must not pick up model entries.
func (c *CachedParser) Resolve(ctx context.Context, title string, opts Options) (*domain.ParsedTitle, error) {
	if opts.Mode == ModeDeterministic {
		return c.parser.Parse(ctx, title, opts), nil
	}

	norm := textnorm.Fold(title)
	if norm == "" {
		return nil, nil
	}
	hash := idhash.HashTitle(norm)

	var errs []error

	if v, ok := c.lru.Get(hash); ok {
		entry := v.(*domain.TitleParse)
		if entry.Confidence >= opts.MinConfidence {
			c.observe(CacheHitMemory)
			if err := c.touch(ctx, hash); err != nil {
				errs = append(errs, err)
			}
			return fromCache(entry), errors.Join(errs...)
		}
	}

	if c.store != nil {
		entry, err := c.store.Get(ctx, c.schemaVersion, hash)
		switch {
		case err == nil:
			c.lru.Add(hash, entry)
			if entry.Confidence >= opts.MinConfidence {
				c.observe(CacheHitStore)
				if err := c.touch(ctx, hash); err != nil {
					errs = append(errs, err)
				}
				return fromCache(entry), errors.Join(errs...)
			}
		case errors.Is(err, storage.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("get cached parse: %w", err))
		}
	}

	c.observe(CacheMiss)
	parsed := c.parser.Parse(ctx, title, opts)
	if parsed == nil {
		return nil, errors.Join(errs...)
	}

	entry := c.toEntry(title, norm, hash, parsed)
	c.lru.Add(hash, entry)
	if c.store != nil {
		if err := c.store.Upsert(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("store cached parse: %w", err))
		}
	}
	return parsed, errors.Join(errs...)
}

func (c *CachedParser) touch(ctx context.Context, hash string) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.IncrementHits(ctx, c.schemaVersion, hash); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("increment cache hits: %w", err)
	}
	return nil
}

func (c *CachedParser) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveCache(result)
	}
}

func (c *CachedParser) toEntry(raw, norm, hash string, p *domain.ParsedTitle) *domain.TitleParse {
	now := c.now().UnixMilli()
	return &domain.TitleParse{
		SchemaVersion: c.schemaVersion,
		TitleHash:     hash,
		TitleRaw:      raw,
		TitleNorm:     norm,
		SetCode:       p.SetCode,
		Number:        p.Number,
		VariantKey:    p.VariantKey,
		Language:      p.Language,
		Confidence:    p.Confidence,
		CardSlug:      idhash.CardSlug(p.SetCode, p.Number, p.VariantKey),
		Method:        p.Method,
		Hits:          1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// fromCache rebuilds a ParsedTitle from a cache row. Edition and foil are
// recovered from the variant key.
func fromCache(e *domain.TitleParse) *domain.ParsedTitle {
	p := &domain.ParsedTitle{
		SetCode:    e.SetCode,
		Number:     e.Number,
		VariantKey: e.VariantKey,
		Language:   idhash.NormalizeLanguage(e.Language),
		Confidence: e.Confidence,
		Method:     e.Method,
		Fallback:   e.Method == domain.ParseMethodFallback,
	}
	for _, part := range strings.Split(e.VariantKey, "|") {
		switch part {
		case "1st":
			p.Edition = "1st"
		case "holo":
			p.Foil = "Holo"
		case "reverse":
			p.Foil = "Reverse"
		}
	}
	return p
}

var _ TitleParser = (*Parser)(nil)
var _ TitleParser = (*CachedParser)(nil)
