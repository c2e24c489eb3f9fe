package storage

import (
	"context"

	"cardmarket-lab/internal/domain"
)

// CardStore provides access to cards storage.
type CardStore interface {
	// GetOrCreate returns the card with c's identity key, inserting c when absent.
	// created reports whether a new row was written. An existing card with an
	// empty display name takes c.DisplayName; nothing else is modified.
	GetOrCreate(ctx context.Context, c *domain.Card) (card *domain.Card, created bool, err error)

	// GetByID retrieves a card by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, cardID string) (*domain.Card, error)

	// GetByKey retrieves a card by its normalized identity key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, key domain.CardKey) (*domain.Card, error)

	// List returns up to limit cards with card_id > afterID, ordered by card_id.
	// limit <= 0 means no limit.
	List(ctx context.Context, afterID string, limit int) ([]*domain.Card, error)

	// Count returns the number of stored cards.
	Count(ctx context.Context) (int, error)
}

// ListingStore provides access to listings storage.
// Listings hold the latest observed state and are updated in place.
type ListingStore interface {
	// Insert adds a new listing. Returns ErrDuplicateKey if (source, source_id) exists.
	Insert(ctx context.Context, l *domain.Listing) error

	// Update overwrites the mutable fields of the listing with l.ListingID.
	// Returns ErrNotFound if not exists.
	Update(ctx context.Context, l *domain.Listing) error

	// GetBySourceID retrieves a listing by (source, source_id). Returns ErrNotFound if not exists.
	GetBySourceID(ctx context.Context, source, sourceID string) (*domain.Listing, error)

	// GetByURL retrieves the most recently seen listing by (source, url). Returns ErrNotFound if not exists.
	GetByURL(ctx context.Context, source, url string) (*domain.Listing, error)

	// GetByCardID retrieves all listings for a card, ordered by seen_at DESC.
	GetByCardID(ctx context.Context, cardID string) ([]*domain.Listing, error)

	// List returns up to limit listings with listing_id > afterID, ordered by listing_id.
	// limit <= 0 means no limit.
	List(ctx context.Context, afterID string, limit int) ([]*domain.Listing, error)

	// Count returns the number of stored listings.
	Count(ctx context.Context) (int, error)
}

// CompSaleStore provides access to comp_sales storage (insert-only).
type CompSaleStore interface {
	// Insert adds a new sale. Returns ErrDuplicateKey if comp_sale_id,
	// (source, external_id) or dedup_key already exists.
	Insert(ctx context.Context, c *domain.CompSale) error

	// GetByCardID retrieves all sales for a card, ordered by sold_at ASC.
	GetByCardID(ctx context.Context, cardID string) ([]*domain.CompSale, error)

	// ListTitles returns up to limit distinct non-empty titles found in raw payloads.
	ListTitles(ctx context.Context, limit int) ([]string, error)

	// CountSoldSince returns the number of sales with sold_at >= since and the
	// number of cards with at least minPerCard of them.
	CountSoldSince(ctx context.Context, since int64, minPerCard int) (sales, cards int, err error)

	// List returns up to limit sales with comp_sale_id > afterID, ordered by comp_sale_id.
	// limit <= 0 means no limit.
	List(ctx context.Context, afterID string, limit int) ([]*domain.CompSale, error)

	// Count returns the number of stored sales.
	Count(ctx context.Context) (int, error)
}

// RawImportStore provides access to raw_imports storage (append-only).
type RawImportStore interface {
	// Insert adds a new raw import. Returns ErrDuplicateKey if dedup_key exists.
	Insert(ctx context.Context, r *domain.RawImport) error

	// GetByDedupKey retrieves a raw import by dedup key. Returns ErrNotFound if not exists.
	GetByDedupKey(ctx context.Context, dedupKey string) (*domain.RawImport, error)

	// ListTitles returns up to limit distinct non-empty titles found in payloads.
	ListTitles(ctx context.Context, limit int) ([]string, error)

	// Count returns the number of stored raw imports.
	Count(ctx context.Context) (int, error)
}

// TitleCacheStore provides access to title_parse_cache storage.
type TitleCacheStore interface {
	// Get retrieves a cached parse. Returns ErrNotFound if not exists.
	Get(ctx context.Context, schemaVersion int, titleHash string) (*domain.TitleParse, error)

	// Upsert inserts a parse or replaces the parsed fields of an existing one.
	// Hits and CreatedAt of an existing row are preserved.
	Upsert(ctx context.Context, p *domain.TitleParse) error

	// IncrementHits bumps the hit counter. Returns ErrNotFound if not exists.
	IncrementHits(ctx context.Context, schemaVersion int, titleHash string) error
}

// PriceAnchorStore provides access to price_anchors storage (append-only time series).
type PriceAnchorStore interface {
	// InsertBulk adds multiple anchors. Fails entire batch on duplicate
	// (card_id, source, price_type, observed_at).
	InsertBulk(ctx context.Context, anchors []*domain.PriceAnchor) error

	// GetByCardID retrieves all anchors for a card, ordered by observed_at ASC.
	GetByCardID(ctx context.Context, cardID string) ([]*domain.PriceAnchor, error)
}
