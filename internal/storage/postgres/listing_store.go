package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// ListingStore implements storage.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *Pool
}

// NewListingStore creates a new ListingStore.
func NewListingStore(pool *Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

const listingColumns = `
	listing_id, card_id, source, source_id, url, title, price_minor_units,
	currency, condition, grade, is_active, is_auction, auction_ends_at,
	bid_count, first_seen_at, seen_at, updated_at
`

// Insert adds a new listing. Returns ErrDuplicateKey if (source, source_id) exists.
func (s *ListingStore) Insert(ctx context.Context, l *domain.Listing) error {
	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.pool.Exec(ctx, query,
		l.ListingID,
		l.CardID,
		l.Source,
		l.SourceID,
		l.URL,
		l.Title,
		l.PriceMinorUnits,
		l.Currency,
		l.Condition,
		l.Grade,
		l.IsActive,
		l.IsAuction,
		l.AuctionEndsAt,
		l.BidCount,
		l.FirstSeenAt,
		l.SeenAt,
		l.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("insert listing: unknown card %s: %w", l.CardID, storage.ErrInvalidInput)
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing listing.
// Returns ErrNotFound if not exists.
func (s *ListingStore) Update(ctx context.Context, l *domain.Listing) error {
	query := `
		UPDATE listings SET
			card_id = $2,
			url = $3,
			title = $4,
			price_minor_units = $5,
			currency = $6,
			condition = $7,
			grade = $8,
			is_active = $9,
			is_auction = $10,
			auction_ends_at = $11,
			bid_count = $12,
			seen_at = $13,
			updated_at = $14
		WHERE listing_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		l.ListingID,
		l.CardID,
		l.URL,
		l.Title,
		l.PriceMinorUnits,
		l.Currency,
		l.Condition,
		l.Grade,
		l.IsActive,
		l.IsAuction,
		l.AuctionEndsAt,
		l.BidCount,
		l.SeenAt,
		l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetBySourceID retrieves a listing by (source, source_id). Returns ErrNotFound if not exists.
func (s *ListingStore) GetBySourceID(ctx context.Context, source, sourceID string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE source = $1 AND source_id = $2`

	l, err := scanListing(s.pool.QueryRow(ctx, query, source, sourceID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get listing by source id: %w", err)
	}
	return l, nil
}

// GetByURL retrieves the most recently seen listing by (source, url). Returns ErrNotFound if not exists.
func (s *ListingStore) GetByURL(ctx context.Context, source, url string) (*domain.Listing, error) {
	if url == "" {
		return nil, storage.ErrNotFound
	}

	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE source = $1 AND url = $2
		ORDER BY seen_at DESC
		LIMIT 1
	`

	l, err := scanListing(s.pool.QueryRow(ctx, query, source, url))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get listing by url: %w", err)
	}
	return l, nil
}

// GetByCardID retrieves all listings for a card, ordered by seen_at DESC.
func (s *ListingStore) GetByCardID(ctx context.Context, cardID string) ([]*domain.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE card_id = $1
		ORDER BY seen_at DESC, listing_id ASC
	`

	rows, err := s.pool.Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("query listings by card id: %w", err)
	}
	defer rows.Close()

	var result []*domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return result, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// scanListing scans a single row into Listing.
// List returns up to limit listings with listing_id > afterID, ordered by listing_id.
func (s *ListingStore) List(ctx context.Context, afterID string, limit int) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE listing_id > $1 ORDER BY listing_id LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var result []*domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return result, nil
}

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ListingID,
		&l.CardID,
		&l.Source,
		&l.SourceID,
		&l.URL,
		&l.Title,
		&l.PriceMinorUnits,
		&l.Currency,
		&l.Condition,
		&l.Grade,
		&l.IsActive,
		&l.IsAuction,
		&l.AuctionEndsAt,
		&l.BidCount,
		&l.FirstSeenAt,
		&l.SeenAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
