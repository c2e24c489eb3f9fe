package domain

// Listing represents the latest observed state of an offer for a card.
// Corresponds to listings table in PostgreSQL.
// Unique per (source, source_id); mutated in place on re-observation.
type Listing struct {
	ListingID       string  // PRIMARY KEY, deterministic hash of (source, source_id)
	CardID          string  // references cards.card_id
	Source          string  // marketplace tag, e.g. "Ebay"
	SourceID        string  // upstream listing id, or a stable hash when upstream has none
	URL             string  // listing url (secondary lookup key)
	Title           string  // raw listing title
	PriceMinorUnits int64   // price in minor currency units (cents)
	Currency        string  // ISO currency code
	Condition       string  // e.g. "Near Mint", "Unknown"
	Grade           *string // grading label, nullable
	IsActive        bool    // listing currently offered
	IsAuction       bool    // auction-style listing
	AuctionEndsAt   *int64  // auction end (ms), nullable
	BidCount        *int    // auction bid count, nullable
	FirstSeenAt     int64   // first observation (ms)
	SeenAt          int64   // latest observation (ms)
	UpdatedAt       int64   // last write (ms)
}

// CanonicalListing is a mapped listing that has not yet been resolved to a card.
type CanonicalListing struct {
	CardKey         CardKey
	DisplayName     string
	Source          string
	SourceID        string
	URL             string
	Title           string
	PriceMinorUnits int64
	Currency        string
	Condition       string
	Grade           *string
	IsAuction       bool
	AuctionEndsAt   *int64
	BidCount        *int
	SeenAt          int64
	LowConfidence   bool // identity came from a parse below the confidence threshold
}
