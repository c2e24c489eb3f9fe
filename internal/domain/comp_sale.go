package domain

import "encoding/json"

// CompSale represents an immutable historical sale event.
// Corresponds to comp_sales table in PostgreSQL.
// Dedup: UNIQUE (source, external_id) and UNIQUE (dedup_key).
type CompSale struct {
	CompSaleID      string          // PRIMARY KEY, deterministic hash
	CardID          string          // references cards.card_id
	Source          string          // marketplace tag, e.g. "EbaySold"
	ExternalID      *string         // upstream sale id, nullable
	DedupKey        *string         // natural key, set when ExternalID is nil
	PriceMinorUnits int64           // sale price in minor units
	Currency        string          // ISO currency code
	SoldAt          int64           // sale time (ms)
	Raw             json.RawMessage // original payload
	CreatedAt       int64           // record creation timestamp (ms)
}

// CanonicalComp is a mapped sale event that has not yet been resolved to a card.
type CanonicalComp struct {
	CardKey         CardKey
	DisplayName     string
	Source          string
	ExternalID      *string
	DedupKey        *string
	PriceMinorUnits int64
	Currency        string
	SoldAt          int64
	Raw             json.RawMessage
	LowConfidence   bool
}
