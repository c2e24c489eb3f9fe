package domain

import "encoding/json"

// Logical table names recorded on RawImport rows.
const (
	RawTableListing  = "Listing"
	RawTableCompSale = "CompSale"
)

// RawImport is the append-only audit copy of an untouched source payload.
// Corresponds to raw_imports table in PostgreSQL. UNIQUE (dedup_key).
type RawImport struct {
	RawImportID string          // PRIMARY KEY, deterministic hash of dedup_key
	TableName   string          // logical target table
	Source      string          // marketplace tag
	SourceID    string          // resolved source id, may be empty
	Payload     json.RawMessage // untouched upstream payload
	DedupKey    string          // never empty
	ImportedAt  int64           // import time (ms)
}
