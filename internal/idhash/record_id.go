package idhash

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeListingID computes a deterministic listing_id using SHA256.
// Formula: SHA256(source|source_id)
// Returns hex-encoded hash (64 characters).
func ComputeListingID(source, sourceID string) string {
	data := fmt.Sprintf("%s|%s", source, sourceID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeCompSaleID computes a deterministic comp_sale_id using SHA256.
// Formula: SHA256(source|external_id|dedup_key), nil parts encode as empty.
func ComputeCompSaleID(source string, externalID, dedupKey *string) string {
	ext, dk := "", ""
	if externalID != nil {
		ext = *externalID
	}
	if dedupKey != nil {
		dk = *dedupKey
	}
	data := fmt.Sprintf("%s|%s|%s", source, ext, dk)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRawImportID computes a deterministic raw_import_id using SHA256.
// Formula: SHA256(table|dedup_key)
func ComputeRawImportID(table, dedupKey string) string {
	data := fmt.Sprintf("%s|%s", table, dedupKey)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// HashTitle computes the title cache key: SHA1 of the normalized title.
// Returns hex-encoded hash (40 characters).
func HashTitle(normalizedTitle string) string {
	hash := sha1.Sum([]byte(normalizedTitle))
	return hex.EncodeToString(hash[:])
}
