package idhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// stableHashLen is the number of hex characters kept from the SHA256 digest.
const stableHashLen = 32

// StableHash computes a deterministic hash of any JSON-encodable value.
// Object keys are sorted at every depth before hashing, so structurally equal
// values hash identically regardless of key order.
// Returns hex-encoded hash (32 characters).
func StableHash(v any) (string, error) {
	canonical, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])[:stableHashLen], nil
}

// MustStableHash is StableHash for values that are known to encode.
// Panics on encoding failure.
func MustStableHash(v any) string {
	h, err := StableHash(v)
	if err != nil {
		panic(err)
	}
	return h
}

// canonicalJSON re-encodes v through a generic representation.
// encoding/json writes map keys in sorted order, and UseNumber keeps
// integers exact.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for hashing: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode for hashing: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal for hashing: %w", err)
	}
	return out, nil
}
