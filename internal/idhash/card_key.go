package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"cardmarket-lab/internal/domain"
)

// numberWidth is the zero-padded width of numeric collector numbers.
const numberWidth = 3

// CardKey builds a normalized card identity key.
// Superficially different spellings of the same card ("SV1", " sv1 ",
// "15", "#015", "15/198") converge to one key.
func CardKey(setCode, number, variantKey, language string) domain.CardKey {
	return domain.CardKey{
		SetCode:    NormalizeSetCode(setCode),
		Number:     NormalizeNumber(number),
		VariantKey: strings.TrimSpace(variantKey),
		Language:   NormalizeLanguage(language),
	}
}

// NormalizeSetCode lowercases a set code and removes all whitespace.
func NormalizeSetCode(setCode string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, setCode)
}

// NormalizeNumber canonicalizes a collector number.
// A "/total" suffix and leading "#" are dropped; purely numeric numbers are
// zero-padded to three digits; anything else is uppercased.
func NormalizeNumber(number string) string {
	n := strings.TrimSpace(number)
	n = strings.TrimPrefix(n, "#")
	if i := strings.Index(n, "/"); i > 0 {
		n = n[:i]
	}
	n = strings.ToUpper(strings.Join(strings.Fields(n), ""))
	if n == "" {
		return ""
	}
	if isDigits(n) {
		n = strings.TrimLeft(n, "0")
		if n == "" {
			n = "0"
		}
		if len(n) < numberWidth {
			n = strings.Repeat("0", numberWidth-len(n)) + n
		}
	}
	return n
}

// ComputeCardID computes a deterministic card_id using SHA256.
// Formula: SHA256(set_code|number|variant_key|language) over the normalized key.
// Returns hex-encoded hash (64 characters).
func ComputeCardID(key domain.CardKey) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		key.SetCode,
		key.Number,
		key.VariantKey,
		key.Language,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// CardSlug returns a human-readable slug such as "sv1-015-en".
func CardSlug(setCode, number, variantKey string) string {
	if variantKey == "" {
		variantKey = "EN"
	}
	return fmt.Sprintf("%s-%s-%s",
		NormalizeSetCode(setCode),
		strings.ToLower(NormalizeNumber(number)),
		strings.ToLower(variantKey),
	)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
