package idhash

import "strings"

// VariantAttributes are the printing attributes that distinguish cards
// sharing a set and number.
type VariantAttributes struct {
	Edition    string // "1st", "unlimited", ... ; empty when unknown
	Shadowless bool
	Holo       bool
	Reverse    bool
	Language   string // default "EN"
}

// variantSep joins variant key parts.
const variantSep = "|"

// BuildVariantKey encodes variant attributes in a fixed order:
// edition|shadowless|holo|reverse|LANGUAGE. Absent attributes are omitted.
func BuildVariantKey(a VariantAttributes) string {
	parts := make([]string, 0, 5)
	if ed := NormalizeEdition(a.Edition); ed != "" {
		parts = append(parts, ed)
	}
	if a.Shadowless {
		parts = append(parts, "shadowless")
	}
	if a.Holo {
		parts = append(parts, "holo")
	}
	if a.Reverse {
		parts = append(parts, "reverse")
	}
	parts = append(parts, NormalizeLanguage(a.Language))
	return strings.Join(parts, variantSep)
}

// NormalizeEdition maps the spellings of first edition to "1st" and
// lowercases anything else.
func NormalizeEdition(edition string) string {
	e := strings.ToLower(strings.Join(strings.Fields(edition), " "))
	switch e {
	case "":
		return ""
	case "1", "1st", "first", "1st edition", "first edition", "1st ed", "1ed":
		return "1st"
	}
	return e
}

// NormalizeLanguage uppercases a language code, defaulting to "EN".
func NormalizeLanguage(lang string) string {
	l := strings.ToUpper(strings.TrimSpace(lang))
	switch l {
	case "":
		return "EN"
	case "ENG", "ENGLISH":
		return "EN"
	case "JAP", "JPN", "JAPANESE":
		return "JP"
	}
	return l
}
