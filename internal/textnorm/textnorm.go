// Package textnorm folds free text into comparable form.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold decomposes s (NFKD), strips combining marks, lowercases, trims and
// collapses runs of whitespace to one space. "  Pokémon  SV1 " becomes
// "pokemon sv1".
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.Und).String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// Key is Fold with everything except letters and digits removed, for
// matching names such as "Scarlet & Violet" against "scarlet violet".
func Key(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, Fold(s))
}

// Title title-cases s in English, e.g. "near mint" -> "Near Mint".
func Title(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}
