package titleparse

import (
	"math"
	"regexp"
	"sync"

	"cardmarket-lab/internal/catalog"
	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/textnorm"
)

// FallbackConfidenceCap keeps fallback results below DefaultMinConfidence.
const FallbackConfidenceCap = 0.64

const (
	codeRuleConfidence  = 0.55
	namedRuleConfidence = 0.5
)

var (
	// "sv1 15", "sv1-015", "sv3pt5 #151", "sv4a 12"
	svRule = regexp.MustCompile(`\b(sv\d{1,2}(?:pt5|[a-z])?)\s*[-#/ ]?\s*#?(\d{1,3})\b`)

	// "swsh7 215", "base1 #4", "pgo-078", "cel25 25/25"
	codeRule = regexp.MustCompile(`\b((?:swsh|sm|xy|bw|dp|hgss|base|gym|neo)\d{1,2}(?:pt5|a)?|pgo|cel25)(?:\s+|\s*[-#/]\s*)#?(\d{1,3})\b`)

	// number after a set name: "charizard 4/102", "#15"
	numberRule = regexp.MustCompile(`(?:#|\b)(\d{1,3})(?:\s*/\s*\d{1,3})?\b`)

	gradeRule   = regexp.MustCompile(`\b(psa|bgs|cgc|sgc|beckett)\s*(\d{1,2}(?:\.5)?)\b`)
	jpRule      = regexp.MustCompile(`\b(jp|jpn|jap|japanese)\b`)
	editionRule = regexp.MustCompile(`\b(1st|first)\b`)
	reverseRule = regexp.MustCompile(`\breverse\b`)
	holoRule    = regexp.MustCompile(`\bholo(foil)?\b`)
)

// Fallback parses a title with fixed regex rules. It never performs I/O.
// Results carry Fallback=true and confidence capped at FallbackConfidenceCap.
func Fallback(title string, cat *catalog.Catalog) *domain.ParsedTitle {
	if cat == nil {
		cat = catalog.Default()
	}
	t := textnorm.Fold(title)
	if t == "" {
		return nil
	}

	grade := ""
	if m := gradeRule.FindStringSubmatch(t); m != nil {
		grade = m[1] + " " + m[2]
	}
	// Grades carry digits that would read as card numbers.
	stripped := gradeRule.ReplaceAllString(t, " ")

	setCode, number, conf := matchIdentity(stripped, cat)
	if setCode == "" {
		return nil
	}

	lang := "EN"
	if jpRule.MatchString(stripped) {
		lang = "JP"
	}
	edition := ""
	if editionRule.MatchString(stripped) {
		edition = "1st"
	}
	foil := ""
	switch {
	case reverseRule.MatchString(stripped):
		foil = "Reverse"
	case holoRule.MatchString(stripped):
		foil = "Holo"
	}

	return &domain.ParsedTitle{
		SetCode:    setCode,
		Number:     idhash.NormalizeNumber(number),
		VariantKey: variantKey(edition, foil, lang),
		Language:   lang,
		Edition:    edition,
		Foil:       foil,
		Grade:      grade,
		Confidence: math.Min(conf, FallbackConfidenceCap),
		Method:     domain.ParseMethodFallback,
		Fallback:   true,
	}
}

func matchIdentity(t string, cat *catalog.Catalog) (setCode, number string, conf float64) {
	if m := svRule.FindStringSubmatch(t); m != nil {
		return cat.CanonicalCode(m[1]), m[2], codeRuleConfidence
	}
	if m := codeRule.FindStringSubmatch(t); m != nil {
		return cat.CanonicalCode(m[1]), m[2], codeRuleConfidence
	}
	for _, r := range namedRulesFor(cat) {
		loc := r.re.FindStringIndex(t)
		if loc == nil {
			continue
		}
		if m := numberRule.FindStringSubmatch(t[loc[1]:]); m != nil {
			return r.code, m[1], namedRuleConfidence
		}
	}
	return "", "", 0
}

type namedRule struct {
	re   *regexp.Regexp
	code string
}

var namedRules sync.Map // *catalog.Catalog -> []namedRule

// namedRulesFor compiles one word-bounded matcher per vintage set name,
// longest names first.
func namedRulesFor(cat *catalog.Catalog) []namedRule {
	if v, ok := namedRules.Load(cat); ok {
		return v.([]namedRule)
	}
	names := cat.VintageNames()
	rules := make([]namedRule, 0, len(names))
	for _, ns := range names {
		rules = append(rules, namedRule{
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(ns.Name) + `\b`),
			code: ns.Code,
		})
	}
	v, _ := namedRules.LoadOrStore(cat, rules)
	return v.([]namedRule)
}
