// Package catalog resolves set codes and set names against an embedded
// list of known sets.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/sahilm/fuzzy"

	"cardmarket-lab/internal/textnorm"
)

//go:embed sets.yaml
var embeddedSets []byte

// Set describes one card set.
type Set struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Series  string   `yaml:"series"`
	Total   int      `yaml:"total"`
	Vintage bool     `yaml:"vintage"`
	Aliases []string `yaml:"aliases"`
}

// Catalog indexes sets by code, name and alias.
type Catalog struct {
	sets  []Set
	byKey map[string]int // textnorm.Key of code/name/alias -> index in sets
	names setNames
}

// setNames implements fuzzy.Source over set names.
type setNames []string

func (n setNames) String(i int) string { return n[i] }
func (n setNames) Len() int            { return len(n) }

// Parse builds a catalog from YAML. Duplicate codes, names or aliases
// pointing at different sets are rejected.
func Parse(data []byte) (*Catalog, error) {
	var sets []Set
	if err := yaml.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("decode set catalog: %w", err)
	}

	c := &Catalog{
		sets:  make([]Set, 0, len(sets)),
		byKey: make(map[string]int),
	}
	for _, s := range sets {
		s.Code = strings.ToLower(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return nil, fmt.Errorf("set %q has no code", s.Name)
		}
		idx := len(c.sets)
		c.sets = append(c.sets, s)
		c.names = append(c.names, textnorm.Fold(s.Name))

		for _, k := range append([]string{s.Code, s.Name}, s.Aliases...) {
			key := textnorm.Key(k)
			if key == "" {
				continue
			}
			if prev, ok := c.byKey[key]; ok && prev != idx {
				return nil, fmt.Errorf("set key %q maps to both %s and %s", k, c.sets[prev].Code, s.Code)
			}
			c.byKey[key] = idx
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. Panics if the embedded data is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedSets)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded sets.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Len returns the number of sets.
func (c *Catalog) Len() int { return len(c.sets) }

// Lookup finds a set by exact code, name or alias, ignoring case,
// accents and punctuation.
func (c *Catalog) Lookup(s string) (Set, bool) {
	idx, ok := c.byKey[textnorm.Key(s)]
	if !ok {
		return Set{}, false
	}
	return c.sets[idx], true
}

// Search resolves a free-text set name: exact Lookup first, then a fuzzy
// match over set names. A fuzzy match is only returned when it is
// unambiguous (strictly better score than the runner-up).
func (c *Catalog) Search(name string) (Set, bool) {
	if s, ok := c.Lookup(name); ok {
		return s, true
	}

	query := textnorm.Fold(name)
	if len(query) < 4 {
		return Set{}, false
	}

	matches := fuzzy.FindFrom(query, c.names)
	if len(matches) == 0 {
		return Set{}, false
	}
	if len(matches) > 1 && matches[1].Score == matches[0].Score {
		return Set{}, false
	}
	return c.sets[matches[0].Index], true
}

// CanonicalCode maps a known alias to its set code. Unknown codes are
// returned lowercased with whitespace removed.
func (c *Catalog) CanonicalCode(setCode string) string {
	if s, ok := c.Lookup(setCode); ok {
		return s.Code
	}
	return strings.Join(strings.Fields(strings.ToLower(setCode)), "")
}

// VintageNames returns folded names and aliases of vintage sets mapped to
// their codes, longest first so "base set 2" is tried before "base set".
func (c *Catalog) VintageNames() []NamedSet {
	var out []NamedSet
	for _, s := range c.sets {
		if !s.Vintage {
			continue
		}
		seen := map[string]bool{}
		for _, n := range append([]string{s.Name}, s.Aliases...) {
			f := textnorm.Fold(n)
			// Two-letter abbreviations are too ambiguous inside titles.
			if len(f) < 4 || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, NamedSet{Name: f, Code: s.Code})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Name) != len(out[j].Name) {
			return len(out[i].Name) > len(out[j].Name)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NamedSet pairs a folded set name with its code.
type NamedSet struct {
	Name string
	Code string
}
