// Package titleparse extracts card identity fields from free-text
// marketplace titles.
package titleparse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"cardmarket-lab/internal/catalog"
	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/llm"
)

// DefaultMinConfidence is the acceptance threshold for a parse.
const DefaultMinConfidence = 0.65

const (
	// modelDefaultConfidence is used when the model omits confidence.
	modelDefaultConfidence = 0.7
	modelTemperature       = 0.1
)

// Mode selects which parser paths may run.
type Mode int

const (
	// ModeBestEffort asks the model first and falls back to the rules.
	ModeBestEffort Mode = iota
	// ModeDeterministic runs the regex rules only and performs no I/O.
	ModeDeterministic
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDeterministic:
		return "deterministic"
	case ModeBestEffort:
		return "best-effort"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deterministic", "fast-deterministic-only":
		return ModeDeterministic, nil
	case "best-effort", "best-effort-with-model", "":
		return ModeBestEffort, nil
	}
	return ModeBestEffort, fmt.Errorf("unknown parse mode %q", s)
}

// Options control a single Parse call.
type Options struct {
	MinConfidence float64 // model results below this try the fallback
	AllowFallback bool    // run the regex rules when the model misses
	Mode          Mode
}

// DefaultOptions returns best-effort parsing with fallback enabled.
func DefaultOptions() Options {
	return Options{
		MinConfidence: DefaultMinConfidence,
		AllowFallback: true,
		Mode:          ModeBestEffort,
	}
}

// TitleParser turns a title into a ParsedTitle, or nil on a miss.
type TitleParser interface {
	Parse(ctx context.Context, title string, opts Options) *domain.ParsedTitle
}

// Observer receives parse outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveParse(method domain.ParseMethod, ok bool)
}

// Parser is the uncached title parser.
type Parser struct {
	completer llm.Completer
	catalog   *catalog.Catalog
	logger    *log.Logger
	observer  Observer
	timeout   time.Duration
}

// ParserOption configures Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used for model failures.
func WithLogger(l *log.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = l
	}
}

// WithCatalog replaces the embedded set catalog.
func WithCatalog(c *catalog.Catalog) ParserOption {
	return func(p *Parser) {
		p.catalog = c
	}
}

// WithObserver reports every parse result to o.
func WithObserver(o Observer) ParserOption {
	return func(p *Parser) {
		p.observer = o
	}
}

// WithModelTimeout bounds a single model call.
func WithModelTimeout(d time.Duration) ParserOption {
	return func(p *Parser) {
		p.timeout = d
	}
}

// NewParser creates a parser. A nil completer disables the model path.
func NewParser(c llm.Completer, opts ...ParserOption) *Parser {
	p := &Parser{
		completer: c,
		catalog:   catalog.Default(),
		logger:    log.Default(),
		timeout:   llm.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts a card locator from title. Model failures of any kind are
// misses. In best-effort mode a model result below opts.MinConfidence is
// replaced by a fallback result when one exists; otherwise it is returned
// as is and the caller decides.
func (p *Parser) Parse(ctx context.Context, title string, opts Options) *domain.ParsedTitle {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	if opts.Mode == ModeDeterministic {
		fb := Fallback(title, p.catalog)
		p.observe(domain.ParseMethodFallback, fb)
		return fb
	}

	var model *domain.ParsedTitle
	if p.completer != nil {
		model = p.parseWithModel(ctx, title)
		p.observe(domain.ParseMethodModel, model)
		if model != nil && model.Confidence >= opts.MinConfidence {
			return model
		}
	}

	if opts.AllowFallback {
		if fb := Fallback(title, p.catalog); fb != nil {
			p.observe(domain.ParseMethodFallback, fb)
			return fb
		}
	}
	return model
}

func (p *Parser) observe(m domain.ParseMethod, res *domain.ParsedTitle) {
	if p.observer != nil {
		p.observer.ObserveParse(m, res != nil)
	}
}

const systemPrompt = `You extract Pokémon TCG listing fields. Output strict JSON:
{"setCode":string,"number":string,"language":"EN"|"JP"|"DE"|"FR"|"ES"|"IT"|"PT"|"ZH","edition":"1st"|"Unlimited"|null,"foil":"Holo"|"Reverse"|"NonHolo"|null,"grade":string|null,"confidence":0..1}
Rules: prefer EN unless clearly stated; do not invent set codes; if unsure, set confidence<=0.5. JSON only.`

var fewShots = strings.Join([]string{
	`{"setCode":"sv1","number":"15","language":"EN","edition":null,"foil":"Holo","grade":null,"confidence":0.95}`,
	`{"setCode":"fossil","number":"020","language":"EN","edition":null,"foil":"Holo","grade":null,"confidence":0.9}`,
}, "\n")

func buildPrompt(title string) string {
	return fmt.Sprintf("Title: %s\nExamples:\n%s\n\nJSON:", title, fewShots)
}

func (p *Parser) parseWithModel(ctx context.Context, title string) *domain.ParsedTitle {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(title),
		Temperature: modelTemperature,
		JSON:        true,
	})
	if err != nil {
		p.logger.Printf("title model %s: %v", p.completer.Name(), err)
		return nil
	}

	parsed, err := decodeModelOutput(out)
	if err != nil {
		p.logger.Printf("title model %s: %v", p.completer.Name(), err)
		return nil
	}
	if parsed == nil {
		return nil
	}
	parsed.SetCode = p.catalog.CanonicalCode(parsed.SetCode)
	return parsed
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeModelOutput parses the model's JSON. A result without set code or
// number is a miss (nil, nil).
func decodeModelOutput(raw string) (*domain.ParsedTitle, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	setCode := scalarString(out["setCode"])
	number := scalarString(out["number"])
	if setCode == "" || number == "" {
		return nil, nil
	}

	conf := modelDefaultConfidence
	if c, ok := scalarFloat(out["confidence"]); ok {
		conf = clamp01(c)
	}

	edition := ""
	if idhash.NormalizeEdition(scalarString(out["edition"])) == "1st" {
		edition = "1st"
	}
	foil := normalizeFoil(scalarString(out["foil"]))
	lang := idhash.NormalizeLanguage(scalarString(out["language"]))

	return &domain.ParsedTitle{
		SetCode:    setCode,
		Number:     idhash.NormalizeNumber(number),
		VariantKey: variantKey(edition, foil, lang),
		Language:   lang,
		Edition:    edition,
		Foil:       foil,
		Grade:      scalarString(out["grade"]),
		Confidence: conf,
		Method:     domain.ParseMethodModel,
	}, nil
}

func normalizeFoil(s string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "holo", "holofoil":
		return "Holo"
	case "reverse", "reverseholo":
		return "Reverse"
	case "nonholo", "normal":
		return "NonHolo"
	}
	return ""
}

func variantKey(edition, foil, lang string) string {
	return idhash.BuildVariantKey(idhash.VariantAttributes{
		Edition:  edition,
		Holo:     foil == "Holo",
		Reverse:  foil == "Reverse",
		Language: lang,
	})
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func scalarFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
