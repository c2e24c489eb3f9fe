// Package mapping converts raw source rows into canonical listings and
// sale events with normalized card identity keys.
package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cardmarket-lab/internal/catalog"
	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/textnorm"
	"cardmarket-lab/internal/titleparse"
)

// ErrMalformedInput is returned when a row cannot be resolved to a card
// identity or carries an unusable value.
var ErrMalformedInput = errors.New("malformed input")

// Kind is the record kind being mapped.
type Kind string

const (
	KindListing Kind = "listing"
	KindComp    Kind = "comp"
)

// Policy holds acceptance rules for parsed identities.
type Policy struct {
	// AcceptLowConfidenceWhenNoAlternative accepts a parse below the
	// confidence threshold when the row has neither set code nor number.
	AcceptLowConfidenceWhenNoAlternative bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{AcceptLowConfidenceWhenNoAlternative: true}
}

// Options configure a Mapper.
type Options struct {
	Parser        titleparse.TitleParser // nil disables title parsing
	MinConfidence float64
	AllowFallback bool
	ListingMode   titleparse.Mode
	CompMode      titleparse.Mode
	Policy        Policy
	Catalog       *catalog.Catalog
	Now           func() time.Time
}

// DefaultOptions returns options with best-effort listing parsing and
// deterministic comp parsing.
func DefaultOptions(parser titleparse.TitleParser) Options {
	return Options{
		Parser:        parser,
		MinConfidence: titleparse.DefaultMinConfidence,
		AllowFallback: true,
		ListingMode:   titleparse.ModeBestEffort,
		CompMode:      titleparse.ModeDeterministic,
		Policy:        DefaultPolicy(),
	}
}

// Mapper maps listing and comp rows. Safe for concurrent use when the
// parser is.
type Mapper struct {
	opts Options
}

// NewMapper creates a mapper.
func NewMapper(opts Options) *Mapper {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = titleparse.DefaultMinConfidence
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Mapper{opts: opts}
}

// ListingMapping is the result of MapListing.
type ListingMapping struct {
	Canonical *domain.CanonicalListing
	RawImport *domain.RawImport
	Parsed    *domain.ParsedTitle // set when the title parser supplied identity
}

// CompMapping is the result of MapComp.
type CompMapping struct {
	Canonical *domain.CanonicalComp
	RawImport *domain.RawImport
	Parsed    *domain.ParsedTitle
}

// MapListing maps a listing row. On ErrMalformedInput the returned mapping
// still carries the RawImport so the payload can be archived.
func (m *Mapper) MapListing(ctx context.Context, raw Record, source string) (*ListingMapping, error) {
	source = rowSource(raw, source)
	now := m.opts.Now().UnixMilli()

	payload, err := raw.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	url := raw.String("url", "link")
	sourceID := raw.String("id", "itemId", "sourceId")
	if sourceID == "" {
		sourceID = idhash.MustStableHash(map[string]any{"source": source, "id": "", "url": url})
	}

	dedupKey := idhash.MustStableHash(map[string]any{"source": source, "type": string(KindListing), "id": sourceID})
	out := &ListingMapping{
		RawImport: &domain.RawImport{
			RawImportID: idhash.ComputeRawImportID(domain.RawTableListing, dedupKey),
			TableName:   domain.RawTableListing,
			Source:      source,
			SourceID:    sourceID,
			Payload:     payload,
			DedupKey:    dedupKey,
			ImportedAt:  now,
		},
	}

	id, err := m.resolveIdentity(ctx, raw, m.opts.ListingMode)
	out.Parsed = id.parsed
	if err != nil {
		return out, err
	}

	price, currency, err := priceOf(raw)
	if err != nil {
		return out, err
	}

	seenAt := now
	if raw.Has("seenAt", "timestamp") {
		if seenAt, err = ParseTime(firstValue(raw, "seenAt", "timestamp")); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}

	c := &domain.CanonicalListing{
		CardKey:         id.key,
		DisplayName:     displayName(raw, id.key),
		Source:          source,
		SourceID:        sourceID,
		URL:             url,
		Title:           raw.String("title", "name"),
		PriceMinorUnits: price,
		Currency:        currency,
		Condition:       condition(raw),
		Grade:           optional(raw.String("grade")),
		SeenAt:          seenAt,
		LowConfidence:   id.lowConfidence,
	}
	applyAuction(raw, c)

	out.Canonical = c
	return out, nil
}

// MapComp maps a sold-comparable row. On ErrMalformedInput the returned
// mapping still carries the RawImport.
func (m *Mapper) MapComp(ctx context.Context, raw Record, source string) (*CompMapping, error) {
	source = rowSource(raw, source)
	now := m.opts.Now().UnixMilli()

	payload, err := raw.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	id, idErr := m.resolveIdentity(ctx, raw, m.opts.CompMode)

	externalID := optional(raw.String("saleId", "transactionId", "externalId"))

	soldAt, soldAtKnown := now, false
	var soldAtErr error
	if raw.Has("soldAt", "endTime", "date") {
		if t, err := ParseTime(firstValue(raw, "soldAt", "endTime", "date")); err == nil {
			soldAt, soldAtKnown = t, true
		} else {
			soldAtErr = fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}

	price, currency, priceErr := priceOf(raw)

	var dedupKey *string
	if externalID == nil && soldAtKnown && idErr == nil {
		k := idhash.CompNaturalKey(idhash.CompKeyFields{
			Source:          source,
			SetCode:         id.key.SetCode,
			Number:          id.key.Number,
			VariantKey:      id.key.VariantKey,
			Language:        id.key.Language,
			SoldAt:          soldAt,
			PriceMinorUnits: price,
			Currency:        currency,
		})
		dedupKey = &k
	}

	// The fallback hash never includes a defaulted timestamp, so replays of
	// a row without a sale time converge.
	fallback := map[string]any{
		"cardKey":    id.key,
		"source":     source,
		"externalId": externalID,
		"priceCents": price,
		"currency":   currency,
		"raw":        json.RawMessage(payload),
	}
	if soldAtKnown {
		fallback["soldAt"] = soldAt
	}
	fallbackKey := idhash.MustStableHash(map[string]any{"source": source, "type": string(KindComp), "fallback": fallback})
	if externalID == nil && dedupKey == nil {
		dedupKey = &fallbackKey
	}

	rawDedup := fallbackKey
	if dedupKey != nil {
		rawDedup = *dedupKey
	}
	sourceID := ""
	if externalID != nil {
		sourceID = *externalID
	}

	out := &CompMapping{
		Parsed: id.parsed,
		RawImport: &domain.RawImport{
			RawImportID: idhash.ComputeRawImportID(domain.RawTableCompSale, rawDedup),
			TableName:   domain.RawTableCompSale,
			Source:      source,
			SourceID:    sourceID,
			Payload:     payload,
			DedupKey:    rawDedup,
			ImportedAt:  now,
		},
	}
	if err := errors.Join(idErr, priceErr, soldAtErr); err != nil {
		return out, err
	}

	out.Canonical = &domain.CanonicalComp{
		CardKey:         id.key,
		DisplayName:     displayName(raw, id.key),
		Source:          source,
		ExternalID:      externalID,
		DedupKey:        dedupKey,
		PriceMinorUnits: price,
		Currency:        currency,
		SoldAt:          soldAt,
		Raw:             payload,
		LowConfidence:   id.lowConfidence,
	}
	return out, nil
}

type identity struct {
	key           domain.CardKey
	parsed        *domain.ParsedTitle
	lowConfidence bool
}

// resolveIdentity builds the card key from structured fields, filling only
// the missing ones from a title parse.
func (m *Mapper) resolveIdentity(ctx context.Context, raw Record, mode titleparse.Mode) (identity, error) {
	var id identity

	setCode := raw.String("setCode", "set_code", "set")
	if setCode == "" {
		if name := raw.String("setName", "set_name"); name != "" {
			if s, ok := m.opts.Catalog.Search(name); ok {
				setCode = s.Code
			}
		}
	}
	if setCode != "" {
		setCode = m.opts.Catalog.CanonicalCode(setCode)
	}
	number := raw.String("number", "cardNumber", "card_number")

	attrs := idhash.VariantAttributes{
		Edition:    raw.String("edition"),
		Shadowless: raw.Bool("shadowless"),
		Holo:       raw.Bool("holo"),
		Reverse:    raw.Bool("reverse"),
		Language:   raw.String("language", "lang"),
	}
	hasVariantFlags := raw.Has("edition", "shadowless", "holo", "reverse")

	if (setCode == "" || number == "") && m.opts.Parser != nil {
		bothMissing := setCode == "" && number == ""
		title := raw.String("title", "name")
		parsed := m.opts.Parser.Parse(ctx, title, titleparse.Options{
			MinConfidence: m.opts.MinConfidence,
			AllowFallback: m.opts.AllowFallback,
			Mode:          mode,
		})
		if m.accept(parsed, bothMissing) {
			id.parsed = parsed
			id.lowConfidence = parsed.Confidence < m.opts.MinConfidence
			if setCode == "" {
				setCode = parsed.SetCode
			}
			if number == "" {
				number = parsed.Number
			}
			if !hasVariantFlags {
				attrs.Edition = parsed.Edition
				attrs.Holo = parsed.Foil == "Holo"
				attrs.Reverse = parsed.Foil == "Reverse"
			}
			if attrs.Language == "" {
				attrs.Language = parsed.Language
			}
		}
	}

	if setCode == "" || number == "" {
		return id, fmt.Errorf("%w: no card identity (setCode=%q number=%q)", ErrMalformedInput, setCode, number)
	}

	lang := idhash.NormalizeLanguage(attrs.Language)
	attrs.Language = lang
	id.key = idhash.CardKey(setCode, number, idhash.BuildVariantKey(attrs), lang)
	return id, nil
}

func (m *Mapper) accept(p *domain.ParsedTitle, bothMissing bool) bool {
	if p == nil || p.SetCode == "" || p.Number == "" {
		return false
	}
	if p.Confidence >= m.opts.MinConfidence {
		return true
	}
	return bothMissing && m.opts.Policy.AcceptLowConfidenceWhenNoAlternative
}

// priceOf reads priceCents, else price (a number, a string with currency
// symbol, or an object with value and currency).
func priceOf(raw Record) (int64, string, error) {
	currency := strings.ToUpper(raw.String("currency", "currencyCode"))

	var (
		minor int64
		sym   string
		err   error
	)
	switch {
	case raw.Has("priceCents"):
		v, ok := raw.Int("priceCents")
		if !ok {
			return 0, "", fmt.Errorf("%w: priceCents %v", ErrMalformedInput, raw["priceCents"])
		}
		minor = v
	case raw.Has("price"):
		if obj, ok := raw["price"].(map[string]any); ok {
			minor, sym, err = ParseMoney(obj["value"])
			if c := scalarText(obj["currency"]); c != "" && currency == "" {
				currency = strings.ToUpper(c)
			}
		} else {
			minor, sym, err = ParseMoney(raw["price"])
		}
		if err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}

	if minor < 0 {
		return 0, "", fmt.Errorf("%w: negative price %d", ErrMalformedInput, minor)
	}
	if currency == "" {
		currency = sym
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return minor, currency, nil
}

func applyAuction(raw Record, c *domain.CanonicalListing) {
	c.IsAuction = raw.Bool("isAuction", "auction") ||
		strings.Contains(strings.ToLower(raw.String("listingType", "buyingOption")), "auction")
	if !c.IsAuction {
		return
	}
	if raw.Has("auctionEndsAt", "endTime") {
		if t, err := ParseTime(firstValue(raw, "auctionEndsAt", "endTime")); err == nil {
			c.AuctionEndsAt = &t
		}
	}
	if n, ok := raw.Int("bidCount", "bids"); ok {
		bids := int(n)
		c.BidCount = &bids
	}
}

func condition(raw Record) string {
	if c := raw.String("condition"); c != "" {
		return textnorm.Title(c)
	}
	return "Unknown"
}

func displayName(raw Record, key domain.CardKey) string {
	if n := raw.String("cardName", "card_name"); n != "" {
		return n
	}
	return key.SetCode + " " + key.Number
}

// rowSource lets a row override the batch source tag.
func rowSource(raw Record, source string) string {
	if s := raw.String("source"); s != "" {
		return s
	}
	return source
}

func firstValue(raw Record, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
