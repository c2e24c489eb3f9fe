package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cardmarket-lab/internal/catalog"
	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/mapping"
	"cardmarket-lab/internal/storage"
)

// DefaultAnchorSource tags anchors whose rows name no source.
const DefaultAnchorSource = "tcgplayer"

// anchorPriceTypes lists the row fields read as prices, in insert order.
var anchorPriceTypes = []domain.PriceType{
	domain.PriceTypeMarket,
	domain.PriceTypeLow,
	domain.PriceTypeMid,
	domain.PriceTypeHigh,
	domain.PriceTypeDirectLow,
}

// AnchorCounts summarizes an anchor batch.
type AnchorCounts struct {
	Linked  int64 // rows whose anchors were written
	Skipped int64 // rows with no matching card, no prices, or already loaded
	Anchors int64 // anchors written
}

func (c AnchorCounts) String() string {
	return fmt.Sprintf("[anchors] linked=%d skipped=%d", c.Linked, c.Skipped)
}

// AnchorLoader links published price points to existing cards.
type AnchorLoader struct {
	cards   storage.CardStore
	anchors storage.PriceAnchorStore
	catalog *catalog.Catalog
	now     func() time.Time
	logger  *log.Logger
}

// AnchorLoaderOptions contains configuration for creating an AnchorLoader.
type AnchorLoaderOptions struct {
	Cards   storage.CardStore
	Anchors storage.PriceAnchorStore
	Catalog *catalog.Catalog
	Now     func() time.Time
	Logger  *log.Logger
}

// NewAnchorLoader creates a new anchor loader.
func NewAnchorLoader(opts AnchorLoaderOptions) *AnchorLoader {
	a := &AnchorLoader{
		cards:   opts.Cards,
		anchors: opts.Anchors,
		catalog: opts.Catalog,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if a.catalog == nil {
		a.catalog = catalog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	return a
}

// Load writes one anchor per present price type for every row whose card
// exists. Cards are never created here. Storage failures other than
// duplicates abort the batch.
func (a *AnchorLoader) Load(ctx context.Context, records []mapping.Record, source string) (AnchorCounts, error) {
	if source == "" {
		source = DefaultAnchorSource
	}

	var counts AnchorCounts
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		batch, err := a.anchorsFor(ctx, rec, source)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, mapping.ErrMalformedInput) {
				a.logger.Printf("anchor row %d: %v", i, err)
				counts.Skipped++
				continue
			}
			return counts, err
		}
		if len(batch) == 0 {
			counts.Skipped++
			continue
		}

		if err := a.anchors.InsertBulk(ctx, batch); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				counts.Skipped++
				continue
			}
			return counts, fmt.Errorf("insert anchors row %d: %w", i, err)
		}
		counts.Linked++
		counts.Anchors += int64(len(batch))
	}
	return counts, nil
}

func (a *AnchorLoader) anchorsFor(ctx context.Context, rec mapping.Record, source string) ([]*domain.PriceAnchor, error) {
	setCode := rec.String("setCode", "set_code", "set")
	number := rec.String("number", "cardNumber", "card_number")
	if setCode == "" || number == "" {
		return nil, fmt.Errorf("%w: anchor row without setCode/number", mapping.ErrMalformedInput)
	}

	lang := idhash.NormalizeLanguage(rec.String("language", "lang"))
	variantKey := rec.String("variantKey")
	if variantKey == "" {
		variantKey = idhash.BuildVariantKey(variantFromPrinting(rec.String("variant", "printing"), lang))
	}
	key := idhash.CardKey(a.catalog.CanonicalCode(setCode), number, variantKey, lang)

	card, err := a.cards.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("card %s/%s/%s: %w", key.SetCode, key.Number, key.VariantKey, err)
		}
		return nil, fmt.Errorf("get card %s/%s: %w", key.SetCode, key.Number, err)
	}

	observedAt := a.now().UnixMilli()
	if rec.Has("observedAt", "timestamp", "updatedAt") {
		if observedAt, err = mapping.ParseTime(rec.String("observedAt", "timestamp", "updatedAt")); err != nil {
			return nil, fmt.Errorf("%w: %v", mapping.ErrMalformedInput, err)
		}
	}
	rowSource := rec.String("source")
	if rowSource == "" {
		rowSource = source
	}

	var out []*domain.PriceAnchor
	for _, pt := range anchorPriceTypes {
		v, ok := rec[string(pt)]
		if !ok || v == nil {
			continue
		}
		minor, sym, err := mapping.ParseMoney(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", mapping.ErrMalformedInput, pt, err)
		}
		currency := strings.ToUpper(rec.String("currency"))
		if currency == "" {
			currency = sym
		}
		if currency == "" {
			currency = mapping.DefaultCurrency
		}
		out = append(out, &domain.PriceAnchor{
			CardID:          card.CardID,
			Source:          rowSource,
			PriceType:       pt,
			PriceMinorUnits: minor,
			Currency:        currency,
			ObservedAt:      observedAt,
		})
	}
	return out, nil
}

// variantFromPrinting maps pricing-source printing names such as
// "holofoil", "reverseHolofoil" or "1stEditionHolofoil" to variant attributes.
func variantFromPrinting(printing, lang string) idhash.VariantAttributes {
	p := strings.ToLower(printing)
	attrs := idhash.VariantAttributes{Language: lang}
	if strings.Contains(p, "1stedition") || strings.Contains(p, "1st edition") {
		attrs.Edition = "1st"
	}
	switch {
	case strings.Contains(p, "reverse"):
		attrs.Reverse = true
	case strings.Contains(p, "holo"):
		attrs.Holo = true
	}
	return attrs
}
