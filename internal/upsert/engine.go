// Package upsert writes canonical records idempotently and classifies
// every write as a storage.Outcome.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/storage"
)

// Stores groups the stores the engine writes to.
type Stores struct {
	Cards      storage.CardStore
	Listings   storage.ListingStore
	Comps      storage.CompSaleStore
	RawImports storage.RawImportStore
}

// Engine performs idempotent writes.
type Engine struct {
	stores Stores
	now    func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithClock sets the time source for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over stores.
func NewEngine(stores Stores, opts ...Option) *Engine {
	e := &Engine{stores: stores, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpsertCardByKey returns the card for key, creating it when absent.
// The key is normalized before lookup.
func (e *Engine) UpsertCardByKey(ctx context.Context, key domain.CardKey, displayName string) (*domain.Card, storage.Outcome, error) {
	key = idhash.CardKey(key.SetCode, key.Number, key.VariantKey, key.Language)
	now := e.now().UnixMilli()

	card, created, err := e.stores.Cards.GetOrCreate(ctx, &domain.Card{
		CardID:      idhash.ComputeCardID(key),
		SetCode:     key.SetCode,
		Number:      key.Number,
		VariantKey:  key.VariantKey,
		Language:    key.Language,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, storage.OutcomeFailed, fmt.Errorf("get or create card %s/%s: %w", key.SetCode, key.Number, err)
	}
	if created {
		return card, storage.OutcomeInserted, nil
	}
	return card, storage.OutcomeUnchanged, nil
}

// UpsertListing writes the latest state of a listing for cardID. The
// existing row is found by (source, source_id), then by (source, url).
// An insert that loses a race to a concurrent writer is retried as an update.
func (e *Engine) UpsertListing(ctx context.Context, cardID string, c *domain.CanonicalListing) (*domain.Listing, storage.Outcome, error) {
	if c == nil || cardID == "" {
		return nil, storage.OutcomeFailed, storage.ErrInvalidInput
	}

	existing, err := e.findListing(ctx, c)
	if err != nil {
		return nil, storage.OutcomeFailed, err
	}
	if existing != nil {
		return e.updateListing(ctx, existing, cardID, c)
	}

	now := e.now().UnixMilli()
	l := &domain.Listing{
		ListingID:   idhash.ComputeListingID(c.Source, c.SourceID),
		CardID:      cardID,
		Source:      c.Source,
		SourceID:    c.SourceID,
		FirstSeenAt: c.SeenAt,
		SeenAt:      c.SeenAt,
		UpdatedAt:   now,
	}
	applyListing(l, cardID, c)

	err = e.stores.Listings.Insert(ctx, l)
	if err == nil {
		return l, storage.OutcomeInserted, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, storage.OutcomeFailed, fmt.Errorf("insert listing %s/%s: %w", c.Source, c.SourceID, err)
	}

	existing, err = e.stores.Listings.GetBySourceID(ctx, c.Source, c.SourceID)
	if err != nil {
		return nil, storage.OutcomeFailed, fmt.Errorf("reload listing %s/%s after conflict: %w", c.Source, c.SourceID, err)
	}
	return e.updateListing(ctx, existing, cardID, c)
}

func (e *Engine) findListing(ctx context.Context, c *domain.CanonicalListing) (*domain.Listing, error) {
	l, err := e.stores.Listings.GetBySourceID(ctx, c.Source, c.SourceID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get listing %s/%s: %w", c.Source, c.SourceID, err)
	}
	if c.URL == "" {
		return nil, nil
	}

	l, err = e.stores.Listings.GetByURL(ctx, c.Source, c.URL)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get listing by url %s: %w", c.URL, err)
	}
	return nil, nil
}

// updateListing overwrites the mutable fields of existing. When nothing
// but the observation time changed the outcome is Unchanged; seen_at still
// moves forward.
func (e *Engine) updateListing(ctx context.Context, existing *domain.Listing, cardID string, c *domain.CanonicalListing) (*domain.Listing, storage.Outcome, error) {
	next := *existing
	applyListing(&next, cardID, c)
	if c.SeenAt > next.SeenAt {
		next.SeenAt = c.SeenAt
	}

	outcome := storage.OutcomeUpdated
	if sameListingState(existing, &next) {
		if next.SeenAt == existing.SeenAt {
			return existing, storage.OutcomeUnchanged, nil
		}
		outcome = storage.OutcomeUnchanged
	}

	next.UpdatedAt = e.now().UnixMilli()
	if err := e.stores.Listings.Update(ctx, &next); err != nil {
		return nil, storage.OutcomeFailed, fmt.Errorf("update listing %s: %w", existing.ListingID, err)
	}
	return &next, outcome, nil
}

func applyListing(l *domain.Listing, cardID string, c *domain.CanonicalListing) {
	l.CardID = cardID
	l.URL = c.URL
	l.Title = c.Title
	l.PriceMinorUnits = c.PriceMinorUnits
	l.Currency = c.Currency
	l.Condition = c.Condition
	l.Grade = c.Grade
	l.IsActive = true
	l.IsAuction = c.IsAuction
	l.AuctionEndsAt = c.AuctionEndsAt
	l.BidCount = c.BidCount
}

func sameListingState(a, b *domain.Listing) bool {
	return a.CardID == b.CardID &&
		a.URL == b.URL &&
		a.Title == b.Title &&
		a.PriceMinorUnits == b.PriceMinorUnits &&
		a.Currency == b.Currency &&
		a.Condition == b.Condition &&
		equalPtr(a.Grade, b.Grade) &&
		a.IsActive == b.IsActive &&
		a.IsAuction == b.IsAuction &&
		equalPtr(a.AuctionEndsAt, b.AuctionEndsAt) &&
		equalPtr(a.BidCount, b.BidCount)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// InsertCompSale inserts a sale event for cardID. A uniqueness violation on
// (source, external_id) or dedup_key yields OutcomeDuplicate and no error.
func (e *Engine) InsertCompSale(ctx context.Context, cardID string, c *domain.CanonicalComp) (*domain.CompSale, storage.Outcome, error) {
	if c == nil || cardID == "" {
		return nil, storage.OutcomeFailed, storage.ErrInvalidInput
	}

	sale := &domain.CompSale{
		CompSaleID:      idhash.ComputeCompSaleID(c.Source, c.ExternalID, c.DedupKey),
		CardID:          cardID,
		Source:          c.Source,
		ExternalID:      c.ExternalID,
		DedupKey:        c.DedupKey,
		PriceMinorUnits: c.PriceMinorUnits,
		Currency:        c.Currency,
		SoldAt:          c.SoldAt,
		Raw:             c.Raw,
		CreatedAt:       e.now().UnixMilli(),
	}

	err := e.stores.Comps.Insert(ctx, sale)
	switch {
	case err == nil:
		return sale, storage.OutcomeInserted, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		return sale, storage.OutcomeDuplicate, nil
	default:
		return nil, storage.OutcomeFailed, fmt.Errorf("insert comp sale %s: %w", sale.CompSaleID, err)
	}
}

// RecordRawImport stores the audit copy of a payload. A repeated dedup key
// yields OutcomeDuplicate and no error.
func (e *Engine) RecordRawImport(ctx context.Context, r *domain.RawImport) (storage.Outcome, error) {
	if r == nil || r.DedupKey == "" {
		return storage.OutcomeFailed, storage.ErrInvalidInput
	}

	err := e.stores.RawImports.Insert(ctx, r)
	switch {
	case err == nil:
		return storage.OutcomeInserted, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		return storage.OutcomeDuplicate, nil
	default:
		return storage.OutcomeFailed, fmt.Errorf("insert raw import %s: %w", r.DedupKey, err)
	}
}
