package clickhouse

import (
	"context"
	"fmt"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// PriceAnchorStore implements storage.PriceAnchorStore using ClickHouse.
type PriceAnchorStore struct {
	conn *Conn
}

// NewPriceAnchorStore creates a new PriceAnchorStore.
func NewPriceAnchorStore(conn *Conn) *PriceAnchorStore {
	return &PriceAnchorStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceAnchorStore = (*PriceAnchorStore)(nil)

type anchorKey struct {
	cardID     string
	source     string
	priceType  domain.PriceType
	observedAt int64
}

// InsertBulk adds multiple anchors. Fails entire batch on duplicate
// (card_id, source, price_type, observed_at). MergeTree does not enforce
// uniqueness, so duplicates are checked before the batch is sent.
func (s *PriceAnchorStore) InsertBulk(ctx context.Context, anchors []*domain.PriceAnchor) error {
	if len(anchors) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[anchorKey]struct{}, len(anchors))
	for _, a := range anchors {
		if a == nil || a.CardID == "" || !a.PriceType.IsValid() || a.ObservedAt < 0 {
			return storage.ErrInvalidInput
		}
		k := anchorKey{a.CardID, a.Source, a.PriceType, a.ObservedAt}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for k := range seen {
		exists, err := s.exists(ctx, k)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_anchors (
			card_id, source, price_type, price_minor_units, currency, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range anchors {
		err = batch.Append(
			a.CardID, a.Source, string(a.PriceType),
			a.PriceMinorUnits, a.Currency, uint64(a.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCardID retrieves all anchors for a card, ordered by observed_at ASC.
func (s *PriceAnchorStore) GetByCardID(ctx context.Context, cardID string) ([]*domain.PriceAnchor, error) {
	query := `
		SELECT card_id, source, price_type, price_minor_units, currency, observed_at
		FROM price_anchors
		WHERE card_id = ?
		ORDER BY observed_at ASC, source ASC, price_type ASC
	`

	rows, err := s.conn.Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("query by card id: %w", err)
	}
	defer rows.Close()

	return scanPriceAnchors(rows)
}

// exists checks if an anchor with the given key exists.
func (s *PriceAnchorStore) exists(ctx context.Context, k anchorKey) (bool, error) {
	query := `
		SELECT count(*) FROM price_anchors
		WHERE card_id = ? AND source = ? AND price_type = ? AND observed_at = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, k.cardID, k.source, string(k.priceType), uint64(k.observedAt)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPriceAnchors scans multiple rows.
func scanPriceAnchors(rows chRows) ([]*domain.PriceAnchor, error) {
	var anchors []*domain.PriceAnchor

	for rows.Next() {
		var a domain.PriceAnchor
		var priceType string
		var observedAt uint64

		err := rows.Scan(
			&a.CardID, &a.Source, &priceType,
			&a.PriceMinorUnits, &a.Currency, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price anchor row: %w", err)
		}

		a.PriceType = domain.PriceType(priceType)
		a.ObservedAt = int64(observedAt)
		anchors = append(anchors, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price anchor rows: %w", err)
	}

	return anchors, nil
}
