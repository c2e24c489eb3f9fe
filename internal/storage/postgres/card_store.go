package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// CardStore implements storage.CardStore using PostgreSQL.
type CardStore struct {
	pool *Pool
}

// NewCardStore creates a new CardStore.
func NewCardStore(pool *Pool) *CardStore {
	return &CardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CardStore = (*CardStore)(nil)

const cardColumns = `card_id, set_code, number, variant_key, language, display_name, created_at, updated_at`

// GetOrCreate inserts the card or returns the existing row for its identity key.
// A single statement keeps concurrent callers converging on one row.
func (s *CardStore) GetOrCreate(ctx context.Context, c *domain.Card) (*domain.Card, bool, error) {
	if c == nil || c.CardID == "" || c.SetCode == "" || c.Number == "" {
		return nil, false, storage.ErrInvalidInput
	}

	// xmax = 0 only for rows inserted by this statement.
	query := `
		INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (set_code, number, variant_key, language) DO UPDATE
		SET display_name = CASE WHEN cards.display_name = '' THEN EXCLUDED.display_name ELSE cards.display_name END,
		    updated_at = CASE WHEN cards.display_name = '' AND EXCLUDED.display_name <> '' THEN EXCLUDED.updated_at ELSE cards.updated_at END
		RETURNING ` + cardColumns + `, (xmax = 0) AS inserted
	`

	var card domain.Card
	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		c.CardID,
		c.SetCode,
		c.Number,
		c.VariantKey,
		c.Language,
		c.DisplayName,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(
		&card.CardID,
		&card.SetCode,
		&card.Number,
		&card.VariantKey,
		&card.Language,
		&card.DisplayName,
		&card.CreatedAt,
		&card.UpdatedAt,
		&inserted,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, false, storage.ErrDuplicateKey
		}
		return nil, false, fmt.Errorf("get or create card: %w", err)
	}
	return &card, inserted, nil
}

// GetByID retrieves a card by its ID. Returns ErrNotFound if not exists.
func (s *CardStore) GetByID(ctx context.Context, cardID string) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE card_id = $1`

	card, err := scanCard(s.pool.QueryRow(ctx, query, cardID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get card by id: %w", err)
	}
	return card, nil
}

// GetByKey retrieves a card by its identity key. Returns ErrNotFound if not exists.
func (s *CardStore) GetByKey(ctx context.Context, key domain.CardKey) (*domain.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE set_code = $1 AND number = $2 AND variant_key = $3 AND language = $4
	`

	card, err := scanCard(s.pool.QueryRow(ctx, query, key.SetCode, key.Number, key.VariantKey, key.Language))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get card by key: %w", err)
	}
	return card, nil
}

// Count returns the number of stored cards.
func (s *CardStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// List returns up to limit cards with card_id > afterID, ordered by card_id.
// limit <= 0 means no limit.
func (s *CardStore) List(ctx context.Context, afterID string, limit int) ([]*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE card_id > $1 ORDER BY card_id LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var result []*domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return result, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// scanCard scans a single row into Card.
func scanCard(row pgx.Row) (*domain.Card, error) {
	var c domain.Card
	err := row.Scan(
		&c.CardID,
		&c.SetCode,
		&c.Number,
		&c.VariantKey,
		&c.Language,
		&c.DisplayName,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
