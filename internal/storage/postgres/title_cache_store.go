package postgres

import (
	"context"
	"fmt"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// TitleCacheStore implements storage.TitleCacheStore using PostgreSQL.
type TitleCacheStore struct {
	pool *Pool
}

// NewTitleCacheStore creates a new TitleCacheStore.
func NewTitleCacheStore(pool *Pool) *TitleCacheStore {
	return &TitleCacheStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TitleCacheStore = (*TitleCacheStore)(nil)

// Get retrieves a cached parse. Returns ErrNotFound if not exists.
func (s *TitleCacheStore) Get(ctx context.Context, schemaVersion int, titleHash string) (*domain.TitleParse, error) {
	query := `
		SELECT schema_version, title_hash, title_raw, title_norm, set_code, number,
		       variant_key, language, confidence, card_slug, method, hits,
		       created_at, updated_at
		FROM title_parse_cache
		WHERE schema_version = $1 AND title_hash = $2
	`

	var p domain.TitleParse
	var method string
	err := s.pool.QueryRow(ctx, query, schemaVersion, titleHash).Scan(
		&p.SchemaVersion,
		&p.TitleHash,
		&p.TitleRaw,
		&p.TitleNorm,
		&p.SetCode,
		&p.Number,
		&p.VariantKey,
		&p.Language,
		&p.Confidence,
		&p.CardSlug,
		&method,
		&p.Hits,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get title parse: %w", err)
	}
	p.Method = domain.ParseMethod(method)
	return &p, nil
}

// Upsert inserts a parse or replaces the parsed fields of an existing one.
// hits and created_at of an existing row are preserved.
func (s *TitleCacheStore) Upsert(ctx context.Context, p *domain.TitleParse) error {
	if p == nil || p.TitleHash == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO title_parse_cache (
			schema_version, title_hash, title_raw, title_norm, set_code, number,
			variant_key, language, confidence, card_slug, method, hits,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (schema_version, title_hash) DO UPDATE
		SET title_raw = EXCLUDED.title_raw,
		    title_norm = EXCLUDED.title_norm,
		    set_code = EXCLUDED.set_code,
		    number = EXCLUDED.number,
		    variant_key = EXCLUDED.variant_key,
		    language = EXCLUDED.language,
		    confidence = EXCLUDED.confidence,
		    card_slug = EXCLUDED.card_slug,
		    method = EXCLUDED.method,
		    updated_at = EXCLUDED.updated_at
	`,
		p.SchemaVersion,
		p.TitleHash,
		p.TitleRaw,
		p.TitleNorm,
		p.SetCode,
		p.Number,
		p.VariantKey,
		p.Language,
		p.Confidence,
		p.CardSlug,
		string(p.Method),
		p.Hits,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert title parse: %w", err)
	}
	return nil
}

// IncrementHits bumps the hit counter. Returns ErrNotFound if not exists.
func (s *TitleCacheStore) IncrementHits(ctx context.Context, schemaVersion int, titleHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE title_parse_cache
		SET hits = hits + 1
		WHERE schema_version = $1 AND title_hash = $2
	`, schemaVersion, titleHash)
	if err != nil {
		return fmt.Errorf("increment title hits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
