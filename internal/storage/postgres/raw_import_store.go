package postgres

import (
	"context"
	"fmt"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// RawImportStore implements storage.RawImportStore using PostgreSQL.
type RawImportStore struct {
	pool *Pool
}

// NewRawImportStore creates a new RawImportStore.
func NewRawImportStore(pool *Pool) *RawImportStore {
	return &RawImportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawImportStore = (*RawImportStore)(nil)

// Insert adds a new raw import. Returns ErrDuplicateKey if dedup_key exists.
func (s *RawImportStore) Insert(ctx context.Context, r *domain.RawImport) error {
	if r == nil || r.DedupKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO raw_imports (
			raw_import_id, table_name, source, source_id, payload, dedup_key, imported_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RawImportID,
		r.TableName,
		r.Source,
		r.SourceID,
		jsonText(r.Payload),
		r.DedupKey,
		r.ImportedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert raw import: %w", err)
	}
	return nil
}

// GetByDedupKey retrieves a raw import by dedup key. Returns ErrNotFound if not exists.
func (s *RawImportStore) GetByDedupKey(ctx context.Context, dedupKey string) (*domain.RawImport, error) {
	query := `
		SELECT raw_import_id, table_name, source, source_id, payload::text, dedup_key, imported_at
		FROM raw_imports
		WHERE dedup_key = $1
	`

	var r domain.RawImport
	var payload string
	err := s.pool.QueryRow(ctx, query, dedupKey).Scan(
		&r.RawImportID,
		&r.TableName,
		&r.Source,
		&r.SourceID,
		&payload,
		&r.DedupKey,
		&r.ImportedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get raw import: %w", err)
	}
	r.Payload = []byte(payload)
	return &r, nil
}

// ListTitles returns up to limit distinct titles from payloads.
func (s *RawImportStore) ListTitles(ctx context.Context, limit int) ([]string, error) {
	return listPayloadTitles(ctx, s.pool, "raw_imports", "payload", "imported_at", limit)
}

// Count returns the number of stored raw imports.
func (s *RawImportStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_imports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count raw imports: %w", err)
	}
	return n, nil
}
