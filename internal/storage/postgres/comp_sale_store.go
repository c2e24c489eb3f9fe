package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

// CompSaleStore implements storage.CompSaleStore using PostgreSQL.
type CompSaleStore struct {
	pool *Pool
}

// NewCompSaleStore creates a new CompSaleStore.
func NewCompSaleStore(pool *Pool) *CompSaleStore {
	return &CompSaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CompSaleStore = (*CompSaleStore)(nil)

// Insert adds a new sale. Uniqueness on comp_sale_id, (source, external_id)
// and dedup_key maps to ErrDuplicateKey.
func (s *CompSaleStore) Insert(ctx context.Context, c *domain.CompSale) error {
	query := `
		INSERT INTO comp_sales (
			comp_sale_id, card_id, source, external_id, dedup_key,
			price_minor_units, currency, sold_at, raw, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		c.CompSaleID,
		c.CardID,
		c.Source,
		c.ExternalID,
		c.DedupKey,
		c.PriceMinorUnits,
		c.Currency,
		c.SoldAt,
		jsonText(c.Raw),
		c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("insert comp sale: unknown card %s: %w", c.CardID, storage.ErrInvalidInput)
		}
		return fmt.Errorf("insert comp sale: %w", err)
	}
	return nil
}

// GetByCardID retrieves all sales for a card, ordered by sold_at ASC.
func (s *CompSaleStore) GetByCardID(ctx context.Context, cardID string) ([]*domain.CompSale, error) {
	query := `
		SELECT ` + compSaleColumns + `
		FROM comp_sales
		WHERE card_id = $1
		ORDER BY sold_at ASC, comp_sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("query comp sales by card id: %w", err)
	}
	return collectCompSales(rows)
}

// List returns up to limit sales with comp_sale_id > afterID, ordered by comp_sale_id.
func (s *CompSaleStore) List(ctx context.Context, afterID string, limit int) ([]*domain.CompSale, error) {
	query := `SELECT ` + compSaleColumns + ` FROM comp_sales WHERE comp_sale_id > $1 ORDER BY comp_sale_id LIMIT $2`

	rows, err := s.pool.Query(ctx, query, afterID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list comp sales: %w", err)
	}
	return collectCompSales(rows)
}

const compSaleColumns = `comp_sale_id, card_id, source, external_id, dedup_key,
		       price_minor_units, currency, sold_at, raw::text, created_at`

func collectCompSales(rows pgx.Rows) ([]*domain.CompSale, error) {
	defer rows.Close()

	var result []*domain.CompSale
	for rows.Next() {
		var c domain.CompSale
		var raw string
		err := rows.Scan(
			&c.CompSaleID,
			&c.CardID,
			&c.Source,
			&c.ExternalID,
			&c.DedupKey,
			&c.PriceMinorUnits,
			&c.Currency,
			&c.SoldAt,
			&raw,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comp sale: %w", err)
		}
		c.Raw = []byte(raw)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comp sales: %w", err)
	}
	return result, nil
}

// ListTitles returns up to limit distinct titles from raw payloads.
// limit <= 0 means no limit.
func (s *CompSaleStore) ListTitles(ctx context.Context, limit int) ([]string, error) {
	return listPayloadTitles(ctx, s.pool, "comp_sales", "raw", "created_at", limit)
}

// CountSoldSince counts recent sales and the cards with at least minPerCard of them.
func (s *CompSaleStore) CountSoldSince(ctx context.Context, since int64, minPerCard int) (int, int, error) {
	query := `
		SELECT COALESCE(sum(n), 0)::bigint, count(*) FILTER (WHERE n >= $2)
		FROM (
			SELECT card_id, count(*) AS n
			FROM comp_sales
			WHERE sold_at >= $1
			GROUP BY card_id
		) t
	`

	var sales, cards int
	if err := s.pool.QueryRow(ctx, query, since, minPerCard).Scan(&sales, &cards); err != nil {
		return 0, 0, fmt.Errorf("count recent comp sales: %w", err)
	}
	return sales, cards, nil
}

// Count returns the number of stored sales.
func (s *CompSaleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM comp_sales`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comp sales: %w", err)
	}
	return n, nil
}

// listPayloadTitles selects distinct title/name values from a JSONB column,
// oldest rows first. table and column are trusted identifiers.
func listPayloadTitles(ctx context.Context, pool *Pool, table, column, orderBy string, limit int) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT title FROM (
			SELECT btrim(COALESCE(NULLIF(btrim(%[2]s->>'title'), ''), %[2]s->>'name')) AS title,
			       min(%[3]s) AS first_at
			FROM %[1]s
			WHERE jsonb_typeof(%[2]s) = 'object'
			GROUP BY 1
		) t
		WHERE title IS NOT NULL AND title <> ''
		ORDER BY first_at ASC, title ASC
	`, table, column, orderBy)

	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s titles: %w", table, err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}
