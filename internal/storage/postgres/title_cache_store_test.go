package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

func TestTitleCacheStore_UpsertAndHits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTitleCacheStore(pool)

	p := &domain.TitleParse{
		SchemaVersion: 1,
		TitleHash:     "hash-1",
		TitleRaw:      "Pokemon SV1 015",
		TitleNorm:     "pokemon sv1 015",
		SetCode:       "sv1",
		Number:        "015",
		VariantKey:    "EN",
		Language:      "EN",
		Confidence:    0.55,
		CardSlug:      "sv1-015-en",
		Method:        domain.ParseMethodFallback,
		CreatedAt:     1000,
		UpdatedAt:     1000,
	}
	require.NoError(t, store.Upsert(ctx, p))
	require.NoError(t, store.IncrementHits(ctx, 1, "hash-1"))
	require.NoError(t, store.IncrementHits(ctx, 1, "hash-1"))

	better := *p
	better.Confidence = 0.92
	better.Method = domain.ParseMethodModel
	better.CreatedAt = 9000
	better.UpdatedAt = 9000
	require.NoError(t, store.Upsert(ctx, &better))

	got, err := store.Get(ctx, 1, "hash-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.92, got.Confidence, 0.0001)
	assert.Equal(t, domain.ParseMethodModel, got.Method)
	assert.Equal(t, int64(2), got.Hits)
	assert.Equal(t, int64(1000), got.CreatedAt)
	assert.Equal(t, int64(9000), got.UpdatedAt)
	assert.Equal(t, "sv1-015-en", got.CardSlug)

	_, err = store.Get(ctx, 2, "hash-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.IncrementHits(ctx, 2, "hash-1"), storage.ErrNotFound)
}
