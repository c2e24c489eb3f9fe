package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

func TestCardStore_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCardStore(pool)

	card := &domain.Card{
		CardID:     "card-sv1-015",
		SetCode:    "sv1",
		Number:     "015",
		VariantKey: "EN",
		Language:   "EN",
		CreatedAt:  1700000000000,
		UpdatedAt:  1700000000000,
	}

	created, inserted, err := store.GetOrCreate(ctx, card)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "card-sv1-015", created.CardID)
	assert.Empty(t, created.DisplayName)

	named := *card
	named.DisplayName = "Sprigatito"
	named.UpdatedAt = 1700000001000
	existing, inserted, err := store.GetOrCreate(ctx, &named)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "Sprigatito", existing.DisplayName)
	assert.Equal(t, int64(1700000001000), existing.UpdatedAt)
	assert.Equal(t, int64(1700000000000), existing.CreatedAt)

	renamed := named
	renamed.DisplayName = "Other"
	again, _, err := store.GetOrCreate(ctx, &renamed)
	require.NoError(t, err)
	assert.Equal(t, "Sprigatito", again.DisplayName)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCardStore_GetOrCreate_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCardStore(pool)

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inserted, err := store.GetOrCreate(ctx, &domain.Card{
				CardID: "card-race", SetCode: "sv1", Number: "015", VariantKey: "EN", Language: "EN",
				CreatedAt: 1, UpdatedAt: 1,
			})
			assert.NoError(t, err)
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, insertedCount)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCardStore_GetByKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCardStore(pool)
	createTestCard(t, ctx, pool, "card-1", "sv1", "015")

	got, err := store.GetByKey(ctx, domain.CardKey{SetCode: "sv1", Number: "015", VariantKey: "EN", Language: "EN"})
	require.NoError(t, err)
	assert.Equal(t, "card-1", got.CardID)

	byID, err := store.GetByID(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "015", byID.Number)

	_, err = store.GetByKey(ctx, domain.CardKey{SetCode: "sv1", Number: "016", VariantKey: "EN", Language: "EN"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCardStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCardStore(pool)
	createTestCard(t, ctx, pool, "card-b", "sv1", "016")
	createTestCard(t, ctx, pool, "card-a", "sv1", "015")
	createTestCard(t, ctx, pool, "card-c", "sv1", "017")

	first, err := store.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "card-a", first[0].CardID)
	assert.Equal(t, "card-b", first[1].CardID)

	rest, err := store.List(ctx, first[1].CardID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "card-c", rest[0].CardID)

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
