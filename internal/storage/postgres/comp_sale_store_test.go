package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

func TestCompSaleStore_InsertAndGetByCardID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cardID := createTestCard(t, ctx, pool, "card-1", "sv1", "015")
	store := NewCompSaleStore(pool)

	sale := &domain.CompSale{
		CompSaleID:      "sale-1",
		CardID:          cardID,
		Source:          "EbaySold",
		ExternalID:      ptr("ext-1"),
		PriceMinorUnits: 1250,
		Currency:        "USD",
		SoldAt:          1700000000000,
		Raw:             json.RawMessage(`{"saleId":"ext-1","title":"Pokemon SV1 015"}`),
		CreatedAt:       1700000001000,
	}
	require.NoError(t, store.Insert(ctx, sale))

	got, err := store.GetByCardID(ctx, cardID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sale-1", got[0].CompSaleID)
	require.NotNil(t, got[0].ExternalID)
	assert.Equal(t, "ext-1", *got[0].ExternalID)
	assert.Nil(t, got[0].DedupKey)
	assert.JSONEq(t, string(sale.Raw), string(got[0].Raw))
}

func TestCompSaleStore_Duplicates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cardID := createTestCard(t, ctx, pool, "card-1", "sv1", "015")
	store := NewCompSaleStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.CompSale{
		CompSaleID: "sale-1", CardID: cardID, Source: "EbaySold", ExternalID: ptr("ext-1"),
		PriceMinorUnits: 1, Currency: "USD", SoldAt: 1, CreatedAt: 1,
	}))
	require.NoError(t, store.Insert(ctx, &domain.CompSale{
		CompSaleID: "sale-2", CardID: cardID, Source: "EbaySold", DedupKey: ptr("natural-1"),
		PriceMinorUnits: 1, Currency: "USD", SoldAt: 1, CreatedAt: 1,
	}))

	// (source, external_id)
	err := store.Insert(ctx, &domain.CompSale{
		CompSaleID: "sale-3", CardID: cardID, Source: "EbaySold", ExternalID: ptr("ext-1"),
		PriceMinorUnits: 1, Currency: "USD", SoldAt: 1, CreatedAt: 1,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// dedup_key
	err = store.Insert(ctx, &domain.CompSale{
		CompSaleID: "sale-4", CardID: cardID, Source: "Fanatics", DedupKey: ptr("natural-1"),
		PriceMinorUnits: 1, Currency: "USD", SoldAt: 1, CreatedAt: 1,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCompSaleStore_ListTitles(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cardID := createTestCard(t, ctx, pool, "card-1", "sv1", "015")
	store := NewCompSaleStore(pool)

	raws := []string{
		`{"title":"Pokemon SV1 015"}`,
		`{"title":"Pokemon SV1 015"}`,
		`{"name":"Charizard base1 4"}`,
		`{"price":1}`,
	}
	for i, raw := range raws {
		require.NoError(t, store.Insert(ctx, &domain.CompSale{
			CompSaleID:      string(rune('a' + i)),
			CardID:          cardID,
			Source:          "EbaySold",
			DedupKey:        ptr(string(rune('a' + i))),
			PriceMinorUnits: 1,
			Currency:        "USD",
			SoldAt:          1,
			Raw:             json.RawMessage(raw),
			CreatedAt:       int64(i),
		}))
	}

	titles, err := store.ListTitles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pokemon SV1 015", "Charizard base1 4"}, titles)

	limited, err := store.ListTitles(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pokemon SV1 015"}, limited)
}

func TestCompSaleStore_CountSoldSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	card1 := createTestCard(t, ctx, pool, "card-1", "sv1", "015")
	card2 := createTestCard(t, ctx, pool, "card-2", "sv1", "016")
	store := NewCompSaleStore(pool)

	for i, s := range []struct {
		card   string
		soldAt int64
	}{{card1, 100}, {card1, 200}, {card2, 300}, {card2, 10}} {
		require.NoError(t, store.Insert(ctx, &domain.CompSale{
			CompSaleID: string(rune('a' + i)), CardID: s.card, Source: "EbaySold",
			DedupKey: ptr(string(rune('a' + i))), PriceMinorUnits: 1, Currency: "USD",
			SoldAt: s.soldAt, CreatedAt: 1,
		}))
	}

	sales, cards, err := store.CountSoldSince(ctx, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, sales)
	assert.Equal(t, 1, cards)

	sales, cards, err = store.CountSoldSince(ctx, 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sales)
	assert.Equal(t, 0, cards)
}

func TestCompSaleStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cardID := createTestCard(t, ctx, pool, "card-1", "sv1", "015")
	store := NewCompSaleStore(pool)

	for _, id := range []string{"sale-2", "sale-1", "sale-3"} {
		require.NoError(t, store.Insert(ctx, &domain.CompSale{
			CompSaleID: id,
			CardID:     cardID,
			Source:     "EbaySold",
			DedupKey:   ptr("nk-" + id),
			Currency:   "USD",
			SoldAt:     1700000000000,
			Raw:        json.RawMessage(`{}`),
		}))
	}

	page, err := store.List(ctx, "sale-1", 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "sale-2", page[0].CompSaleID)
	assert.Equal(t, "sale-3", page[1].CompSaleID)
	require.NotNil(t, page[0].DedupKey)
	assert.Equal(t, "nk-sale-2", *page[0].DedupKey)
}
