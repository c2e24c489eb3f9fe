package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/mapping"
	"cardmarket-lab/internal/storage/memory"
	"cardmarket-lab/internal/upsert"
)

func decodeAll(t *testing.T, rows ...string) []mapping.Record {
	t.Helper()
	out := make([]mapping.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := mapping.DecodeRecord([]byte(r))
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestAnchorLoader_Load(t *testing.T) {
	ctx := context.Background()
	cards := memory.NewCardStore()
	anchors := memory.NewPriceAnchorStore()
	engine := upsert.NewEngine(upsert.Stores{Cards: cards})

	holo, _, err := engine.UpsertCardByKey(ctx,
		idhash.CardKey("sv1", "15", "holo|EN", "EN"), "Pikachu")
	require.NoError(t, err)
	plain, _, err := engine.UpsertCardByKey(ctx,
		idhash.CardKey("base3", "5", "EN", "EN"), "Gengar")
	require.NoError(t, err)

	now := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	loader := NewAnchorLoader(AnchorLoaderOptions{
		Cards:   cards,
		Anchors: anchors,
		Now:     func() time.Time { return now },
		Logger:  quietLogger(),
	})

	records := decodeAll(t,
		`{"setCode":"SV1","number":"15","printing":"holofoil","market":1.5,"low":"$1.00","directLow":null,"observedAt":"2024-03-05"}`,
		`{"set":"Fossil","number":"5","mid":"2,50","currency":"eur"}`,
		`{"setCode":"sv9","number":"1","market":3}`,
		`{"setCode":"sv1","number":"15","printing":"holofoil"}`,
		`{"number":"15","market":1}`,
	)

	counts, err := loader.Load(ctx, records, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Linked)
	assert.Equal(t, int64(3), counts.Skipped)
	assert.Equal(t, int64(3), counts.Anchors)
	assert.Equal(t, "[anchors] linked=2 skipped=3", counts.String())

	got, err := anchors.GetByCardID(ctx, holo.CardID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	byType := map[domain.PriceType]*domain.PriceAnchor{}
	for _, a := range got {
		byType[a.PriceType] = a
	}
	assert.Equal(t, int64(150), byType[domain.PriceTypeMarket].PriceMinorUnits)
	assert.Equal(t, int64(100), byType[domain.PriceTypeLow].PriceMinorUnits)
	assert.Equal(t, "USD", byType[domain.PriceTypeLow].Currency)
	assert.Equal(t, DefaultAnchorSource, byType[domain.PriceTypeMarket].Source)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC).UnixMilli(), byType[domain.PriceTypeMarket].ObservedAt)

	got, err = anchors.GetByCardID(ctx, plain.CardID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.PriceTypeMid, got[0].PriceType)
	assert.Equal(t, int64(250), got[0].PriceMinorUnits)
	assert.Equal(t, "EUR", got[0].Currency)
	assert.Equal(t, now.UnixMilli(), got[0].ObservedAt)

	n, err := cards.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "anchors never create cards")

	// Replaying the first row hits the same observation and is skipped.
	counts, err = loader.Load(ctx, records[:1], "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Linked)
	assert.Equal(t, int64(1), counts.Skipped)
}

func TestAnchorLoader_RowSourceOverridesBatch(t *testing.T) {
	ctx := context.Background()
	cards := memory.NewCardStore()
	anchors := memory.NewPriceAnchorStore()
	card, _, err := upsert.NewEngine(upsert.Stores{Cards: cards}).
		UpsertCardByKey(ctx, idhash.CardKey("sv2", "12", "reverse|EN", "EN"), "")
	require.NoError(t, err)

	loader := NewAnchorLoader(AnchorLoaderOptions{Cards: cards, Anchors: anchors, Logger: quietLogger()})
	counts, err := loader.Load(ctx, decodeAll(t,
		`{"setCode":"sv2","number":"12","printing":"reverseHolofoil","market":0.25,"source":"cardmarket"}`,
	), "tcgplayer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Linked)

	got, err := anchors.GetByCardID(ctx, card.CardID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cardmarket", got[0].Source)
	assert.Equal(t, int64(25), got[0].PriceMinorUnits)
}

func TestAnchorLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := NewAnchorLoader(AnchorLoaderOptions{
		Cards:   memory.NewCardStore(),
		Anchors: memory.NewPriceAnchorStore(),
		Logger:  quietLogger(),
	})
	_, err := loader.Load(ctx, decodeAll(t, `{"setCode":"sv1","number":"1","market":1}`), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVariantFromPrinting(t *testing.T) {
	tests := []struct {
		printing string
		want     string
	}{
		{"normal", "EN"},
		{"holofoil", "holo|EN"},
		{"reverseHolofoil", "reverse|EN"},
		{"1stEditionHolofoil", "1st|holo|EN"},
		{"1st Edition", "1st|EN"},
	}
	for _, tt := range tests {
		t.Run(tt.printing, func(t *testing.T) {
			assert.Equal(t, tt.want, idhash.BuildVariantKey(variantFromPrinting(tt.printing, "EN")))
		})
	}
}
