package titleparse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/idhash"
	"cardmarket-lab/internal/storage"
	"cardmarket-lab/internal/storage/memory"
	"cardmarket-lab/internal/textnorm"
)

type recordingCacheObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingCacheObserver) ObserveCache(r string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func newCached(t *testing.T, stub *stubCompleter, store storage.TitleCacheStore, obs CacheObserver) *CachedParser {
	t.Helper()
	p := NewParser(stub, WithLogger(quietLogger()))
	c, err := NewCachedParser(p, store, CacheOptions{
		SchemaVersion: 1,
		Size:          16,
		Logger:        quietLogger(),
		Observer:      obs,
		Now:           fixedNow,
	})
	require.NoError(t, err)
	return c
}

func TestCachedParser_WritesThroughAndHits(t *testing.T) {
	ctx := context.Background()
	stub := &stubCompleter{out: `{"setCode":"sv1","number":"15","foil":"Holo","confidence":0.9}`}
	store := memory.NewTitleCacheStore()
	obs := &recordingCacheObserver{}
	c := newCached(t, stub, store, obs)

	title := "  Pokémon SV1  Pikachu 15 Holo "
	first, err := c.Resolve(ctx, title, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, stub.Calls())

	hash := idhash.HashTitle(textnorm.Fold(title))
	row, err := store.Get(ctx, 1, hash)
	require.NoError(t, err)
	assert.Equal(t, "sv1", row.SetCode)
	assert.Equal(t, "015", row.Number)
	assert.Equal(t, "holo|EN", row.VariantKey)
	assert.Equal(t, "sv1-015-holo|en", row.CardSlug)
	assert.Equal(t, "pokemon sv1 pikachu 15 holo", row.TitleNorm)
	assert.Equal(t, domain.ParseMethodModel, row.Method)
	assert.Equal(t, int64(1), row.Hits)
	assert.Equal(t, int64(1700000000000), row.CreatedAt)

	// Same normalized title served from memory.
	second, err := c.Resolve(ctx, "pokemon sv1 pikachu 15 holo", DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, stub.Calls())
	assert.Equal(t, "sv1", second.SetCode)
	assert.Equal(t, "Holo", second.Foil)

	row, err = store.Get(ctx, 1, hash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Hits)

	assert.Equal(t, []string{CacheMiss, CacheHitMemory}, obs.results)
}

func TestCachedParser_StoreHitAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTitleCacheStore()

	warm := newCached(t, &stubCompleter{out: `{"setCode":"swsh7","number":"215","confidence":0.8}`}, store, nil)
	require.NotNil(t, warm.Parse(ctx, "Umbreon VMAX 215", DefaultOptions()))

	stub := &stubCompleter{err: errors.New("down")}
	obs := &recordingCacheObserver{}
	cold := newCached(t, stub, store, obs)
	got := cold.Parse(ctx, "umbreon vmax 215", DefaultOptions())
	require.NotNil(t, got)
	assert.Equal(t, "swsh7", got.SetCode)
	assert.Equal(t, 0, stub.Calls())
	assert.Equal(t, []string{CacheHitStore}, obs.results)
}

func TestCachedParser_LowConfidenceEntryReparsed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTitleCacheStore()
	stub := &stubCompleter{err: errors.New("down")}
	c := newCached(t, stub, store, nil)

	// Backend down: fallback result is cached below the threshold.
	got := c.Parse(ctx, "sv1 15", DefaultOptions())
	require.NotNil(t, got)
	assert.True(t, got.Fallback)
	assert.Equal(t, 1, stub.Calls())

	// Backend back: the cached fallback does not satisfy 0.65 and the model runs.
	stub.mu.Lock()
	stub.err = nil
	stub.out = `{"setCode":"sv1","number":"15","confidence":0.92}`
	stub.mu.Unlock()

	got = c.Parse(ctx, "sv1 15", DefaultOptions())
	require.NotNil(t, got)
	assert.False(t, got.Fallback)
	assert.Equal(t, 2, stub.Calls())

	row, err := store.Get(ctx, 1, idhash.HashTitle("sv1 15"))
	require.NoError(t, err)
	assert.Equal(t, domain.ParseMethodModel, row.Method)
	assert.InDelta(t, 0.92, row.Confidence, 1e-9)
}

func TestCachedParser_SchemaVersionIsolates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTitleCacheStore()

	v1 := newCached(t, &stubCompleter{out: `{"setCode":"sv1","number":"1","confidence":0.9}`}, store, nil)
	require.NotNil(t, v1.Parse(ctx, "title", DefaultOptions()))

	stub := &stubCompleter{out: `{"setCode":"sv2","number":"2","confidence":0.9}`}
	v2, err := NewCachedParser(NewParser(stub, WithLogger(quietLogger())), store, CacheOptions{SchemaVersion: 2, Logger: quietLogger()})
	require.NoError(t, err)
	got := v2.Parse(ctx, "title", DefaultOptions())
	require.NotNil(t, got)
	assert.Equal(t, "sv2", got.SetCode)
	assert.Equal(t, 1, stub.Calls())
}

func TestCachedParser_MissNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTitleCacheStore()
	stub := &stubCompleter{err: errors.New("down")}
	c := newCached(t, stub, store, nil)

	got, err := c.Resolve(ctx, "charizard holo rare", DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = store.Get(ctx, 1, idhash.HashTitle("charizard holo rare"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingCacheStore struct{ storage.TitleCacheStore }

func (failingCacheStore) Get(context.Context, int, string) (*domain.TitleParse, error) {
	return nil, errors.New("connection reset")
}

func (failingCacheStore) Upsert(context.Context, *domain.TitleParse) error {
	return errors.New("connection reset")
}

func TestCachedParser_StoreErrorsAreSoft(t *testing.T) {
	ctx := context.Background()
	c := newCached(t, &stubCompleter{out: `{"setCode":"sv1","number":"15","confidence":0.9}`}, failingCacheStore{}, nil)

	got, err := c.Resolve(ctx, "sv1 15", DefaultOptions())
	require.NotNil(t, got)
	assert.Error(t, err)
	assert.Equal(t, "sv1", got.SetCode)

	// Parse hides the error.
	assert.NotNil(t, c.Parse(ctx, "sv1 16", DefaultOptions()))
}

func TestFromCache_RecoversFlags(t *testing.T) {
	p := fromCache(&domain.TitleParse{SetCode: "base3", Number: "005", VariantKey: "1st|holo|JP", Language: "jp", Method: domain.ParseMethodFallback})
	assert.Equal(t, "1st", p.Edition)
	assert.Equal(t, "Holo", p.Foil)
	assert.Equal(t, "JP", p.Language)
	assert.True(t, p.Fallback)
}

func TestCachedParser_DeterministicSkipsCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTitleCacheStore()
	stub := &stubCompleter{out: `{"setCode":"swsh7","number":"215","confidence":0.9}`}
	obs := &recordingCacheObserver{}
	c := newCached(t, stub, store, obs)

	title := "Pokemon SV1 015 Holo"
	warmed, err := c.Resolve(ctx, title, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, warmed)
	assert.Equal(t, "swsh7", warmed.SetCode)

	opts := DefaultOptions()
	opts.Mode = ModeDeterministic
	got, err := c.Resolve(ctx, title, opts)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sv1", got.SetCode)
	assert.Equal(t, "015", got.Number)
	assert.Equal(t, domain.ParseMethodFallback, got.Method)
	assert.Equal(t, 1, stub.Calls())

	// Only the best-effort lookup touched the cache.
	assert.Equal(t, []string{CacheMiss}, obs.results)
	row, err := store.Get(ctx, 1, idhash.HashTitle(textnorm.Fold(title)))
	require.NoError(t, err)
	assert.Equal(t, "swsh7", row.SetCode)
	assert.Equal(t, int64(1), row.Hits)
}
