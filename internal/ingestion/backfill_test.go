package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/titleparse"
)

type staticTitles struct {
	titles []string
	err    error
}

func (s staticTitles) ListTitles(_ context.Context, limit int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.titles) {
		return s.titles[:limit], nil
	}
	return s.titles, nil
}

type scriptedResolver struct {
	mu    sync.Mutex
	calls []string
}

func (r *scriptedResolver) Resolve(_ context.Context, title string, _ titleparse.Options) (*domain.ParsedTitle, error) {
	r.mu.Lock()
	r.calls = append(r.calls, title)
	r.mu.Unlock()

	switch title {
	case "broken":
		return &domain.ParsedTitle{SetCode: "sv1", Number: "001"}, errors.New("cache write failed")
	case "unknown":
		return nil, nil
	}
	return &domain.ParsedTitle{SetCode: "sv1", Number: "001"}, nil
}

func TestTitleBackfiller_CollectTitles(t *testing.T) {
	b := NewTitleBackfiller(TitleBackfillOptions{
		Sources: []TitleSource{
			staticTitles{titles: []string{"Pikachu SV1 15", "  pikachu  sv1 15", "Mew 151"}},
			staticTitles{titles: []string{"mew 151", "Charizard base 4", "", "Blastoise 2"}},
		},
		Max:    3,
		Logger: quietLogger(),
	})

	got, err := b.CollectTitles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Pikachu SV1 15", "Mew 151", "Charizard base 4"}, got)
}

func TestTitleBackfiller_CollectTitlesOverlappingSources(t *testing.T) {
	// Raw imports repeat the comp payloads, so the second source leads with
	// titles already collected.
	b := NewTitleBackfiller(TitleBackfillOptions{
		Sources: []TitleSource{
			staticTitles{titles: []string{"Pikachu SV1 15", "Mew 151"}},
			staticTitles{titles: []string{"Pikachu SV1 15", "Mew 151", "Charizard base 4", "Blastoise 2"}},
		},
		Max:    3,
		Logger: quietLogger(),
	})

	got, err := b.CollectTitles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Pikachu SV1 15", "Mew 151", "Charizard base 4"}, got)
}

func TestTitleBackfiller_CollectTitlesError(t *testing.T) {
	b := NewTitleBackfiller(TitleBackfillOptions{
		Sources: []TitleSource{staticTitles{err: errors.New("db down")}},
		Logger:  quietLogger(),
	})
	_, err := b.CollectTitles(context.Background())
	assert.Error(t, err)
}

func TestTitleBackfiller_Run(t *testing.T) {
	resolver := &scriptedResolver{}
	b := NewTitleBackfiller(TitleBackfillOptions{
		Resolver:    resolver,
		Sources:     []TitleSource{staticTitles{titles: []string{"sv1 15", "unknown", "broken", "sv2 3"}}},
		Concurrency: 2,
		Logger:      quietLogger(),
	})

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Titles)
	assert.Equal(t, int64(2), res.OK)
	assert.Equal(t, int64(1), res.Miss)
	assert.Equal(t, int64(1), res.Err)
	assert.Equal(t, "[title-cache/backfill] ok=2 miss=1 err=1", res.String())
	assert.Len(t, resolver.calls, 4)
}

func TestTitleBackfiller_Defaults(t *testing.T) {
	b := NewTitleBackfiller(TitleBackfillOptions{})
	assert.Equal(t, DefaultBackfillMax, b.max)
	assert.Equal(t, DefaultBackfillConcurrency, b.concurrency)
}
