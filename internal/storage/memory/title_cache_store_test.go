package memory

import (
	"context"
	"errors"
	"testing"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

func TestTitleCacheStore_UpsertPreservesHits(t *testing.T) {
	store := NewTitleCacheStore()
	ctx := context.Background()

	p := &domain.TitleParse{
		SchemaVersion: 1,
		TitleHash:     "h1",
		TitleRaw:      "Pokemon SV1 015",
		SetCode:       "sv1",
		Number:        "015",
		Confidence:    0.55,
		Method:        domain.ParseMethodFallback,
		CreatedAt:     1000,
	}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.IncrementHits(ctx, 1, "h1"); err != nil {
		t.Fatalf("IncrementHits failed: %v", err)
	}

	replaced := *p
	replaced.Confidence = 0.9
	replaced.Method = domain.ParseMethodModel
	replaced.CreatedAt = 5000
	if err := store.Upsert(ctx, &replaced); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, 1, "h1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Confidence != 0.9 || got.Method != domain.ParseMethodModel {
		t.Errorf("parsed fields not replaced: %+v", got)
	}
	if got.Hits != 1 {
		t.Errorf("Hits = %d, want 1", got.Hits)
	}
	if got.CreatedAt != 1000 {
		t.Errorf("CreatedAt = %d, want 1000", got.CreatedAt)
	}
}

func TestTitleCacheStore_VersionIsolation(t *testing.T) {
	store := NewTitleCacheStore()
	ctx := context.Background()

	_ = store.Upsert(ctx, &domain.TitleParse{SchemaVersion: 1, TitleHash: "h1"})

	if _, err := store.Get(ctx, 2, "h1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other schema version, got %v", err)
	}
	if err := store.IncrementHits(ctx, 2, "h1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
