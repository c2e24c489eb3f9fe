package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
)

func TestRawImportStore_InsertDuplicate(t *testing.T) {
	store := NewRawImportStore()
	ctx := context.Background()

	r := &domain.RawImport{
		RawImportID: "r1",
		TableName:   domain.RawTableListing,
		Source:      "Ebay",
		SourceID:    "abc123",
		Payload:     json.RawMessage(`{"id":"abc123","title":"Pokemon SV1 015 Holo"}`),
		DedupKey:    "dk1",
		ImportedAt:  1000,
	}
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByDedupKey(ctx, "dk1")
	if err != nil {
		t.Fatalf("GetByDedupKey failed: %v", err)
	}
	if string(got.Payload) != string(r.Payload) {
		t.Errorf("payload mismatch: %s", got.Payload)
	}

	titles, _ := store.ListTitles(ctx, 10)
	if len(titles) != 1 || titles[0] != "Pokemon SV1 015 Holo" {
		t.Errorf("unexpected titles: %v", titles)
	}
}

func TestRawImportStore_EmptyDedupKey(t *testing.T) {
	store := NewRawImportStore()
	err := store.Insert(context.Background(), &domain.RawImport{RawImportID: "r1"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
