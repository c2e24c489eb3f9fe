package idhash

import "testing"

func TestComputeListingID(t *testing.T) {
	a := ComputeListingID("Ebay", "abc123")
	if len(a) != 64 {
		t.Errorf("ComputeListingID() length = %d, want 64", len(a))
	}
	if a != ComputeListingID("Ebay", "abc123") {
		t.Error("ComputeListingID() not deterministic")
	}
	if a == ComputeListingID("Fanatics", "abc123") {
		t.Error("Different source should produce different hash")
	}
}

func TestComputeCompSaleID(t *testing.T) {
	ext := "sale-1"
	dk := "natural"

	byExt := ComputeCompSaleID("EbaySold", &ext, nil)
	byKey := ComputeCompSaleID("EbaySold", nil, &dk)
	if byExt == byKey {
		t.Error("external id and natural key ids should differ")
	}
	if byExt != ComputeCompSaleID("EbaySold", &ext, nil) {
		t.Error("ComputeCompSaleID() not deterministic")
	}
}

func TestHashTitle(t *testing.T) {
	h := HashTitle("pokemon sv1 015 holo")
	if len(h) != 40 {
		t.Errorf("HashTitle() length = %d, want 40", len(h))
	}
	if h == HashTitle("pokemon sv1 016 holo") {
		t.Error("Different titles should produce different hash")
	}
}
