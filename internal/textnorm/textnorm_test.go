package textnorm

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Pokémon  SV1   015 ", "pokemon sv1 015"},
		{"CHARIZARD\tHOLO", "charizard holo"},
		{"Ｐｏｋｅｍｏｎ", "pokemon"}, // fullwidth compatibility form
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	if got := Key("Scarlet & Violet"); got != "scarletviolet" {
		t.Errorf("Key() = %q", got)
	}
	if Key("Sword & Shield: Evolving Skies") != Key("sword shield evolving skies") {
		t.Error("punctuation should not affect Key")
	}
}

func TestTitle(t *testing.T) {
	if got := Title("near  mint"); got != "Near Mint" {
		t.Errorf("Title() = %q", got)
	}
}
