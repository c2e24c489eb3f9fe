package domain

// CardKey identifies a printed card variant.
// All fields are normalized (see idhash.CardKey) before they reach storage.
type CardKey struct {
	SetCode    string // lowercase set code, e.g. "sv1"
	Number     string // collector number, zero-padded when numeric, e.g. "015"
	VariantKey string // encoded edition/holo/reverse/shadowless/language
	Language   string // uppercase language code, default "EN"
}

// Card represents a canonical card identity.
// Corresponds to cards table in PostgreSQL.
type Card struct {
	CardID      string // PRIMARY KEY, deterministic hash of CardKey
	SetCode     string // UNIQUE (set_code, number, variant_key, language)
	Number      string
	VariantKey  string
	Language    string
	DisplayName string
	CreatedAt   int64 // record creation timestamp (ms)
	UpdatedAt   int64 // last update timestamp (ms)
}

// Key returns the identity tuple of the card.
func (c *Card) Key() CardKey {
	return CardKey{
		SetCode:    c.SetCode,
		Number:     c.Number,
		VariantKey: c.VariantKey,
		Language:   c.Language,
	}
}
