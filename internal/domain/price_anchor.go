package domain

// PriceType names a point estimate published by a pricing source.
type PriceType string

const (
	PriceTypeMarket    PriceType = "market"
	PriceTypeLow       PriceType = "low"
	PriceTypeMid       PriceType = "mid"
	PriceTypeHigh      PriceType = "high"
	PriceTypeDirectLow PriceType = "directLow"
)

// IsValid checks if the price type is a known value.
func (p PriceType) IsValid() bool {
	switch p {
	case PriceTypeMarket, PriceTypeLow, PriceTypeMid, PriceTypeHigh, PriceTypeDirectLow:
		return true
	}
	return false
}

// PriceAnchor is an immutable point price observation for a card.
// Stored in ClickHouse price_anchors (append-only).
type PriceAnchor struct {
	CardID          string
	Source          string    // pricing source, e.g. "tcgplayer"
	PriceType       PriceType // market | low | mid | high | directLow
	PriceMinorUnits int64
	Currency        string
	ObservedAt      int64 // observation time (ms)
}
