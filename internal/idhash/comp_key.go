package idhash

import (
	"strings"
	"time"
)

// CompKeyFields are the attributes that identify a sale event when the
// source provides no external id.
type CompKeyFields struct {
	Source          string
	SetCode         string
	Number          string
	VariantKey      string
	Language        string
	SoldAt          int64 // ms
	PriceMinorUnits int64
	Currency        string
}

// CompNaturalKey computes the natural dedup key of a sale event.
// soldAt is truncated to whole seconds (UTC) so sub-second jitter between
// exports of the same sale does not split it.
func CompNaturalKey(f CompKeyFields) string {
	soldAt := time.UnixMilli(f.SoldAt).UTC().Format("2006-01-02T15:04:05")
	return MustStableHash(map[string]any{
		"source":     f.Source,
		"setCode":    f.SetCode,
		"number":     f.Number,
		"variantKey": f.VariantKey,
		"language":   NormalizeLanguage(f.Language),
		"soldAt":     soldAt,
		"priceCents": f.PriceMinorUnits,
		"currency":   strings.ToUpper(f.Currency),
	})
}
