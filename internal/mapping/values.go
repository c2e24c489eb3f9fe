package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultCurrency applies when a row carries neither a currency nor a
// recognizable symbol.
const DefaultCurrency = "USD"

var currencySymbols = map[rune]string{
	'$': "USD",
	'€': "EUR",
	'£': "GBP",
	'¥': "JPY",
}

// ParseMoney converts a price such as 12.5, "$12.50", "1,299.00" or
// "12,50 €" to minor units. The currency implied by a symbol is returned
// when present.
func ParseMoney(v any) (minor int64, currency string, err error) {
	if s, ok := v.(string); ok {
		return parseMoneyText(s)
	}
	f, ok := number(v)
	if !ok {
		return 0, "", fmt.Errorf("price %v: not a number", v)
	}
	return toMinor(f), "", nil
}

func parseMoneyText(s string) (int64, string, error) {
	var (
		b        strings.Builder
		currency string
	)
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-':
			b.WriteRune(r)
		default:
			if c, ok := currencySymbols[r]; ok && currency == "" {
				currency = c
			}
		}
	}

	num := b.String()
	dot := strings.LastIndex(num, ".")
	comma := strings.LastIndex(num, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			// 1.299,00
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case comma >= 0:
		if len(num)-comma-1 == 2 && strings.Count(num, ",") == 1 {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	}

	if num == "" {
		return 0, "", fmt.Errorf("price %q: no digits", s)
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", fmt.Errorf("price %q: %w", s, err)
	}
	return toMinor(f), currency, nil
}

func toMinor(f float64) int64 {
	return int64(math.Round(f * 100))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"Jan 2, 2006",
	"01/02/2006",
}

// unixMillisThreshold separates Unix seconds from milliseconds.
const unixMillisThreshold = 1e11

// ParseTime converts a timestamp to Unix milliseconds. Accepted: RFC3339,
// SQL datetime, date-only, "Jan 2, 2006", US dates, Unix seconds or ms.
// Zone-less values are read as UTC.
func ParseTime(v any) (int64, error) {
	if f, ok := number(v); ok {
		if f > unixMillisThreshold {
			return int64(f), nil
		}
		return int64(f * 1000), nil
	}

	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("time %v: unsupported type %T", v, v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("time %q: unrecognized format", s)
}
