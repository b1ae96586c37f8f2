package mapping

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateOutputFormat is the single canonical date rendering. ISO-8601 keeps
// generated checksums identical across machine locales.
const DateOutputFormat = "2006-01-02"

// dateInputFormats are tried in order when normalizing a date value.
var dateInputFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
}

// Apply runs the named transform over a resolved value. Values that cannot be
// normalized pass through unchanged; transforms shape output, they do not
// validate input.
func Apply(t Transform, value string) string {
	switch t {
	case TransformUppercase:
		return strings.ToUpper(value)
	case TransformLowercase:
		return strings.ToLower(value)
	case TransformTitlecase:
		return titlecase(value)
	case TransformCurrency:
		return currency(value)
	case TransformDate:
		return isoDate(value)
	default:
		return value
	}
}

// currency renders two fixed decimals, tolerating "$" and "," in the input.
func currency(value string) string {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return value
	}
	return d.StringFixed(2)
}

func isoDate(value string) string {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateInputFormats {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.Format(DateOutputFormat)
		}
	}
	return value
}

func titlecase(value string) string {
	words := strings.Fields(strings.ToLower(value))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
