package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		transform Transform
		in        string
		want      string
	}{
		{"uppercase", TransformUppercase, "John Smith", "JOHN SMITH"},
		{"lowercase", TransformLowercase, "John@Example.COM", "john@example.com"},
		{"titlecase", TransformTitlecase, "123 MAIN street", "123 Main Street"},
		{"currency_plain", TransformCurrency, "24999.5", "24999.50"},
		{"currency_formatted", TransformCurrency, "$24,999.50", "24999.50"},
		{"currency_integer", TransformCurrency, "15000", "15000.00"},
		{"currency_unparsable_passthrough", TransformCurrency, "call for price", "call for price"},
		{"date_iso_input", TransformDate, "2026-03-15", "2026-03-15"},
		{"date_us_input", TransformDate, "03/15/2026", "2026-03-15"},
		{"date_rfc3339_input", TransformDate, "2026-03-15T10:30:00Z", "2026-03-15"},
		{"date_unparsable_passthrough", TransformDate, "someday", "someday"},
		{"none", TransformNone, "as-is", "as-is"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(tt.transform, tt.in))
		})
	}
}
