package mapping

import (
	"strings"

	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
)

// rule is one typed predicate/action pair. Rules evaluate in order against
// the lower-cased field name, first match wins.
type rule struct {
	name    string
	matches func(lowerName string, kind pdfform.FieldKind) bool
	action  func(lowerName string) (dataPath string, transform Transform)
}

// defaultRules returns the ordered auto-mapping rule set. The signature rule
// leads: a signature-kind field maps to the placeholder no matter what its
// name would otherwise match.
func defaultRules() []rule {
	return []rule{
		{
			name: "signature_placeholder",
			matches: func(_ string, kind pdfform.FieldKind) bool {
				return kind == pdfform.FieldKindSignature
			},
			action: func(string) (string, Transform) {
				return SignaturePlaceholder, TransformNone
			},
		},
		{
			name: "buyer_to_client",
			matches: func(lowerName string, _ pdfform.FieldKind) bool {
				return strings.Contains(lowerName, "buyer") || strings.Contains(lowerName, "purchaser")
			},
			action: func(lowerName string) (string, Transform) {
				switch {
				case strings.Contains(lowerName, "name"):
					return "client.firstName+lastName", TransformUppercase
				case strings.Contains(lowerName, "address"):
					return "client.address", TransformTitlecase
				case strings.Contains(lowerName, "phone"):
					return "client.phone", TransformNone
				case strings.Contains(lowerName, "email"):
					return "client.email", TransformLowercase
				default:
					return "client." + leafToken(lowerName, "buyer", "purchaser"), TransformNone
				}
			},
		},
		{
			name: "vehicle_attributes",
			matches: func(lowerName string, _ pdfform.FieldKind) bool {
				return strings.Contains(lowerName, "vehicle") ||
					strings.Contains(lowerName, "car") ||
					strings.Contains(lowerName, "auto") ||
					strings.Contains(lowerName, "vin")
			},
			action: func(lowerName string) (string, Transform) {
				switch {
				case strings.Contains(lowerName, "vin"):
					return "vehicle.vin", TransformUppercase
				case strings.Contains(lowerName, "make"):
					return "vehicle.make", TransformNone
				case strings.Contains(lowerName, "model"):
					return "vehicle.model", TransformNone
				case strings.Contains(lowerName, "year"):
					return "vehicle.year", TransformNone
				case strings.Contains(lowerName, "odometer"), strings.Contains(lowerName, "mileage"):
					return "vehicle.odometer", TransformNone
				case strings.Contains(lowerName, "stock"):
					return "vehicle.stockNumber", TransformUppercase
				default:
					return "vehicle." + leafToken(lowerName, "vehicle", "car", "auto"), TransformNone
				}
			},
		},
		{
			name: "money_to_deal",
			matches: func(lowerName string, _ pdfform.FieldKind) bool {
				return strings.Contains(lowerName, "price") || strings.Contains(lowerName, "amount")
			},
			action: func(lowerName string) (string, Transform) {
				switch {
				case strings.Contains(lowerName, "down"):
					return "deal.downPayment", TransformCurrency
				case strings.Contains(lowerName, "tax"):
					return "deal.taxAmount", TransformCurrency
				case strings.Contains(lowerName, "trade"):
					return "deal.tradeInValue", TransformCurrency
				default:
					return "deal.totalAmount", TransformCurrency
				}
			},
		},
		{
			name: "date_to_deal",
			matches: func(lowerName string, _ pdfform.FieldKind) bool {
				return strings.Contains(lowerName, "date")
			},
			action: func(lowerName string) (string, Transform) {
				if strings.Contains(lowerName, "delivery") {
					return "deal.deliveryDate", TransformDate
				}
				return "deal.saleDate", TransformDate
			},
		},
		{
			name: "dealer_attributes",
			matches: func(lowerName string, _ pdfform.FieldKind) bool {
				return strings.Contains(lowerName, "dealer") || strings.Contains(lowerName, "seller")
			},
			action: func(lowerName string) (string, Transform) {
				switch {
				case strings.Contains(lowerName, "address"):
					return "dealership.address", TransformTitlecase
				case strings.Contains(lowerName, "phone"):
					return "dealership.phone", TransformNone
				case strings.Contains(lowerName, "license"):
					return "dealership.licenseNumber", TransformUppercase
				default:
					return "dealership.name", TransformNone
				}
			},
		},
	}
}

// leafToken derives a path leaf from the field name with the matched domain
// keywords stripped, e.g. "buyer_home_city" -> "homeCity".
func leafToken(lowerName string, stripKeywords ...string) string {
	parts := strings.FieldsFunc(lowerName, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})

	kept := parts[:0]
	for _, p := range parts {
		skip := false
		for _, kw := range stripKeywords {
			if p == kw {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "name"
	}

	leaf := kept[0]
	for _, p := range kept[1:] {
		leaf += strings.ToUpper(p[:1]) + p[1:]
	}
	return leaf
}
