package mapping

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
)

// Engine heuristically maps extracted field descriptors to logical data
// paths. Rules are evaluated in order, first match wins; the confidence score
// is computed independently of rule selection and never blocks anything.
type Engine struct {
	rules []rule
	log   *logrus.Logger
}

// NewEngine creates an engine with the default dealership rule set.
func NewEngine(log *logrus.Logger) *Engine {
	return &Engine{rules: defaultRules(), log: log}
}

// AutoMap produces at most one mapping per descriptor. Descriptors matching
// no rule are reported in Result.Unmapped for manual assignment.
func (e *Engine) AutoMap(descriptors []pdfform.FieldDescriptor) Result {
	result := Result{
		Mappings: make([]FieldMapping, 0, len(descriptors)),
		Unmapped: make([]string, 0),
	}

	for _, d := range descriptors {
		lowerName := strings.ToLower(d.Name)

		matched := false
		for _, r := range e.rules {
			if !r.matches(lowerName, d.Kind) {
				continue
			}
			dataPath, transform := r.action(lowerName)
			m := FieldMapping{
				SourceField: d.Name,
				DataPath:    dataPath,
				Transform:   transform,
				Required:    d.Required,
				AutoMapped:  true,
				Confidence:  Confidence(d.Name, dataPath),
			}
			result.Mappings = append(result.Mappings, m)

			e.log.WithFields(logrus.Fields{
				"field":      d.Name,
				"rule":       r.name,
				"data_path":  dataPath,
				"confidence": m.Confidence,
			}).Debug("auto-mapped field")

			matched = true
			break
		}

		if !matched {
			result.Unmapped = append(result.Unmapped, d.Name)
		}
	}

	return result
}

// Validate reports, in one batch, every required descriptor that has no
// mapping. Signature placeholders count as mapped.
func Validate(descriptors []pdfform.FieldDescriptor, mappings []FieldMapping) error {
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.SourceField] = true
	}

	var missing []string
	for _, d := range descriptors {
		if d.Required && !mapped[d.Name] {
			missing = append(missing, d.Name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Strong domain keywords identify a field beyond reasonable doubt; generic
// keywords are shared across many document types.
var (
	strongKeywords  = []string{"vin", "odometer", "stock", "license"}
	genericKeywords = []string{"name", "date", "address", "phone", "email", "price", "amount", "city", "state", "zip"}
)

// Confidence estimates auto-mapping correctness on [0,1]. Only exact
// name/path equality scores 1.0; matching just the path leaf or a strong
// domain keyword scores 0.95, generic keyword overlap 0.7, anything else 0.5.
func Confidence(fieldName, dataPath string) float64 {
	lowerName := strings.ToLower(fieldName)
	lowerPath := strings.ToLower(dataPath)

	if lowerName == lowerPath {
		return 1.0
	}

	leaf := lowerPath
	if idx := strings.LastIndex(lowerPath, "."); idx >= 0 {
		leaf = lowerPath[idx+1:]
	}
	if lowerName == leaf {
		return 0.95
	}

	for _, kw := range strongKeywords {
		if strings.Contains(lowerName, kw) {
			return 0.95
		}
	}
	for _, kw := range genericKeywords {
		if strings.Contains(lowerName, kw) {
			return 0.7
		}
	}
	return 0.5
}
