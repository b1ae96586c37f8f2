package mapping

import (
	"fmt"
	"strings"
)

// SignaturePlaceholder is the sentinel data path for signature-kind fields.
// The generator never resolves it; signature capture owns those fields.
const SignaturePlaceholder = "SIGNATURE_PLACEHOLDER"

// Transform names a value transformation applied during generation.
type Transform string

const (
	TransformNone      Transform = "none"
	TransformUppercase Transform = "uppercase"
	TransformLowercase Transform = "lowercase"
	TransformTitlecase Transform = "titlecase"
	TransformCurrency  Transform = "currency"
	TransformDate      Transform = "date"
)

// FieldMapping binds one template field to a dotted path into the
// deal/client/vehicle/dealership aggregate. At most one mapping exists per
// field per template version.
type FieldMapping struct {
	SourceField  string    `json:"source_field"`
	DataPath     string    `json:"data_path"`
	Transform    Transform `json:"transform"`
	DefaultValue string    `json:"default_value,omitempty"`
	Required     bool      `json:"required"`
	AutoMapped   bool      `json:"auto_mapped"`
	Confidence   float64   `json:"confidence"` // informational, never blocks generation
}

// Result is the outcome of one auto-mapping run. Fields matching no rule are
// listed in Unmapped and must be surfaced for manual assignment.
type Result struct {
	Mappings []FieldMapping `json:"mappings"`
	Unmapped []string       `json:"unmapped"`
}

// ValidationError reports every required field left without a mapping, in one
// batch, so a caller can fix the whole template in a single pass.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unmapped required fields: %s", strings.Join(e.Fields, ", "))
}
