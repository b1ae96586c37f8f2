package pdfform

import "fmt"

// FieldKind classifies a form field for mapping and fill purposes.
type FieldKind string

const (
	FieldKindText      FieldKind = "text"
	FieldKindCheckbox  FieldKind = "checkbox"
	FieldKindRadio     FieldKind = "radio"
	FieldKindDropdown  FieldKind = "dropdown"
	FieldKindSignature FieldKind = "signature"
	FieldKindDate      FieldKind = "date"
)

// Coordinate is a point in PDF user space.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is the rectangle of a field's first widget annotation.
type BoundingBox struct {
	LowerLeft  Coordinate `json:"lower_left"`
	UpperRight Coordinate `json:"upper_right"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
}

// FieldDescriptor is the canonical description of one interactive form field.
// Descriptors are immutable once extracted; a template whose checksum changes
// gets a fresh extraction rather than a patched descriptor list.
type FieldDescriptor struct {
	Name     string       `json:"name"`
	Kind     FieldKind    `json:"kind"`
	Page     int          `json:"page"` // 1-indexed
	Bounds   *BoundingBox `json:"bounds,omitempty"`
	Required bool         `json:"required"`

	// GeometryUnresolved marks fields whose widget rectangle or page could
	// not be resolved. The field is kept; only its placement is unknown.
	GeometryUnresolved bool `json:"geometry_unresolved,omitempty"`
}

// ExtractionError reports a malformed or missing interactive form object.
// The extractor never attempts automatic repair.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdf form extraction: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pdf form extraction: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
