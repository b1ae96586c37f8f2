package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/universalautobrokers/dealerdocs/internal/mapping"
	"github.com/universalautobrokers/dealerdocs/internal/pdfform"
)

// Template is one immutable published version of a document type for a
// jurisdiction. New blank bytes always create a new version; versions are
// never deleted so already-generated documents keep their references.
type Template struct {
	ID           string `gorm:"primaryKey;size:36"`
	DocumentType string `gorm:"size:128;uniqueIndex:idx_template_identity,priority:1"`
	Jurisdiction string `gorm:"size:64;uniqueIndex:idx_template_identity,priority:2"`
	Version      int    `gorm:"uniqueIndex:idx_template_identity,priority:3"`
	Checksum     string `gorm:"size:64;index"`
	PageCount    int
	StorageKey   string `gorm:"size:256"`
	FieldsJSON   string
	MappingsJSON string
	CreatedAt    time.Time
}

// Fields decodes the ordered extracted descriptors.
func (t *Template) Fields() ([]pdfform.FieldDescriptor, error) {
	var fields []pdfform.FieldDescriptor
	if err := json.Unmarshal([]byte(t.FieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("decode template fields: %w", err)
	}
	return fields, nil
}

// Mappings decodes the field mappings of this version.
func (t *Template) Mappings() ([]mapping.FieldMapping, error) {
	var mappings []mapping.FieldMapping
	if err := json.Unmarshal([]byte(t.MappingsJSON), &mappings); err != nil {
		return nil, fmt.Errorf("decode template mappings: %w", err)
	}
	return mappings, nil
}

func (t *Template) setFields(fields []pdfform.FieldDescriptor) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	t.FieldsJSON = string(raw)
	return nil
}

func (t *Template) setMappings(mappings []mapping.FieldMapping) error {
	raw, err := json.Marshal(mappings)
	if err != nil {
		return err
	}
	t.MappingsJSON = string(raw)
	return nil
}

// ChecksumMismatchError signals that cached template fields no longer match
// the template bytes on record.
type ChecksumMismatchError struct {
	TemplateID string
	Expected   string
	Actual     string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("template %s checksum mismatch: recorded %s, bytes hash to %s",
		e.TemplateID, e.Expected, e.Actual)
}
