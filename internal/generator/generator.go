package generator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"

	"github.com/universalautobrokers/dealerdocs/internal/mapping"
)

// GenerationError lists every required field that resolved blank. The
// generator never fails fast; a caller fixes all of them in one pass.
type GenerationError struct {
	Fields []string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("required fields unresolved: %s", strings.Join(e.Fields, ", "))
}

// Document is one generated, filled instance of a template.
type Document struct {
	Bytes    []byte
	Checksum string
	Values   map[string]string
}

// Generator merges an aggregate through field mappings into filled document
// bytes. Identical template + identical values always produce an identical
// checksum.
type Generator struct {
	log *logrus.Logger
}

func New(log *logrus.Logger) *Generator {
	return &Generator{log: log}
}

// Generate resolves every mapping against the aggregate, fills the blank
// template and returns the result. Signature placeholder mappings are left
// untouched for the signing flow.
func (g *Generator) Generate(blankPDF []byte, templateChecksum string, mappings []mapping.FieldMapping, data Aggregate) (*Document, error) {
	values, err := g.ResolveValues(mappings, data)
	if err != nil {
		return nil, err
	}

	filled, err := fillForm(blankPDF, values)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Bytes:    filled,
		Checksum: ContentChecksum(templateChecksum, values),
		Values:   values,
	}

	g.log.WithFields(logrus.Fields{
		"fields":   len(values),
		"size":     len(filled),
		"checksum": doc.Checksum,
	}).Debug("generated document")

	return doc, nil
}

// Fill regenerates a document from an already-resolved field-value map, as
// happens when a single field changes on an existing draft.
func (g *Generator) Fill(blankPDF []byte, templateChecksum string, values map[string]string) (*Document, error) {
	filled, err := fillForm(blankPDF, values)
	if err != nil {
		return nil, err
	}
	return &Document{
		Bytes:    filled,
		Checksum: ContentChecksum(templateChecksum, values),
		Values:   values,
	}, nil
}

// ResolveValues computes the field-value map without touching the PDF:
// transform(dataPath value) if non-empty, else the default, else blank.
// Optional fields never fail; blank required fields are batched into one
// *GenerationError.
func (g *Generator) ResolveValues(mappings []mapping.FieldMapping, data Aggregate) (map[string]string, error) {
	values := make(map[string]string, len(mappings))
	var unresolved []string

	for _, m := range mappings {
		if m.DataPath == mapping.SignaturePlaceholder {
			continue
		}

		resolved := data.Resolve(m.DataPath)
		if resolved != "" {
			resolved = mapping.Apply(m.Transform, resolved)
		} else if m.DefaultValue != "" {
			resolved = m.DefaultValue
		}

		if resolved == "" && m.Required {
			unresolved = append(unresolved, m.SourceField)
		}
		values[m.SourceField] = resolved
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, &GenerationError{Fields: unresolved}
	}
	return values, nil
}

// ContentChecksum hashes the template identity together with the canonically
// ordered field values. The writer's output bytes carry write-time metadata,
// so hashing them would break cross-run determinism.
func ContentChecksum(templateChecksum string, values map[string]string) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(templateChecksum))
	for _, name := range names {
		fmt.Fprintf(h, "%s=%s\n", name, values[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// fillForm writes each non-blank value into the matching AcroForm field's V
// entry and drops stale appearance streams so viewers regenerate them.
func fillForm(blankPDF []byte, values map[string]string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(blankPDF), conf)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("resolve template pages: %w", err)
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("template catalog: %w", err)
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, fmt.Errorf("template has no interactive form")
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, fmt.Errorf("template AcroForm unresolvable: %w", err)
	}
	acroFormDict["NeedAppearances"] = types.Boolean(true)

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, fmt.Errorf("template AcroForm has no Fields array")
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("template Fields array unresolvable: %w", err)
	}

	for _, fieldRef := range fieldsArray {
		fieldDict, err := ctx.DereferenceDict(fieldRef)
		if err != nil || fieldDict == nil {
			continue
		}
		nameObj, found := fieldDict.Find("T")
		if !found {
			continue
		}
		name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil)
		if err != nil {
			continue
		}
		value, ok := values[name]
		if !ok || value == "" {
			continue
		}
		fieldDict["V"] = types.StringLiteral(escapeLiteral(value))
		delete(fieldDict, "AP")
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("write filled document: %w", err)
	}
	return out.Bytes(), nil
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	s = strings.ReplaceAll(s, ")", `\)`)
	return s
}
