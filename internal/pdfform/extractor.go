package pdfform

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"
)

// Extractor parses a PDF's AcroForm into ordered FieldDescriptors.
type Extractor struct {
	log *logrus.Logger
}

// NewExtractor creates an extractor logging through the given logger.
func NewExtractor(log *logrus.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract enumerates the interactive form fields of a PDF, in document order.
// A document without a usable AcroForm, or one whose form object cannot be
// dereferenced, yields an *ExtractionError.
func (e *Extractor) Extract(pdfBytes []byte) ([]FieldDescriptor, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(pdfBytes), conf)
	if err != nil {
		return nil, &ExtractionError{Reason: "unreadable document", Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &ExtractionError{Reason: "page tree unresolvable", Err: err}
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, &ExtractionError{Reason: "missing catalog", Err: err}
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, &ExtractionError{Reason: "document has no interactive form"}
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, &ExtractionError{Reason: "malformed AcroForm dictionary", Err: err}
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, &ExtractionError{Reason: "AcroForm has no Fields array"}
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, &ExtractionError{Reason: "malformed Fields array", Err: err}
	}

	pageIndex := e.buildPageIndex(ctx, rootDict)

	descriptors := make([]FieldDescriptor, 0, len(fieldsArray))
	for i, fieldRef := range fieldsArray {
		d, err := e.describeField(ctx, fieldRef, i, pageIndex)
		if err != nil {
			return nil, err
		}
		if d != nil {
			descriptors = append(descriptors, *d)
		}
	}

	e.log.WithFields(logrus.Fields{
		"fields": len(descriptors),
		"pages":  ctx.PageCount,
	}).Debug("extracted form field descriptors")

	return descriptors, nil
}

func (e *Extractor) describeField(ctx *model.Context, fieldObj types.Object, index int, pageIndex map[int]int) (*FieldDescriptor, error) {
	fieldDict, err := ctx.DereferenceDict(fieldObj)
	if err != nil {
		return nil, &ExtractionError{Reason: "malformed field dictionary", Err: err}
	}
	if fieldDict == nil {
		return nil, nil
	}

	d := &FieldDescriptor{}

	if nameObj, found := fieldDict.Find("T"); found {
		if name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			d.Name = name
		}
	}
	if d.Name == "" {
		d.Name = generatedFieldName(index)
	}

	kind := e.widgetKind(ctx, fieldDict)
	d.Kind = overrideKindByName(d.Name, kind)

	if flagsObj, found := fieldDict.Find("Ff"); found {
		if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
			d.Required = (*flags & 2) != 0 // bit 2
		}
	}

	d.Bounds, d.Page = e.widgetGeometry(ctx, fieldDict, pageIndex)
	if d.Bounds == nil || d.Page == 0 {
		d.GeometryUnresolved = true
		if d.Page == 0 {
			d.Page = 1
		}
	}

	return d, nil
}

// widgetKind classifies a field from its FT entry, walking Parent for
// inherited types. Name heuristics are applied afterwards and win.
func (e *Extractor) widgetKind(ctx *model.Context, fieldDict types.Dict) FieldKind {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		if parentObj, found := fieldDict.Find("Parent"); found {
			if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
				return e.widgetKind(ctx, parentDict)
			}
		}
		return FieldKindText
	}

	ftName, err := ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return FieldKindText
	}

	switch ftName {
	case "Btn":
		if flagsObj, found := fieldDict.Find("Ff"); found {
			if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
				if (*flags & (1 << 15)) != 0 { // bit 16: radio
					return FieldKindRadio
				}
			}
		}
		return FieldKindCheckbox
	case "Ch":
		return FieldKindDropdown
	case "Sig":
		return FieldKindSignature
	default:
		return FieldKindText
	}
}

// overrideKindByName applies the name heuristics that take precedence over
// the widget subtype: many dealership forms reuse plain text widgets for
// signature and date roles.
func overrideKindByName(name string, kind FieldKind) FieldKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "signature"), strings.Contains(lower, "sign_"):
		return FieldKindSignature
	case strings.Contains(lower, "date"), strings.Contains(lower, "_dt"):
		return FieldKindDate
	default:
		return kind
	}
}

// widgetGeometry resolves the rectangle and page of the field's first widget
// annotation. Page 0 means the page could not be determined.
func (e *Extractor) widgetGeometry(ctx *model.Context, fieldDict types.Dict, pageIndex map[int]int) (*BoundingBox, int) {
	widget := fieldDict
	if _, found := fieldDict.Find("Rect"); !found {
		if kidsObj, found := fieldDict.Find("Kids"); found {
			if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil && len(kidsArray) > 0 {
				if kidDict, err := ctx.DereferenceDict(kidsArray[0]); err == nil && kidDict != nil {
					widget = kidDict
				}
			}
		}
	}

	var bounds *BoundingBox
	if rectObj, found := widget.Find("Rect"); found {
		bounds = e.parseRect(ctx, rectObj)
	}

	page := 0
	if pObj, found := widget.Find("P"); found {
		if ref, ok := pObj.(types.IndirectRef); ok {
			page = pageIndex[ref.ObjectNumber.Value()]
		}
	}

	return bounds, page
}

func (e *Extractor) parseRect(ctx *model.Context, rectObj types.Object) *BoundingBox {
	rectArray, err := ctx.DereferenceArray(rectObj)
	if err != nil || len(rectArray) != 4 {
		return nil
	}

	coords := make([]float64, 4)
	for i, coord := range rectArray {
		f, err := ctx.DereferenceNumber(coord)
		if err != nil {
			return nil
		}
		coords[i] = f
	}

	return &BoundingBox{
		LowerLeft:  Coordinate{X: coords[0], Y: coords[1]},
		UpperRight: Coordinate{X: coords[2], Y: coords[3]},
		Width:      coords[2] - coords[0],
		Height:     coords[3] - coords[1],
	}
}

// buildPageIndex maps page object numbers to 1-indexed page numbers by
// walking the page tree, so widget P references can be resolved.
func (e *Extractor) buildPageIndex(ctx *model.Context, rootDict types.Dict) map[int]int {
	index := make(map[int]int)
	pagesObj, found := rootDict.Find("Pages")
	if !found {
		return index
	}
	next := 1
	e.indexPageNode(ctx, pagesObj, index, &next)
	return index
}

func (e *Extractor) indexPageNode(ctx *model.Context, nodeObj types.Object, index map[int]int, next *int) {
	objNr := 0
	if ref, ok := nodeObj.(types.IndirectRef); ok {
		objNr = ref.ObjectNumber.Value()
	}

	nodeDict, err := ctx.DereferenceDict(nodeObj)
	if err != nil || nodeDict == nil {
		return
	}

	if typeObj, found := nodeDict.Find("Type"); found {
		if typeName, err := ctx.DereferenceName(typeObj, model.V10, nil); err == nil && typeName == "Page" {
			if objNr != 0 {
				index[objNr] = *next
			}
			*next++
			return
		}
	}

	if kidsObj, found := nodeDict.Find("Kids"); found {
		if kidsArray, err := ctx.DereferenceArray(kidsObj); err == nil {
			for _, kid := range kidsArray {
				e.indexPageNode(ctx, kid, index, next)
			}
		}
	}
}

func generatedFieldName(index int) string {
	return fmt.Sprintf("field_%d", index)
}
