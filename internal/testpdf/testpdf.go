// Package testpdf builds minimal single-page AcroForm documents for tests.
// The output is a conventional cross-reference PDF small enough to assert
// against byte-for-byte while still parsing with real PDF tooling.
package testpdf

import (
	"bytes"
	"fmt"
)

// Field describes one widget annotation to embed in the generated form.
type Field struct {
	Name     string
	FT       string // Tx, Btn, Ch, Sig
	Required bool
	Flags    int  // additional Ff bits, e.g. 1<<15 for radio buttons
	NoRect   bool // omit the widget rectangle to simulate broken geometry
	NoPage   bool // omit the page back-reference
	Value    string
}

// TextField is a convenience constructor for the common case.
func TextField(name string) Field {
	return Field{Name: name, FT: "Tx"}
}

// RequiredTextField marks the field with the AcroForm required flag.
func RequiredTextField(name string) Field {
	return Field{Name: name, FT: "Tx", Required: true}
}

// Build renders a one-page PDF whose AcroForm carries the given fields.
func Build(fields []Field) []byte {
	var body bytes.Buffer
	offsets := make(map[int]int)

	write := func(objNr int, content string) {
		offsets[objNr] = body.Len()
		fmt.Fprintf(&body, "%d 0 obj\n%s\nendobj\n", objNr, content)
	}

	body.WriteString("%PDF-1.7\n")

	fieldRefs := ""
	for i := range fields {
		fieldRefs += fmt.Sprintf("%d 0 R ", 4+i)
	}

	write(1, fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [%s] /NeedAppearances true >> >>", fieldRefs))
	write(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	write(3, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [%s] >>", fieldRefs))

	for i, f := range fields {
		ff := f.Flags
		if f.Required {
			ff |= 2
		}
		dict := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /%s /T (%s)", f.FT, f.Name)
		if !f.NoRect {
			y := 700 - 30*i
			dict += fmt.Sprintf(" /Rect [100 %d 300 %d]", y, y+20)
		}
		if !f.NoPage {
			dict += " /P 3 0 R"
		}
		if ff != 0 {
			dict += fmt.Sprintf(" /Ff %d", ff)
		}
		if f.Value != "" {
			dict += fmt.Sprintf(" /V (%s)", f.Value)
		}
		dict += " >>"
		write(4+i, dict)
	}

	objCount := 3 + len(fields)

	xrefOffset := body.Len()
	fmt.Fprintf(&body, "xref\n0 %d\n", objCount+1)
	body.WriteString("0000000000 65535 f \n")
	for objNr := 1; objNr <= objCount; objNr++ {
		fmt.Fprintf(&body, "%010d 00000 n \n", offsets[objNr])
	}
	fmt.Fprintf(&body, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xrefOffset)

	return body.Bytes()
}
