package pdfform

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// Probe performs a cheap readability check on a candidate template and
// reports its page count. The registry runs this before the full AcroForm
// walk so obviously broken uploads are rejected early.
func Probe(pdfBytes []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return 0, &ExtractionError{Reason: "unreadable document", Err: err}
	}
	return r.NumPage(), nil
}
