package document

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// EncodePDF wraps img in a single-page PDF. The page is sized to the image
// at 72 DPI, so one pixel maps to one point.
func EncodePDF(img *Image) ([]byte, error) {
	data, err := img.PNG()
	if err != nil {
		return nil, err
	}

	w, h := float64(img.Width()), float64(img.Height())
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("receipt", opts, bytes.NewReader(data))
	pdf.ImageOptions("receipt", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}
