package document

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"
)

// Accepted MIME types.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimePDF  = "application/pdf"
)

// RenderDPI is the resolution PDF pages are rasterized at. PDF user space is
// 72 units per inch, so every page is scaled by RenderDPI/72.
const RenderDPI = 300.0

// SourceDocument is the raw input handed to the pipeline.
type SourceDocument struct {
	Data     []byte
	MimeType string
}

// Normalizer decodes source documents into a single Image.
type Normalizer struct {
	workers int
	open    func(data []byte) (pageSource, error)
}

// NewNormalizer creates a Normalizer. With workers > 1, PDF pages are
// rendered concurrently, each worker on its own document handle.
func NewNormalizer(workers int) *Normalizer {
	if workers < 1 {
		workers = 1
	}
	return &Normalizer{workers: workers, open: openFitz}
}

// Normalize decodes doc into one canonical raster. Multi-page PDFs are
// stacked top to bottom in page order.
func (n *Normalizer) Normalize(doc SourceDocument) (*Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(doc.MimeType))

	var (
		raster image.Image
		err    error
	)
	switch mimeType {
	case MimeJPEG:
		raster, err = jpeg.Decode(bytes.NewReader(doc.Data))
	case MimePNG:
		raster, err = png.Decode(bytes.NewReader(doc.Data))
	case MimePDF:
		var pages []image.Image
		pages, err = n.renderPDF(doc.Data)
		if err != nil {
			return nil, err
		}
		raster = composite(pages)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, doc.MimeType)
	}
	if err != nil {
		return nil, &DecodeError{MimeType: mimeType, Reason: err}
	}

	if b := raster.Bounds(); b.Empty() {
		return nil, &DecodeError{MimeType: mimeType, Reason: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}

	return newImage(raster), nil
}

// pageSource is an open PDF that can rasterize its pages. *fitz.Document
// satisfies it.
type pageSource interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

func openFitz(data []byte) (pageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// pdfHeaderWindow is how far into the data the %PDF- marker may appear.
// Readers tolerate leading junk before the header.
const pdfHeaderWindow = 1024

var pdfHeader = []byte("%PDF-")

// renderPDF rasterizes every page of a PDF in page order.
func (n *Normalizer) renderPDF(data []byte) ([]image.Image, error) {
	// MuPDF sniffs the format itself and would happily open a PNG.
	if !bytes.Contains(data[:min(len(data), pdfHeaderWindow)], pdfHeader) {
		return nil, &DecodeError{MimeType: MimePDF, Reason: ErrNotPDF}
	}

	doc, err := n.open(data)
	if err != nil {
		return nil, &DecodeError{MimeType: MimePDF, Reason: fmt.Errorf("opening PDF: %w", err)}
	}
	defer doc.Close()

	count := doc.NumPage()
	if count <= 0 {
		return nil, &DecodeError{MimeType: MimePDF, Reason: ErrNoPages}
	}

	pages := make([]image.Image, count)
	if n.workers == 1 || count == 1 {
		for i := range count {
			img, err := doc.ImageDPI(i, RenderDPI)
			if err != nil {
				return nil, &RenderError{Page: i, Err: err}
			}
			pages[i] = img
		}
		return pages, nil
	}

	// A fitz document serializes calls on its own lock, so each page
	// gets a private handle.
	var g errgroup.Group
	g.SetLimit(n.workers)
	for i := range count {
		g.Go(func() error {
			pageDoc, err := n.open(data)
			if err != nil {
				return &RenderError{Page: i, Err: err}
			}
			defer pageDoc.Close()

			img, err := pageDoc.ImageDPI(i, RenderDPI)
			if err != nil {
				return &RenderError{Page: i, Err: err}
			}
			pages[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// composite stacks pages vertically on a white canvas as wide as the widest
// page. Each page is pasted at x=0 below the previous one.
func composite(pages []image.Image) *image.RGBA {
	width, height := 0, 0
	for _, p := range pages {
		b := p.Bounds()
		width = max(width, b.Dx())
		height += b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	offset := 0
	for _, p := range pages {
		b := p.Bounds()
		dst := image.Rect(0, offset, b.Dx(), offset+b.Dy())
		draw.Draw(canvas, dst, p, b.Min, draw.Src)
		offset += b.Dy()
	}
	return canvas
}
