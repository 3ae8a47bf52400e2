package document

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned when the declared MIME type is not one
	// of image/jpeg, image/png or application/pdf.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrNoPages is the reason carried by a DecodeError for a PDF without pages.
	ErrNoPages = errors.New("pdf has no pages")

	// ErrNotPDF is the reason carried by a DecodeError for PDF-declared
	// bytes without a %PDF- header.
	ErrNotPDF = errors.New("missing %PDF- header")
)

// DecodeError reports bytes that could not be parsed as their declared type.
type DecodeError struct {
	MimeType string
	Reason   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.MimeType, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// RenderError reports a PDF page that failed to rasterize. Page is zero-based.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering PDF page %d: %v", e.Page+1, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
