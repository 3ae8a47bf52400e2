package scanning

import (
	"context"
	"fmt"

	"github.com/zombor/receipt2json/internal/document"
)

// Scanner is the vision model that reads a receipt image
type Scanner interface {
	// Generate sends prompt and img to the model and returns its raw reply
	Generate(ctx context.Context, prompt string, img *document.Image) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// StatusError is a non-success status returned by a model endpoint
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.Code, e.Body)
}

// Temporary reports whether the call may succeed if repeated
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
