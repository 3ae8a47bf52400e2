package receipt

import (
	"time"

	"github.com/zombor/receipt2json/internal/scanning"
)

// Extraction is an archived extraction result. ID is the hex fingerprint of
// the normalized image, so re-uploading the same document updates the same row.
type Extraction struct {
	ID             string          `json:"id"`
	SourceFilename string          `json:"source_filename"`
	ContentType    string          `json:"content_type"`
	Filename       string          `json:"filename"` // download name for the PDF export
	Record         scanning.Record `json:"record"`
	PDFPath        string          `json:"pdf_path"`
	JSONPath       string          `json:"json_path"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
