package receipt

import (
	"bytes"
	"fmt"
	"image/png"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gen2brain/heic"

	"github.com/zombor/receipt2json/internal/document"
)

const (
	mimeHEIC = "image/heic"
	mimeHEIF = "image/heif"
)

var extensionTypes = map[string]string{
	".jpg":  document.MimeJPEG,
	".jpeg": document.MimeJPEG,
	".png":  document.MimePNG,
	".pdf":  document.MimePDF,
	".heic": mimeHEIC,
	".heif": mimeHEIF,
}

// ResolveContentType returns the declared type when it is specific, otherwise
// the type implied by the filename extension.
func ResolveContentType(filename, declared string) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mediaType
	}
	declared = strings.ToLower(strings.TrimSpace(declared))

	switch declared {
	case "", "application/octet-stream", "binary/octet-stream":
	case "image/jpg", "image/pjpeg":
		return document.MimeJPEG
	default:
		return declared
	}

	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// PrepareDocument builds the pipeline input for an upload. HEIC/HEIF photos
// are transcoded to PNG first; the pipeline itself only accepts JPEG, PNG and PDF.
func PrepareDocument(data []byte, contentType string) (document.SourceDocument, error) {
	if isHEIC(data, contentType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return document.SourceDocument{}, &document.DecodeError{MimeType: contentType, Reason: err}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return document.SourceDocument{}, fmt.Errorf("transcoding HEIC: %w", err)
		}
		return document.SourceDocument{Data: buf.Bytes(), MimeType: document.MimePNG}, nil
	}

	switch contentType {
	case document.MimeJPEG, document.MimePNG, document.MimePDF:
		return document.SourceDocument{Data: data, MimeType: contentType}, nil
	}
	return document.SourceDocument{}, fmt.Errorf("%w: %q", document.ErrUnsupportedType, contentType)
}

// isHEIC checks the MIME type, then the ISO-BMFF ftyp brand.
func isHEIC(data []byte, contentType string) bool {
	if contentType == mimeHEIC || contentType == mimeHEIF {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
