package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/extraction"
)

// Extractor runs the receipt pipeline on one document.
type Extractor interface {
	Extract(ctx context.Context, doc document.SourceDocument) (*extraction.Result, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service archives extraction results and their export artifacts.
type Service struct {
	db         DB
	extractor  Extractor
	storage    Storage
	timeSource TimeSource
}

// NewService creates a new Service with the wall clock as time source
func NewService(db DB, extractor Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, timeSrc TimeSource) *Service {
	return &Service{
		db:         db,
		extractor:  extractor,
		storage:    storage,
		timeSource: timeSrc,
	}
}

// ProcessReceipt extracts a record from an uploaded document, stores its PDF
// and JSON exports, and archives the result under the image fingerprint.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Extraction, error) {
	contentType = ResolveContentType(filename, contentType)

	doc, err := PrepareDocument(data, contentType)
	if err != nil {
		return nil, err
	}

	result, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	pdfData, err := document.EncodePDF(result.Image)
	if err != nil {
		return nil, fmt.Errorf("encoding pdf: %w", err)
	}
	jsonData, err := result.Record.JSON()
	if err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}

	id := result.Fingerprint.String()
	now := s.timeSource.Now()
	createdAt := now
	existing, err := s.db.GetExtraction(id)
	if err == nil {
		createdAt = existing.CreatedAt
	} else {
		existing = nil
	}

	// Artifacts get per-version names so a failed re-upload never touches
	// the files an archived row still points at.
	base := fmt.Sprintf("%s-%d", id, now.UnixNano())
	pdfPath, err := s.storage.Save(base+".pdf", pdfData)
	if err != nil {
		return nil, fmt.Errorf("saving pdf: %w", err)
	}
	jsonPath, err := s.storage.Save(base+".json", jsonData)
	if err != nil {
		s.discard(existing, pdfPath)
		return nil, fmt.Errorf("saving json: %w", err)
	}

	ext := &Extraction{
		ID:             id,
		SourceFilename: filename,
		ContentType:    contentType,
		Filename:       extraction.ExportFilename(result.Record.InvoiceNumber),
		Record:         result.Record,
		PDFPath:        pdfPath,
		JSONPath:       jsonPath,
		Width:          result.Image.Width(),
		Height:         result.Image.Height(),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}

	if err := s.db.SaveExtraction(ext); err != nil {
		s.discard(existing, pdfPath, jsonPath)
		return nil, fmt.Errorf("saving extraction to database: %w", err)
	}

	if existing != nil {
		s.discard(ext, existing.PDFPath, existing.JSONPath)
	}

	slog.Info("Processed receipt", "id", id, "filename", filename, "cached", result.Cached, "items", len(result.Record.Items))
	return ext, nil
}

// discard deletes artifacts that keep is not using. keep may be nil.
func (s *Service) discard(keep *Extraction, paths ...string) {
	for _, path := range paths {
		if keep != nil && (path == keep.PDFPath || path == keep.JSONPath) {
			continue
		}
		if err := s.storage.Delete(path); err != nil {
			slog.Warn("Failed to delete file", "filename", path, "error", err)
		}
	}
}

func (s *Service) GetExtraction(id string) (*Extraction, error) {
	ext, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return ext, nil
}

func (s *Service) ListExtractions() ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction and its artifacts. Missing artifact
// files are logged and do not stop the row from being deleted.
func (s *Service) DeleteExtraction(id string) error {
	ext, err := s.db.GetExtraction(id)
	if err != nil {
		return fmt.Errorf("getting extraction for deletion: %w", err)
	}

	for _, path := range []string{ext.PDFPath, ext.JSONPath} {
		if err := s.storage.Delete(path); err != nil {
			slog.Warn("Failed to delete file", "filename", path, "error", err)
		}
	}

	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction from database: %w", err)
	}
	return nil
}

// GetExtractionPDF returns the PDF export and its download filename.
func (s *Service) GetExtractionPDF(id string) ([]byte, string, error) {
	ext, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction: %w", err)
	}
	data, err := s.storage.Get(ext.PDFPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting pdf: %w", err)
	}
	return data, ext.Filename, nil
}

// GetExtractionJSON returns the JSON export.
func (s *Service) GetExtractionJSON(id string) ([]byte, error) {
	ext, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	data, err := s.storage.Get(ext.JSONPath)
	if err != nil {
		return nil, fmt.Errorf("getting json: %w", err)
	}
	return data, nil
}

// IsNotFound reports whether err means the extraction does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
