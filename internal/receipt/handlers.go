package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/extraction"
	"github.com/zombor/receipt2json/internal/scanning"
)

// maxUploadSize covers high-resolution phone photos and multi-page scans.
const maxUploadSize = int64(50 << 20)

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeError writes a JSON error body. extra fields are merged into it.
func writeError(w http.ResponseWriter, code int, message string, extra map[string]string) {
	body := map[string]string{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeProcessError maps pipeline failures to status codes.
func writeProcessError(w http.ResponseWriter, err error) {
	var (
		decodeErr *document.DecodeError
		renderErr *document.RenderError
		parseErr  *scanning.ParseError
		collabErr *extraction.CollaboratorError
	)
	switch {
	case errors.Is(err, document.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), nil)
	case errors.As(err, &decodeErr), errors.As(err, &renderErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.As(err, &parseErr):
		writeError(w, http.StatusBadGateway, "scanner reply was not valid receipt JSON", map[string]string{
			"raw_response": parseErr.Raw,
		})
	case errors.As(err, &collabErr):
		code := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeError(w, code, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	extractions, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, extractions)
}

func (s *Server) handleUploadExtraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form", nil)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file provided", nil)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.", nil)
		return
	}

	ext, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeProcessError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ext)
}

func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	ext, err := s.service.GetExtraction(r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

func (s *Server) handleGetExtractionPDF(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.service.GetExtractionPDF(r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

func (s *Server) handleGetExtractionJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetExtractionJSON(r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt.json"`)
	w.Write(data)
}

func (s *Server) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExtraction(r.PathValue("id")); err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Extraction not found", nil)
		return
	}
	slog.Error("Error loading extraction", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error", nil)
}
