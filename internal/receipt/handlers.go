package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// contentTypeFor guesses a MIME type from the upload's extension.
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	reviewOnly := false
	if v := r.URL.Query().Get("review"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "review must be true or false", http.StatusBadRequest)
			return
		}
		reviewOnly = parsed
	}

	receipts, err := s.service.ListReceipts(reviewOnly)
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, msg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	receipt, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		if IsDecodeError(err) {
			jsonError(w, "The uploaded file is not a readable image or PDF.", http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, "Error processing receipt", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		s.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error reading receipt file", "id", r.PathValue("id"), "error", err)
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.MarkReviewed(r.PathValue("id"))
	if err != nil {
		s.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		s.lookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports backend availability. It is always 200 since the
// regex tier can serve every request on its own.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"capabilities": s.service.Capabilities(),
	})
}

func (s *Server) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	slog.Error("Error handling receipt request", "error", err)
	jsonError(w, "Internal server error", http.StatusInternalServerError)
}
