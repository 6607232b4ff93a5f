package serve

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var errUnsupportedType = errors.New("unsupported file type")

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	text, err := extractText(header.Filename, file)
	switch {
	case errors.Is(err, errUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	key := sessionKey(r)
	s.coordinator.Sessions().SetContext(key, text)
	indexed := false
	if s.index != nil {
		indexed = s.index.Upsert(r.Context(), key, text)
	}
	s.logger.Info("context uploaded", "session", key, "file", header.Filename,
		"chars", utf8.RuneCountInString(text), "indexed", indexed)

	writeJSON(w, http.StatusOK, UploadResponse{
		Filename: header.Filename,
		Chars:    utf8.RuneCountInString(text),
		Indexed:  indexed,
	})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	s.clearContext(sessionKey(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) clearContext(key string) {
	s.coordinator.Sessions().SetContext(key, "")
	if s.index != nil {
		s.index.Clear(key)
	}
}

// extractText reads an uploaded file as plain text. CSV rows are flattened
// to one comma-separated line each; PDF pages are concatenated.
func extractText(name string, r io.Reader) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt", ".md":
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		if !utf8.Valid(data) {
			return "", errors.New("file is not valid UTF-8 text")
		}
		return string(data), nil
	case ".csv":
		return flattenCSV(r)
	case ".pdf":
		return pdfText(r)
	default:
		return "", fmt.Errorf("%w %q", errUnsupportedType, ext)
	}
}

func flattenCSV(r io.Reader) (string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var b strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(record, ", "))
	}
	return b.String(), nil
}

func pdfText(r io.Reader) (text string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	// The parser panics on some malformed documents.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", p)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return string(out), nil
}
