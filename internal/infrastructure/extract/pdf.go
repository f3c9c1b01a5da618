package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nadavgross/faculty-rag/internal/core/ports"
)

// PDF extracts plain text from PDF files (syllabi, regulations documents).
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (e *PDF) Extract(_ context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var b bytes.Buffer
	if _, err := b.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// ForPath picks the extractor matching the file extension.
func ForPath(path string) ports.TextExtractor {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewPDF()
	}
	return NewPlainText()
}
