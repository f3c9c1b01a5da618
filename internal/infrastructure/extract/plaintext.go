// Package extract turns corpus source files into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// PlainText reads UTF-8 text files (.txt, .md, .html pre-cleaned upstream).
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (e *PlainText) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source file: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("not valid utf-8 text: %s", filepath.Base(path))
	}
	return strings.TrimSpace(string(raw)), nil
}
