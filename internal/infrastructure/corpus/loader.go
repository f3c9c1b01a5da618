// Package corpus loads the cleaned source pages the index is built from:
// a JSONL file of crawled pages plus an optional directory of local
// documents (PDF, plain text).
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/extract"
)

const maxPageLine = 4 * 1024 * 1024

type Loader struct {
	// PagesPath is a JSONL file, one cleaned page per line.
	PagesPath string
	// DocsDir optionally holds local files to index alongside the crawl.
	DocsDir string
}

func (l Loader) Load(ctx context.Context) ([]domain.Page, error) {
	var pages []domain.Page

	if l.PagesPath != "" {
		crawled, err := loadPagesJSONL(l.PagesPath)
		if err != nil {
			return nil, err
		}
		pages = append(pages, crawled...)
	}

	if l.DocsDir != "" {
		local, err := loadLocalDocs(ctx, l.DocsDir)
		if err != nil {
			return nil, err
		}
		pages = append(pages, local...)
	}
	return pages, nil
}

func loadPagesJSONL(path string) ([]domain.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pages file: %w", err)
	}
	defer f.Close()

	var pages []domain.Page
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxPageLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var page domain.Page
		if err := json.Unmarshal([]byte(raw), &page); err != nil {
			return nil, fmt.Errorf("parse pages file line %d: %w", line, err)
		}
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		pages = append(pages, page)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pages file: %w", err)
	}
	return pages, nil
}

func loadLocalDocs(ctx context.Context, dir string) ([]domain.Page, error) {
	var pages []domain.Page
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableExt(path) {
			return nil
		}
		text, err := extract.ForPath(path).Extract(ctx, path)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		if text == "" {
			return nil
		}
		pages = append(pages, domain.Page{
			URL:   "file://" + path,
			Title: d.Name(),
			Text:  text,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk docs dir: %w", err)
	}
	return pages, nil
}

func indexableExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}
