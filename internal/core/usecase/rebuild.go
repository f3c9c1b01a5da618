package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/core/langguard"
	"github.com/nadavgross/faculty-rag/internal/core/ports"
	"github.com/nadavgross/faculty-rag/internal/index/snapshot"
)

const embedBatchSize = 64

// SnapshotWriter persists a finished index build. Implemented by the
// snapshot package; a seam here keeps the pipeline testable without disk.
type SnapshotWriter interface {
	Write(vectors [][]float32, chunks []domain.Chunk) error
}

// FileSnapshotWriter writes the embedding matrix and metadata files
// atomically, so a reader never observes a half-written snapshot.
type FileSnapshotWriter struct {
	EmbPath  string
	MetaPath string
}

func (w FileSnapshotWriter) Write(vectors [][]float32, chunks []domain.Chunk) error {
	if err := snapshot.WriteMatrix(w.EmbPath, vectors); err != nil {
		return fmt.Errorf("write embedding matrix: %w", err)
	}
	if err := snapshot.WriteMeta(w.MetaPath, chunks); err != nil {
		return fmt.Errorf("write chunk metadata: %w", err)
	}
	return nil
}

// RebuildUseCase runs the offline pipeline: load pages, chunk, embed with
// the passage prefix, write the snapshot. Implements ports.IndexRebuilder.
type RebuildUseCase struct {
	corpus   ports.CorpusSource
	chunker  ports.Chunker
	embedder ports.Embedder
	guard    *langguard.Guard
	writer   SnapshotWriter
	logger   *slog.Logger
}

func NewRebuildUseCase(
	corpus ports.CorpusSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	guard *langguard.Guard,
	writer SnapshotWriter,
	logger *slog.Logger,
) *RebuildUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildUseCase{
		corpus:   corpus,
		chunker:  chunker,
		embedder: embedder,
		guard:    guard,
		writer:   writer,
		logger:   logger,
	}
}

func (uc *RebuildUseCase) Rebuild(ctx context.Context) (int, error) {
	pages, err := uc.corpus.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}

	var chunks []domain.Chunk
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		lang := page.Lang
		if lang == "" {
			lang = uc.detectLang(page.Text)
		}
		docID := docIDForURL(page.URL)
		for i, text := range uc.chunker.Split(page.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:           fmt.Sprintf("%s_%03d", docID, i),
				DocumentID:   docID,
				URL:          page.URL,
				Title:        page.Title,
				LastModified: page.LastModified,
				Lang:         lang,
				Text:         text,
			})
		}
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("corpus produced no chunks")
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := uc.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(batch) != len(texts) {
			return 0, fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(batch), len(texts))
		}
		for _, v := range batch {
			vectors = append(vectors, l2Normalize(v))
		}
		uc.logger.Info("embedded batch", slog.Int("done", end), slog.Int("total", len(chunks)))
	}

	if err := uc.writer.Write(vectors, chunks); err != nil {
		return 0, err
	}
	uc.logger.Info("snapshot written",
		slog.Int("pages", len(pages)),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func (uc *RebuildUseCase) detectLang(text string) string {
	if uc.guard.IsHebrewDocument(text) {
		return "he"
	}
	return "non-he"
}

// docIDForURL is a stable short identifier, convenient when tracing a chunk
// back to its page.
func docIDForURL(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// l2Normalize scales v to unit length so the dot product against a
// normalized query is cosine similarity. Zero vectors pass through.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
