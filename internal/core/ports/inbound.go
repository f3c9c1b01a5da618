package ports

import (
	"context"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for grounded question answering.
// History is caller-owned and must not be mutated concurrently for the same
// conversation.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, history []domain.HistoryTurn) (*domain.Answer, error)
}

// SourceSearcher exposes raw hybrid retrieval without generation.
type SourceSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.Candidate, error)
}

// IndexRebuilder rebuilds the embedding snapshot offline. Returns the number
// of chunks indexed.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}
