package ports

import (
	"context"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

// Embedder builds vectors for corpus passages and query text. Implementations
// must apply the asymmetric "passage:"/"query:" prefixes; the embedding model
// was trained asymmetrically and omitting the prefix silently degrades
// similarity quality.
type Embedder interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is the narrow synchronous interface over the generative model
// call: an ordered list of role-tagged turns in, generated text out.
type Generator interface {
	Chat(ctx context.Context, messages []domain.HistoryTurn, opts domain.SamplingOptions) (string, error)
}

// ChatStore persists chats and messages. Owned by the persistence layer; the
// core treats history only as ordered role-tagged pairs.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *domain.Chat) error
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*domain.Chat, error)
	UpdateChatTitle(ctx context.Context, chatID, title string) error
	AppendMessage(ctx context.Context, message domain.ChatMessage) error
	ClearMessages(ctx context.Context, chatID string) error
	ListMessages(ctx context.Context, chatID string) ([]domain.ChatMessage, error)
	ListRecentTurns(ctx context.Context, chatID string, limit int) ([]domain.HistoryTurn, error)
}

// RebuildQueue publishes/consumes offline index rebuild requests.
type RebuildQueue interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
	SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from one corpus source file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// CorpusSource loads the cleaned corpus pages the index is built from.
type CorpusSource interface {
	Load(ctx context.Context) ([]domain.Page, error)
}

// Chunker splits extracted page text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}
