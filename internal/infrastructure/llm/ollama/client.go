// Package ollama talks to a local Ollama server over its JSON HTTP API.
// It backs both outbound model ports: chat generation and text embedding.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/resilience"
)

const (
	// Asymmetric E5-style prefixes. The index is built from passage
	// vectors, so queries must carry the query prefix or similarity
	// scores degrade silently.
	passagePrefix = "passage: "
	queryPrefix   = "query: "
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 200 * time.Second},
		executor:   executor,
	}
}

// Embedder implements ports.Embedder. It owns the prefix convention so no
// caller can index unprefixed text.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = passagePrefix + t
	}
	vectors, err := e.client.embed(ctx, prefixed)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.embed(ctx, []string{queryPrefix + text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": inputs,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "ollama_embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

// Generator implements ports.Generator over the /api/chat endpoint.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Chat(ctx context.Context, messages []domain.HistoryTurn, opts domain.SamplingOptions) (string, error) {
	wireMessages := make([]map[string]string, len(messages))
	for i, m := range messages {
		wireMessages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	request := map[string]any{
		"model":    g.client.chatModel,
		"messages": wireMessages,
		"stream":   false,
		"options": map[string]any{
			"temperature": opts.Temperature,
			"top_p":       opts.TopP,
			"num_ctx":     opts.NumCtx,
		},
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := g.client.execute(ctx, "ollama_chat", func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/chat", request, &response, "chat")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, fn(ctx))
	}
	err := c.executor.Execute(ctx, operation, fn, classifyOllamaError)
	return wrapTemporaryIfNeeded(operation, err)
}
