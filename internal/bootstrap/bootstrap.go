// Package bootstrap wires configuration into running components for the api
// and indexer processes.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nadavgross/faculty-rag/internal/config"
	"github.com/nadavgross/faculty-rag/internal/core/langguard"
	"github.com/nadavgross/faculty-rag/internal/core/ports"
	"github.com/nadavgross/faculty-rag/internal/core/usecase"
	"github.com/nadavgross/faculty-rag/internal/index/lexical"
	"github.com/nadavgross/faculty-rag/internal/index/snapshot"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/chunking"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/corpus"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/llm/ollama"
	natsqueue "github.com/nadavgross/faculty-rag/internal/infrastructure/queue/nats"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/repository/postgres"
	"github.com/nadavgross/faculty-rag/internal/infrastructure/resilience"
	"github.com/nadavgross/faculty-rag/internal/observability/logging"
	"github.com/nadavgross/faculty-rag/internal/observability/metrics"
)

// API holds everything the api process serves with.
type API struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.AskMetrics

	AskUC     ports.QuestionAnswerer
	Retriever ports.SourceSearcher
	Chats     ports.ChatStore
	Queue     ports.RebuildQueue

	closeFn func()
}

// askPipeline is the retrieval and generation core shared by the api and
// mcp processes.
type askPipeline struct {
	AskUC     ports.QuestionAnswerer
	Retriever ports.SourceSearcher
	Executor  *resilience.Executor
	Chunks    int
	Dims      int
}

func buildAskPipeline(cfg config.Config, logger *slog.Logger, observer usecase.Observer) (*askPipeline, error) {
	matrix, chunks, err := snapshot.Load(cfg.EmbeddingsPath, cfg.ChunksMetaPath)
	if err != nil {
		return nil, fmt.Errorf("load index snapshot: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	lexIndex := lexical.New(texts)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	client := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(client)
	generator := ollama.NewGenerator(client)

	retriever, err := usecase.NewHybridRetriever(matrix, lexIndex, chunks, embedder, cfg.RAGAlpha, cfg.RAGMaxPerURL)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load routing policy: %w", err)
	}

	guard := langguard.New(policy.Language)
	askUC := usecase.NewAskUseCase(
		retriever,
		generator,
		guard,
		policy.Routing,
		usecase.AskLimits{
			TopK:         cfg.RAGTopK,
			MaxTokens:    cfg.RAGMaxTokens,
			HistoryTurns: cfg.HistoryTurns,
			GenTimeout:   time.Duration(cfg.GenTimeoutSec) * time.Second,
		},
		logger,
		observer,
	)

	return &askPipeline{
		AskUC:     askUC,
		Retriever: retriever,
		Executor:  executor,
		Chunks:    len(chunks),
		Dims:      matrix.Dims(),
	}, nil
}

func NewAPI(ctx context.Context, cfg config.Config) (*API, error) {
	logger := logging.New(os.Stdout, "api", cfg.LogLevel)
	slog.SetDefault(logger)

	askMetrics := metrics.NewAskMetrics("api")
	pipeline, err := buildAskPipeline(cfg, logger, askMetrics.Observer("api"))
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewChatRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: pipeline.Executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init rebuild queue: %w", err)
	}

	logger.Info("api bootstrap complete",
		slog.Int("chunks", pipeline.Chunks),
		slog.Int("embedding_dims", pipeline.Dims))

	return &API{
		Config:    cfg,
		Logger:    logger,
		Metrics:   askMetrics,
		AskUC:     pipeline.AskUC,
		Retriever: pipeline.Retriever,
		Chats:     repo,
		Queue:     queue,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// MCP holds the pipeline served over stdio. No database or queue: the tool
// surface is stateless question answering and search. Logs go to stderr
// because stdout carries the protocol.
type MCP struct {
	Config config.Config
	Logger *slog.Logger

	AskUC     ports.QuestionAnswerer
	Retriever ports.SourceSearcher
}

func NewMCP(_ context.Context, cfg config.Config) (*MCP, error) {
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	pipeline, err := buildAskPipeline(cfg, logger, nil)
	if err != nil {
		return nil, err
	}

	logger.Info("mcp bootstrap complete",
		slog.Int("chunks", pipeline.Chunks),
		slog.Int("embedding_dims", pipeline.Dims))

	return &MCP{
		Config:    cfg,
		Logger:    logger,
		AskUC:     pipeline.AskUC,
		Retriever: pipeline.Retriever,
	}, nil
}

// Indexer holds the offline rebuild pipeline.
type Indexer struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.IndexerMetrics

	RebuildUC ports.IndexRebuilder
	Queue     ports.RebuildQueue

	closeFn func()
}

func NewIndexer(_ context.Context, cfg config.Config) (*Indexer, error) {
	logger := logging.New(os.Stdout, "indexer", cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	client := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(client)

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load routing policy: %w", err)
	}

	guard := langguard.New(policy.Language)
	rebuildUC := usecase.NewRebuildUseCase(
		corpus.Loader{PagesPath: cfg.PagesPath, DocsDir: cfg.DocsDir},
		chunking.NewSplitter(cfg.ChunkMaxChars, cfg.ChunkOverlapChars),
		embedder,
		guard,
		usecase.FileSnapshotWriter{EmbPath: cfg.EmbeddingsPath, MetaPath: cfg.ChunksMetaPath},
		logger,
	)

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init rebuild queue: %w", err)
	}

	return &Indexer{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewIndexerMetrics("indexer"),
		RebuildUC: rebuildUC,
		Queue:     queue,
		closeFn:   queue.Close,
	}, nil
}

func (ix *Indexer) Close() {
	if ix.closeFn != nil {
		ix.closeFn()
	}
}
