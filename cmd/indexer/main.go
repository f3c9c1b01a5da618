package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadavgross/faculty-rag/internal/bootstrap"
	"github.com/nadavgross/faculty-rag/internal/config"
)

const rebuildTimeout = 30 * time.Minute

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewIndexer(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.Metrics.Handler())
		log.Printf("indexer metrics on :%s", cfg.IndexerMetricsPort)
		if err := http.ListenAndServe(":"+cfg.IndexerMetricsPort, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	rebuild := func(handlerCtx context.Context, reason string) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, rebuildTimeout)
		defer cancel()

		app.Metrics.StartRebuild()
		start := time.Now()
		chunks, err := app.RebuildUC.Rebuild(runCtx)
		app.Metrics.FinishRebuild("indexer", time.Since(start), chunks, err)
		if err != nil {
			log.Printf("rebuild failed (%s): %v", reason, err)
			return err
		}
		log.Printf("rebuild complete (%s): %d chunks", reason, chunks)
		return nil
	}

	if cfg.RebuildOnStart {
		if err := rebuild(ctx, "startup"); err != nil {
			log.Fatalf("startup rebuild error: %v", err)
		}
	}

	log.Printf("indexer subscribed to %s", cfg.NATSSubject)
	if err := app.Queue.SubscribeRebuildRequested(ctx, rebuild); err != nil {
		log.Fatalf("indexer subscribe error: %v", err)
	}
}
