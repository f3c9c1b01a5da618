package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/nadavgross/faculty-rag/internal/adapters/mcp"
	"github.com/nadavgross/faculty-rag/internal/bootstrap"
	"github.com/nadavgross/faculty-rag/internal/config"
)

func main() {
	// Diagnostics must stay off stdout: it carries the MCP wire protocol.
	log.SetOutput(os.Stderr)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewMCP(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}

	server := mcpadapter.NewServer(app.AskUC, app.Retriever)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpadapter.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		log.Print("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("mcp server error: %v", err)
		}
	}
}
